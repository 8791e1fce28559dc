/*
Copyright 2024 Waypoint Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package model

import (
	"encoding/json"
	"fmt"
	"sort"
)

// decodeAliased decodes data into target after rewriting every alias key onto its
// canonical name. When both spellings of a field are sent the canonical one wins.
func decodeAliased(data []byte, aliases map[string]string, target interface{}) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	normalized := make(map[string]json.RawMessage, len(raw))
	for _, k := range keys {
		canonical, isAlias := aliases[k]
		if !isAlias {
			normalized[k] = raw[k]
			continue
		}
		if _, sent := raw[canonical]; sent {
			continue
		}
		normalized[canonical] = raw[k]
	}

	encoded, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("re-encode request body: %w", err)
	}
	return json.Unmarshal(encoded, target)
}
