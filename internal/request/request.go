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

package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultTimeout bounds every outbound call made through this package.
const DefaultTimeout = 10 * time.Second

var client = &http.Client{Timeout: DefaultTimeout}

// StatusError is returned when the remote end answers outside the 2xx range.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// ToJsonReq serializes payload into a request body.
func ToJsonReq(payload interface{}) (*bytes.Buffer, error) {
	c, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return bytes.NewBuffer(c), nil
}

// Call sends req as JSON and decodes a JSON answer into response. An empty body leaves
// response untouched. Non-2xx answers are returned as *StatusError together with the
// raw response.
func Call(req *http.Request, response interface{}) (*http.Response, error) {
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return resp, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if response == nil || len(bytes.TrimSpace(body)) == 0 {
		return resp, nil
	}
	return resp, json.Unmarshal(body, response)
}

// PostJSON posts payload to url with the given extra headers.
func PostJSON(ctx context.Context, url string, headers map[string]string, payload, response interface{}) (*http.Response, error) {
	if url == "" {
		return nil, errors.New("request url is empty")
	}
	body, err := ToJsonReq(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	return Call(req, response)
}
