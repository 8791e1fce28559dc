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

// Package stage holds the ordered catalog of workflow stages and the table that maps
// historical stage names onto their canonical ids. A Registry is immutable after
// construction and safe for concurrent use.
package stage

import (
	"fmt"
	"math"
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// ID is a canonical stage identifier.
type ID string

// Unrecognized is returned by Normalize for input that matches no canonical id and no alias.
const Unrecognized ID = ""

const (
	Idea               ID = "idea"
	ProblemAnalysis    ID = "problem_analysis"
	MarketResearch     ID = "market_research"
	CompetitorAnalysis ID = "competitor_analysis"
	BusinessStrategy   ID = "business_strategy"
	MVPPlan            ID = "mvp_plan"
	Roadmap            ID = "roadmap"
	Export             ID = "export"
)

// Status of a stage within a session's progress view.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusInProgress Status = "in_progress"
	StatusPending    Status = "pending"
)

// Entry describes one canonical stage.
type Entry struct {
	ID            ID
	Order         int
	LegacyAliases []string
}

// Detail is one row of the derived stage view.
type Detail struct {
	Stage   ID     `json:"stage"`
	Status  Status `json:"status"`
	HasData bool   `json:"hasData"`
}

var defaultEntries = []Entry{
	{ID: Idea, Order: 1, LegacyAliases: []string{"idea-input", "idea_input", "business-idea", "step1"}},
	{ID: ProblemAnalysis, Order: 2, LegacyAliases: []string{"problem", "problem-analysis", "analysis", "step2"}},
	{ID: MarketResearch, Order: 3, LegacyAliases: []string{"market", "market-research", "research", "market_analysis", "step3"}},
	{ID: CompetitorAnalysis, Order: 4, LegacyAliases: []string{"competitors", "competition", "competitive-analysis", "step4"}},
	{ID: BusinessStrategy, Order: 5, LegacyAliases: []string{"strategy", "business-model", "business_model", "step5"}},
	{ID: MVPPlan, Order: 6, LegacyAliases: []string{"mvp", "mvp-plan", "product", "step6"}},
	{ID: Roadmap, Order: 7, LegacyAliases: []string{"milestones", "roadmap-builder", "timeline", "step7"}},
	{ID: Export, Order: 8, LegacyAliases: []string{"download", "pdf-export", "docx-export", "final", "step8"}},
}

// Registry is the ordered stage catalog.
type Registry struct {
	entries []Entry
	index   map[string]ID
	rank    map[ID]int
}

var defaultRegistry = MustNew(defaultEntries)

// Default returns the registry built from the product's stage table.
func Default() *Registry {
	return defaultRegistry
}

// MustNew is like New but panics when the table is inconsistent. It is meant for
// package-level tables that are checked once at startup.
func MustNew(entries []Entry) *Registry {
	r, err := New(entries)
	if err != nil {
		panic(err)
	}
	return r
}

// New validates the table and builds a Registry. Ids must be unique and non-empty, orders
// strictly increasing, and every alias must resolve to exactly one canonical id.
func New(entries []Entry) (*Registry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("stage registry requires at least one entry")
	}

	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]ID),
		rank:    make(map[ID]int, len(entries)),
	}

	prevOrder := math.MinInt
	for _, e := range entries {
		key := normalizeKey(string(e.ID))
		if key == "" {
			return nil, fmt.Errorf("stage registry entry with order %d has an empty id", e.Order)
		}
		if key != string(e.ID) {
			return nil, fmt.Errorf("stage id %q must be lower case without surrounding spaces", e.ID)
		}
		if e.Order <= prevOrder {
			return nil, fmt.Errorf("stage %q has order %d, orders must be strictly increasing", e.ID, e.Order)
		}
		if owner, exists := r.index[key]; exists {
			return nil, fmt.Errorf("stage id %q collides with %q", e.ID, owner)
		}
		prevOrder = e.Order
		r.index[key] = e.ID
		r.rank[e.ID] = e.Order
		r.entries = append(r.entries, Entry{ID: e.ID, Order: e.Order, LegacyAliases: append([]string(nil), e.LegacyAliases...)})
	}

	for _, e := range entries {
		for _, alias := range e.LegacyAliases {
			key := normalizeKey(alias)
			if key == "" {
				return nil, fmt.Errorf("stage %q has an empty legacy alias", e.ID)
			}
			if owner, exists := r.index[key]; exists && owner != e.ID {
				return nil, fmt.Errorf("legacy alias %q maps to both %q and %q", alias, owner, e.ID)
			}
			r.index[key] = e.ID
		}
	}

	return r, nil
}

func normalizeKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Normalize maps a legacy or canonical identifier to its canonical id. It returns
// Unrecognized when nothing matches.
func (r *Registry) Normalize(raw string) ID {
	id, ok := r.index[normalizeKey(raw)]
	if !ok {
		return Unrecognized
	}
	return id
}

// Rank returns the stage's order, or -1 when the id is not canonical.
func (r *Registry) Rank(id ID) int {
	order, ok := r.rank[id]
	if !ok {
		return -1
	}
	return order
}

// Contains reports whether id is one of the canonical ids.
func (r *Registry) Contains(id ID) bool {
	_, ok := r.rank[id]
	return ok
}

// AllIDs returns the canonical ids in order.
func (r *Registry) AllIDs() []ID {
	ids := make([]ID, len(r.entries))
	for i, e := range r.entries {
		ids[i] = e.ID
	}
	return ids
}

// Entries returns a copy of the table in order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		e.LegacyAliases = append([]string(nil), e.LegacyAliases...)
		out[i] = e
	}
	return out
}

// First returns the first canonical stage.
func (r *Registry) First() ID {
	return r.entries[0].ID
}

// Last returns the final canonical stage.
func (r *Registry) Last() ID {
	return r.entries[len(r.entries)-1].ID
}

// Next returns the stage after id. The second value is false when id is the last stage
// or is not canonical.
func (r *Registry) Next(id ID) (ID, bool) {
	for i, e := range r.entries {
		if e.ID == id {
			if i+1 < len(r.entries) {
				return r.entries[i+1].ID, true
			}
			return Unrecognized, false
		}
	}
	return Unrecognized, false
}

// NormalizeSet normalizes raw ids, drops duplicates while keeping first-insertion order,
// and returns whatever could not be resolved separately.
func (r *Registry) NormalizeSet(raw []string) ([]ID, []string) {
	seen := make(map[ID]struct{}, len(raw))
	ids := make([]ID, 0, len(raw))
	var unknown []string
	for _, s := range raw {
		id := r.Normalize(s)
		if id == Unrecognized {
			unknown = append(unknown, s)
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, unknown
}

// Percentage is round(100 * |completed ∩ canonical| / |canonical|). Duplicates and
// unknown ids in completed do not count, so the result never exceeds 100.
func (r *Registry) Percentage(completed []ID) int {
	seen := make(map[ID]struct{}, len(completed))
	for _, id := range completed {
		if r.Contains(id) {
			seen[id] = struct{}{}
		}
	}
	pct := int(math.Round(100 * float64(len(seen)) / float64(len(r.entries))))
	if pct > 100 {
		return 100
	}
	return pct
}

// Detail builds the per-stage view for a session. hasData may be nil.
func (r *Registry) Detail(current ID, completed []ID, hasData func(ID) bool) []Detail {
	done := make(map[ID]struct{}, len(completed))
	for _, id := range completed {
		done[id] = struct{}{}
	}

	details := make([]Detail, 0, len(r.entries))
	for _, e := range r.entries {
		d := Detail{Stage: e.ID, Status: StatusPending}
		if _, ok := done[e.ID]; ok {
			d.Status = StatusCompleted
		} else if e.ID == current {
			d.Status = StatusInProgress
		}
		if hasData != nil {
			d.HasData = hasData(e.ID)
		}
		details = append(details, d)
	}
	return details
}

// Suggest returns the canonical stage whose id or alias is closest to raw by edit
// distance. It is only used to enrich error messages.
func (r *Registry) Suggest(raw string) ID {
	key := normalizeKey(raw)
	if key == "" {
		return Unrecognized
	}

	best := Unrecognized
	bestDistance := math.MaxInt
	for candidate, id := range r.index {
		d := levenshtein.DistanceForStrings([]rune(key), []rune(candidate), levenshtein.DefaultOptions)
		if d < bestDistance || (d == bestDistance && r.rank[id] < r.rank[best]) {
			best = id
			bestDistance = d
		}
	}

	// Anything further than half the input away is noise, not a typo.
	if bestDistance > (len([]rune(key))+1)/2 {
		return Unrecognized
	}
	return best
}
