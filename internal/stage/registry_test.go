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

package stage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	r := Default()

	tests := []struct {
		name string
		raw  string
		want ID
	}{
		{name: "canonical", raw: "market_research", want: MarketResearch},
		{name: "legacy alias", raw: "market-research", want: MarketResearch},
		{name: "case and whitespace", raw: "  Problem-Analysis ", want: ProblemAnalysis},
		{name: "step numbering", raw: "step7", want: Roadmap},
		{name: "unknown", raw: "pitch-deck", want: Unrecognized},
		{name: "empty", raw: "", want: Unrecognized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Normalize(tt.raw))
		})
	}
}

func TestDefaultTableIsConsistent(t *testing.T) {
	_, err := New(defaultEntries)
	require.NoError(t, err)

	owners := map[string]ID{}
	for _, e := range defaultEntries {
		for _, alias := range e.LegacyAliases {
			key := normalizeKey(alias)
			owner, seen := owners[key]
			assert.Falsef(t, seen, "alias %q used by %q and %q", alias, owner, e.ID)
			owners[key] = e.ID
			assert.Equal(t, e.ID, Default().Normalize(alias))
		}
	}
}

func TestNewRejectsBadTables(t *testing.T) {
	tests := []struct {
		name    string
		entries []Entry
		errMsg  string
	}{
		{
			name:    "empty",
			entries: nil,
			errMsg:  "stage registry requires at least one entry",
		},
		{
			name:    "shared alias",
			entries: []Entry{{ID: "a", Order: 1, LegacyAliases: []string{"x"}}, {ID: "b", Order: 2, LegacyAliases: []string{"x"}}},
			errMsg:  `legacy alias "x" maps to both "a" and "b"`,
		},
		{
			name:    "alias shadows canonical id",
			entries: []Entry{{ID: "a", Order: 1}, {ID: "b", Order: 2, LegacyAliases: []string{"a"}}},
			errMsg:  `legacy alias "a" maps to both "a" and "b"`,
		},
		{
			name:    "orders not increasing",
			entries: []Entry{{ID: "a", Order: 2}, {ID: "b", Order: 2}},
			errMsg:  `stage "b" has order 2, orders must be strictly increasing`,
		},
		{
			name:    "duplicate id",
			entries: []Entry{{ID: "a", Order: 1}, {ID: "a", Order: 2}},
			errMsg:  `stage id "a" collides with "a"`,
		},
		{
			name:    "upper case id",
			entries: []Entry{{ID: "Idea", Order: 1}},
			errMsg:  `stage id "Idea" must be lower case without surrounding spaces`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.entries)
			assert.EqualError(t, err, tt.errMsg)
		})
	}
}

func TestRankAndNext(t *testing.T) {
	r := Default()

	assert.Equal(t, 1, r.Rank(Idea))
	assert.Equal(t, 8, r.Rank(Export))
	assert.Equal(t, -1, r.Rank("problem"))

	next, ok := r.Next(Idea)
	assert.True(t, ok)
	assert.Equal(t, ProblemAnalysis, next)

	_, ok = r.Next(Export)
	assert.False(t, ok)

	assert.Equal(t, Idea, r.First())
	assert.Equal(t, Export, r.Last())
	assert.Len(t, r.AllIDs(), 8)
}

func TestAllIDsReturnsCopy(t *testing.T) {
	r := Default()
	ids := r.AllIDs()
	ids[0] = "mutated"
	assert.Equal(t, Idea, r.AllIDs()[0])
}

func TestNormalizeSet(t *testing.T) {
	ids, unknown := Default().NormalizeSet([]string{"idea", "problem", "problem_analysis", "step2", "bogus", "market"})
	assert.Equal(t, []ID{Idea, ProblemAnalysis, MarketResearch}, ids)
	assert.Equal(t, []string{"bogus"}, unknown)
}

func TestPercentageNeverExceedsHundred(t *testing.T) {
	r := Default()

	legacyAndCanonical := []string{
		"idea", "idea-input", "step1",
		"problem", "problem_analysis",
		"market", "market_research", "research",
		"competitors", "competitor_analysis",
		"strategy", "business_strategy",
		"mvp", "mvp_plan",
		"roadmap", "milestones",
		"export", "download", "final",
	}

	var completed []ID
	prev := 0
	for _, raw := range legacyAndCanonical {
		completed = append(completed, r.Normalize(raw))
		pct := r.Percentage(completed)
		assert.GreaterOrEqual(t, pct, prev)
		assert.LessOrEqual(t, pct, 100)
		prev = pct
	}
	assert.Equal(t, 100, prev)
}

func TestPercentageRounding(t *testing.T) {
	r := Default()
	assert.Equal(t, 0, r.Percentage(nil))
	assert.Equal(t, 13, r.Percentage([]ID{Idea}))
	assert.Equal(t, 38, r.Percentage([]ID{Idea, ProblemAnalysis, MarketResearch}))
	assert.Equal(t, 13, r.Percentage([]ID{Idea, "not-a-stage"}))
}

func TestDetail(t *testing.T) {
	r := Default()
	details := r.Detail(MarketResearch, []ID{Idea, ProblemAnalysis}, func(id ID) bool { return id == Idea })

	require.Len(t, details, 8)
	assert.Equal(t, Detail{Stage: Idea, Status: StatusCompleted, HasData: true}, details[0])
	assert.Equal(t, Detail{Stage: ProblemAnalysis, Status: StatusCompleted}, details[1])
	assert.Equal(t, Detail{Stage: MarketResearch, Status: StatusInProgress}, details[2])
	assert.Equal(t, Detail{Stage: Export, Status: StatusPending}, details[7])
}

func TestSuggest(t *testing.T) {
	r := Default()
	assert.Equal(t, MarketResearch, r.Suggest("markte"))
	assert.Equal(t, Roadmap, r.Suggest("roadmpa"))
	assert.Equal(t, Unrecognized, r.Suggest("zzzzzzzzzzzzzzzz"))
	assert.Equal(t, Unrecognized, r.Suggest(""))
}

func TestEntriesReturnsCopy(t *testing.T) {
	r := Default()
	entries := r.Entries()
	require.Len(t, entries, 8)
	assert.Equal(t, Idea, entries[0].ID)
	assert.Equal(t, 1, entries[0].Order)

	entries[0].LegacyAliases[0] = "mutated"
	assert.Equal(t, Idea, r.Normalize("idea-input"))
	assert.NotEqual(t, "mutated", r.Entries()[0].LegacyAliases[0])
}
