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
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/waypointhq/waypoint/internal/stage"
)

// Generated content produced by the assistant is carried as an opaque JSON value in the
// Content field of every payload; the remaining fields are what the stage form collects.

type IdeaPayload struct {
	Title          string          `json:"title,omitempty"`
	Description    string          `json:"description,omitempty"`
	Industry       string          `json:"industry,omitempty"`
	TargetAudience string          `json:"targetAudience,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
}

type ProblemAnalysisPayload struct {
	ProblemStatement string          `json:"problemStatement,omitempty"`
	PainPoints       []string        `json:"painPoints,omitempty"`
	AffectedUsers    string          `json:"affectedUsers,omitempty"`
	Severity         string          `json:"severity,omitempty"`
	Content          json.RawMessage `json:"content,omitempty"`
}

type MarketResearchPayload struct {
	MarketSize     string          `json:"marketSize,omitempty"`
	Segments       []string        `json:"segments,omitempty"`
	Trends         []string        `json:"trends,omitempty"`
	TargetCustomer string          `json:"targetCustomer,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
}

type Competitor struct {
	Name       string   `json:"name"`
	URL        string   `json:"url,omitempty"`
	Strengths  []string `json:"strengths,omitempty"`
	Weaknesses []string `json:"weaknesses,omitempty"`
}

type CompetitorAnalysisPayload struct {
	Competitors    []Competitor    `json:"competitors,omitempty"`
	Differentiator string          `json:"differentiator,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
}

type BusinessStrategyPayload struct {
	ValueProposition string          `json:"valueProposition,omitempty"`
	RevenueModel     string          `json:"revenueModel,omitempty"`
	Channels         []string        `json:"channels,omitempty"`
	PricingNotes     string          `json:"pricingNotes,omitempty"`
	Content          json.RawMessage `json:"content,omitempty"`
}

type MVPPlanPayload struct {
	CoreFeatures []string        `json:"coreFeatures,omitempty"`
	OutOfScope   []string        `json:"outOfScope,omitempty"`
	TechStack    []string        `json:"techStack,omitempty"`
	LaunchWeeks  int             `json:"launchWeeks,omitempty"`
	Content      json.RawMessage `json:"content,omitempty"`
}

type RoadmapPayload struct {
	RoadmapID int64           `json:"roadmapId,omitempty"`
	Layout    string          `json:"layout,omitempty"`
	Notes     string          `json:"notes,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
}

type ExportPayload struct {
	Format     string          `json:"format,omitempty"`
	FileName   string          `json:"fileName,omitempty"`
	ExportedAt string          `json:"exportedAt,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
}

func payloadFor(id stage.ID) (interface{}, bool) {
	switch id {
	case stage.Idea:
		return &IdeaPayload{}, true
	case stage.ProblemAnalysis:
		return &ProblemAnalysisPayload{}, true
	case stage.MarketResearch:
		return &MarketResearchPayload{}, true
	case stage.CompetitorAnalysis:
		return &CompetitorAnalysisPayload{}, true
	case stage.BusinessStrategy:
		return &BusinessStrategyPayload{}, true
	case stage.MVPPlan:
		return &MVPPlanPayload{}, true
	case stage.Roadmap:
		return &RoadmapPayload{}, true
	case stage.Export:
		return &ExportPayload{}, true
	}
	return nil, false
}

// DecodeStagePayload checks raw against the payload shape of the stage. Unknown fields
// and mistyped values are rejected. On success the typed value is returned alongside
// raw, which stays the unit of the shallow merge.
func DecodeStagePayload(id stage.ID, raw map[string]interface{}) (interface{}, error) {
	target, ok := payloadFor(id)
	if !ok {
		return nil, fmt.Errorf("no payload shape for stage %q", id)
	}
	if len(raw) == 0 {
		return target, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("stage %q payload is not valid JSON: %w", id, err)
	}

	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return nil, fmt.Errorf("invalid payload for stage %q: %w", id, err)
	}
	return target, nil
}
