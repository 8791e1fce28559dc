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
	"sort"
	"time"

	"github.com/waypointhq/waypoint/internal/stage"
)

// StageData holds the merged payload of every stage a session has touched.
type StageData map[stage.ID]map[string]interface{}

type Session struct {
	SessionID       string     `json:"sessionId"`
	CurrentStage    stage.ID   `json:"currentStage"`
	CompletedStages []stage.ID `json:"completedStages"`
	Data            StageData  `json:"data"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// SessionPatch is a partial session update. A nil CompletedStages leaves the set alone,
// an empty one clears it.
type SessionPatch struct {
	CurrentStage    *string
	CompletedStages []string
	Data            map[string]map[string]interface{}
}

type Progress struct {
	SessionID       string         `json:"sessionId"`
	CurrentStage    stage.ID       `json:"currentStage"`
	CompletedStages []stage.ID     `json:"completedStages"`
	Percentage      int            `json:"percentage"`
	Stages          []stage.Detail `json:"stages"`
}

// Normalization reports what Normalize had to discard or rewrite.
type Normalization struct {
	DroppedCompleted []string
	DroppedData      []string
	ResetCurrent     string
}

// Clean reports whether the stored session was already canonical.
func (n Normalization) Clean() bool {
	return len(n.DroppedCompleted) == 0 && len(n.DroppedData) == 0 && n.ResetCurrent == ""
}

// Normalize rewrites legacy stage ids into canonical ones in place. Unknown completed
// entries and data keys are dropped, and an unknown current stage falls back to the
// first stage. Legacy data keys are merged under their canonical key with the canonical
// key's own values winning on conflicts.
func (s *Session) Normalize(r *stage.Registry) Normalization {
	var n Normalization

	current := r.Normalize(string(s.CurrentStage))
	if current == stage.Unrecognized {
		if s.CurrentStage != "" {
			n.ResetCurrent = string(s.CurrentStage)
		}
		current = r.First()
	}
	s.CurrentStage = current

	raw := make([]string, len(s.CompletedStages))
	for i, id := range s.CompletedStages {
		raw[i] = string(id)
	}
	completed, unknown := r.NormalizeSet(raw)
	s.CompletedStages = completed
	n.DroppedCompleted = unknown

	if len(s.Data) == 0 {
		s.Data = StageData{}
		return n
	}

	keys := make([]string, 0, len(s.Data))
	for k := range s.Data {
		keys = append(keys, string(k))
	}
	// Legacy keys first, then canonical ones, so the canonical payload is applied last.
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := r.Contains(stage.ID(keys[i])), r.Contains(stage.ID(keys[j]))
		if ci != cj {
			return !ci
		}
		return keys[i] < keys[j]
	})

	merged := make(StageData, len(s.Data))
	for _, k := range keys {
		id := r.Normalize(k)
		if id == stage.Unrecognized {
			n.DroppedData = append(n.DroppedData, k)
			continue
		}
		merged[id] = MergePayload(merged[id], s.Data[stage.ID(k)])
	}
	s.Data = merged
	return n
}

// IsCompleted reports whether id is in the completed set.
func (s *Session) IsCompleted(id stage.ID) bool {
	for _, c := range s.CompletedStages {
		if c == id {
			return true
		}
	}
	return false
}

// MarkCompleted adds id to the completed set. It returns false when id was already there.
func (s *Session) MarkCompleted(id stage.ID) bool {
	if s.IsCompleted(id) {
		return false
	}
	s.CompletedStages = append(s.CompletedStages, id)
	return true
}

// HasData reports whether the stage carries a non-empty payload.
func (s *Session) HasData(id stage.ID) bool {
	return len(s.Data[id]) > 0
}

// Progress derives the progress view from the session.
func (s *Session) Progress(r *stage.Registry) Progress {
	completed := append([]stage.ID{}, s.CompletedStages...)
	return Progress{
		SessionID:       s.SessionID,
		CurrentStage:    s.CurrentStage,
		CompletedStages: completed,
		Percentage:      r.Percentage(completed),
		Stages:          r.Detail(s.CurrentStage, completed, s.HasData),
	}
}

// MergePayload shallow-merges src into dst, last write wins per key. dst may be nil.
func MergePayload(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// Clone returns a deep enough copy for copy-on-write storage: slices, the data map and
// each per-stage payload map are duplicated.
func (s Session) Clone() Session {
	out := s
	out.CompletedStages = append([]stage.ID(nil), s.CompletedStages...)
	if s.Data != nil {
		out.Data = make(StageData, len(s.Data))
		for k, v := range s.Data {
			out.Data[k] = MergePayload(nil, v)
		}
	}
	if s.CompletedAt != nil {
		at := *s.CompletedAt
		out.CompletedAt = &at
	}
	return out
}
