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
	"time"

	"github.com/waypointhq/waypoint/internal/ordering"
)

type Layout string

const (
	LayoutNowNextLater Layout = "now-next-later"
	LayoutQuarterly    Layout = "quarterly"
)

var layoutBuckets = map[Layout][]string{
	LayoutNowNextLater: {"now", "next", "later"},
	LayoutQuarterly:    {"q1", "q2", "q3", "q4"},
}

// Valid reports whether l is a known layout.
func (l Layout) Valid() bool {
	_, ok := layoutBuckets[l]
	return ok
}

// Buckets returns the buckets of the layout in display order.
func (l Layout) Buckets() []string {
	return append([]string(nil), layoutBuckets[l]...)
}

// Allows reports whether bucket belongs to the layout.
func (l Layout) Allows(bucket string) bool {
	for _, b := range layoutBuckets[l] {
		if b == bucket {
			return true
		}
	}
	return false
}

type MilestoneStatus string

const (
	MilestonePlanned    MilestoneStatus = "planned"
	MilestoneInProgress MilestoneStatus = "in_progress"
	MilestoneDone       MilestoneStatus = "done"
	MilestoneBlocked    MilestoneStatus = "blocked"
)

func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestonePlanned, MilestoneInProgress, MilestoneDone, MilestoneBlocked:
		return true
	}
	return false
}

type Roadmap struct {
	ID         int64       `json:"id"`
	SessionID  string      `json:"sessionId"`
	Name       string      `json:"name"`
	Layout     Layout      `json:"layout"`
	Milestones []Milestone `json:"milestones,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

type Milestone struct {
	ID           int64           `json:"id"`
	RoadmapID    int64           `json:"roadmapId"`
	Bucket       string          `json:"bucket"`
	SortIndex    int             `json:"sortIndex"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Category     string          `json:"category,omitempty"`
	Status       MilestoneStatus `json:"status"`
	Dependencies []string        `json:"dependencies"`
	DueDate      *time.Time      `json:"dueDate,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// MilestoneUpdate changes content fields. Position is only changed through moves.
type MilestoneUpdate struct {
	Title        *string
	Description  *string
	Category     *string
	Status       *MilestoneStatus
	Dependencies []string
	DueDate      *time.Time
	ClearDueDate bool
}

// Apply copies the supplied fields onto m.
func (u MilestoneUpdate) Apply(m *Milestone) {
	if u.Title != nil {
		m.Title = *u.Title
	}
	if u.Description != nil {
		m.Description = *u.Description
	}
	if u.Category != nil {
		m.Category = *u.Category
	}
	if u.Status != nil {
		m.Status = *u.Status
	}
	if u.Dependencies != nil {
		m.Dependencies = append([]string{}, u.Dependencies...)
	}
	if u.ClearDueDate {
		m.DueDate = nil
	} else if u.DueDate != nil {
		due := *u.DueDate
		m.DueDate = &due
	}
}

// Placement is the position of one milestone.
type Placement struct {
	ID        int64  `json:"id"`
	Bucket    string `json:"bucket"`
	SortIndex int    `json:"sortIndex"`
}

type BoardBucket struct {
	Bucket     string      `json:"bucket"`
	Milestones []Milestone `json:"milestones"`
}

// Board is a roadmap with its milestones grouped by bucket in layout order.
type Board struct {
	ID        int64         `json:"id"`
	SessionID string        `json:"sessionId"`
	Name      string        `json:"name"`
	Layout    Layout        `json:"layout"`
	Buckets   []BoardBucket `json:"buckets"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// Board groups the milestones by bucket, each bucket ordered by sortIndex then id.
// Milestones in buckets the layout does not know are left out.
func (r *Roadmap) Board() Board {
	byID := make(map[int64]Milestone, len(r.Milestones))
	for _, m := range r.Milestones {
		byID[m.ID] = m
	}
	groups := ordering.Group(MilestoneItems(r.Milestones))

	board := Board{
		ID:        r.ID,
		SessionID: r.SessionID,
		Name:      r.Name,
		Layout:    r.Layout,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Buckets:   make([]BoardBucket, 0, len(layoutBuckets[r.Layout])),
	}
	for _, bucket := range r.Layout.Buckets() {
		col := BoardBucket{Bucket: bucket, Milestones: []Milestone{}}
		for _, it := range groups[bucket] {
			col.Milestones = append(col.Milestones, byID[it.ID])
		}
		board.Buckets = append(board.Buckets, col)
	}
	return board
}

// MilestoneItems projects milestones onto ordering items.
func MilestoneItems(ms []Milestone) []ordering.Item {
	items := make([]ordering.Item, len(ms))
	for i, m := range ms {
		items[i] = ordering.Item{ID: m.ID, Bucket: m.Bucket, SortIndex: m.SortIndex}
	}
	return items
}

func PlacementsFromItems(items []ordering.Item) []Placement {
	out := make([]Placement, len(items))
	for i, it := range items {
		out[i] = Placement{ID: it.ID, Bucket: it.Bucket, SortIndex: it.SortIndex}
	}
	return out
}

func ItemsFromPlacements(ps []Placement) []ordering.Item {
	out := make([]ordering.Item, len(ps))
	for i, p := range ps {
		out[i] = ordering.Item{ID: p.ID, Bucket: p.Bucket, SortIndex: p.SortIndex}
	}
	return out
}

// Clone copies the roadmap and its milestones.
func (r Roadmap) Clone() Roadmap {
	out := r
	if r.Milestones != nil {
		out.Milestones = make([]Milestone, len(r.Milestones))
		for i, m := range r.Milestones {
			out.Milestones[i] = m.Clone()
		}
	}
	return out
}

func (m Milestone) Clone() Milestone {
	out := m
	out.Dependencies = append([]string{}, m.Dependencies...)
	if m.DueDate != nil {
		due := *m.DueDate
		out.DueDate = &due
	}
	return out
}
