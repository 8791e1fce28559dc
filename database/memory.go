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

package database

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/waypointhq/waypoint/internal/apierror"
	"github.com/waypointhq/waypoint/model"
)

// MemoryDataSource keeps all state in process memory. Every call runs under one mutex and
// mutations work on copies that are stored only when the whole operation succeeds, which
// gives the same all-or-nothing behaviour as a database transaction.
type MemoryDataSource struct {
	mu sync.Mutex

	sessions   map[string]model.Session
	customers  map[string]model.Customer
	roadmaps   map[int64]model.Roadmap
	milestones map[int64]model.Milestone

	nextCustomerID  int64
	nextRoadmapID   int64
	nextMilestoneID int64

	now func() time.Time
}

func NewMemoryDataSource() *MemoryDataSource {
	return &MemoryDataSource{
		sessions:   make(map[string]model.Session),
		customers:  make(map[string]model.Customer),
		roadmaps:   make(map[int64]model.Roadmap),
		milestones: make(map[int64]model.Milestone),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func notFound(entity string, details interface{}) error {
	return apierror.NewAPIError(apierror.ErrNotFound, entity+" not found", details)
}

func conflict(entity string, details interface{}) error {
	return apierror.NewAPIError(apierror.ErrConflict, entity+" already exists", details)
}

func (m *MemoryDataSource) CreateSession(ctx context.Context, session model.Session) (model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return model.Session{}, err
	}

	if _, exists := m.sessions[session.SessionID]; exists {
		return model.Session{}, conflict("Session", map[string]string{"sessionId": session.SessionID})
	}
	now := m.now()
	session.CreatedAt = now
	session.UpdatedAt = now
	m.sessions[session.SessionID] = session.Clone()
	return session, nil
}

func (m *MemoryDataSource) GetSessionByID(_ context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, notFound("Session", map[string]string{"sessionId": id})
	}
	out := s.Clone()
	return &out, nil
}

func (m *MemoryDataSource) GetAllSessions(_ context.Context, limit, offset int) ([]model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	all := make([]model.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].SessionID < all[j].SessionID
	})
	return page(all, limit, offset), nil
}

func page[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}

func (m *MemoryDataSource) UpdateSession(ctx context.Context, id string, mutate func(*model.Session) error) (*model.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, ok := m.sessions[id]
	if !ok {
		return nil, notFound("Session", map[string]string{"sessionId": id})
	}

	updated := current.Clone()
	if err := mutate(&updated); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			out := current.Clone()
			return &out, nil
		}
		return nil, err
	}
	updated.SessionID = current.SessionID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = m.now()
	m.sessions[id] = updated.Clone()
	return &updated, nil
}

func (m *MemoryDataSource) DeleteSessionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for id, s := range m.sessions {
		if !s.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(m.sessions, id)
		n++
		for rid, r := range m.roadmaps {
			if r.SessionID == id {
				m.deleteRoadmapLocked(rid)
			}
		}
	}
	return n, nil
}

func (m *MemoryDataSource) CreateCustomer(ctx context.Context, customer model.Customer) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return model.Customer{}, err
	}

	if _, exists := m.customers[customer.CustomerID]; exists {
		return model.Customer{}, conflict("Customer", map[string]string{"customer_id": customer.CustomerID})
	}
	m.nextCustomerID++
	now := m.now()
	customer.ID = m.nextCustomerID
	customer.CreatedAt = now
	customer.UpdatedAt = now
	m.customers[customer.CustomerID] = customer
	return customer, nil
}

func (m *MemoryDataSource) GetCustomerByID(_ context.Context, id string) (*model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.customers[id]
	if !ok {
		return nil, notFound("Customer", map[string]string{"customer_id": id})
	}
	return &c, nil
}

func (m *MemoryDataSource) UpdateCustomer(ctx context.Context, id string, mutate func(*model.Customer) error) (*model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, ok := m.customers[id]
	if !ok {
		return nil, notFound("Customer", map[string]string{"customer_id": id})
	}

	updated := current
	if err := mutate(&updated); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return &current, nil
		}
		return nil, err
	}
	if err := updated.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	updated.UpdatedAt = m.now()
	m.customers[id] = updated
	return &updated, nil
}

func (m *MemoryDataSource) CreateRoadmap(ctx context.Context, roadmap model.Roadmap) (model.Roadmap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return model.Roadmap{}, err
	}

	if _, ok := m.sessions[roadmap.SessionID]; !ok {
		return model.Roadmap{}, notFound("Session", map[string]string{"sessionId": roadmap.SessionID})
	}
	for _, r := range m.roadmaps {
		if r.SessionID == roadmap.SessionID {
			return model.Roadmap{}, conflict("Roadmap", map[string]string{"sessionId": roadmap.SessionID})
		}
	}

	now := m.now()
	m.nextRoadmapID++
	out := roadmap.Clone()
	out.ID = m.nextRoadmapID
	out.CreatedAt = now
	out.UpdatedAt = now
	for i := range out.Milestones {
		m.nextMilestoneID++
		out.Milestones[i].ID = m.nextMilestoneID
		out.Milestones[i].RoadmapID = out.ID
		out.Milestones[i].CreatedAt = now
		out.Milestones[i].UpdatedAt = now
		m.milestones[out.Milestones[i].ID] = out.Milestones[i].Clone()
	}

	stored := out
	stored.Milestones = nil
	m.roadmaps[out.ID] = stored
	return out, nil
}

// roadmapLocked returns a copy of the roadmap with its milestones sorted by bucket and
// position. Callers hold m.mu.
func (m *MemoryDataSource) roadmapLocked(id int64) (*model.Roadmap, bool) {
	r, ok := m.roadmaps[id]
	if !ok {
		return nil, false
	}
	out := r.Clone()
	out.Milestones = []model.Milestone{}
	for _, ms := range m.milestones {
		if ms.RoadmapID == id {
			out.Milestones = append(out.Milestones, ms.Clone())
		}
	}
	sort.Slice(out.Milestones, func(i, j int) bool {
		a, b := out.Milestones[i], out.Milestones[j]
		if a.Bucket != b.Bucket {
			return a.Bucket < b.Bucket
		}
		if a.SortIndex != b.SortIndex {
			return a.SortIndex < b.SortIndex
		}
		return a.ID < b.ID
	})
	return &out, true
}

func (m *MemoryDataSource) GetRoadmapByID(_ context.Context, id int64) (*model.Roadmap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.roadmapLocked(id)
	if !ok {
		return nil, notFound("Roadmap", map[string]int64{"roadmapId": id})
	}
	return r, nil
}

func (m *MemoryDataSource) GetRoadmapBySession(_ context.Context, sessionID string) (*model.Roadmap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, r := range m.roadmaps {
		if r.SessionID == sessionID {
			out, _ := m.roadmapLocked(id)
			return out, nil
		}
	}
	return nil, notFound("Roadmap", map[string]string{"sessionId": sessionID})
}

func (m *MemoryDataSource) DeleteRoadmap(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.roadmaps[id]; !ok {
		return notFound("Roadmap", map[string]int64{"roadmapId": id})
	}
	m.deleteRoadmapLocked(id)
	return nil
}

func (m *MemoryDataSource) deleteRoadmapLocked(id int64) {
	delete(m.roadmaps, id)
	for mid, ms := range m.milestones {
		if ms.RoadmapID == id {
			delete(m.milestones, mid)
		}
	}
}

func (m *MemoryDataSource) CreateMilestone(ctx context.Context, milestone model.Milestone) (model.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return model.Milestone{}, err
	}

	if _, ok := m.roadmaps[milestone.RoadmapID]; !ok {
		return model.Milestone{}, notFound("Roadmap", map[string]int64{"roadmapId": milestone.RoadmapID})
	}

	next := 0
	for _, ms := range m.milestones {
		if ms.RoadmapID == milestone.RoadmapID && ms.Bucket == milestone.Bucket && ms.SortIndex >= next {
			next = ms.SortIndex + 1
		}
	}

	now := m.now()
	m.nextMilestoneID++
	out := milestone.Clone()
	out.ID = m.nextMilestoneID
	out.SortIndex = next
	out.CreatedAt = now
	out.UpdatedAt = now
	m.milestones[out.ID] = out.Clone()
	return out, nil
}

func (m *MemoryDataSource) GetMilestoneByID(_ context.Context, id int64) (*model.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.milestones[id]
	if !ok {
		return nil, notFound("Milestone", map[string]int64{"milestoneId": id})
	}
	out := ms.Clone()
	return &out, nil
}

func (m *MemoryDataSource) UpdateMilestone(ctx context.Context, id int64, mutate func(*model.Milestone) error) (*model.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	current, ok := m.milestones[id]
	if !ok {
		return nil, notFound("Milestone", map[string]int64{"milestoneId": id})
	}

	updated := current.Clone()
	if err := mutate(&updated); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			out := current.Clone()
			return &out, nil
		}
		return nil, err
	}
	updated.ID, updated.RoadmapID = current.ID, current.RoadmapID
	updated.Bucket, updated.SortIndex = current.Bucket, current.SortIndex
	updated.UpdatedAt = m.now()
	m.milestones[id] = updated.Clone()
	return &updated, nil
}

func (m *MemoryDataSource) DeleteMilestone(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.milestones[id]; !ok {
		return notFound("Milestone", map[string]int64{"milestoneId": id})
	}
	delete(m.milestones, id)
	return nil
}

func (m *MemoryDataSource) ReorderMilestones(ctx context.Context, roadmapID int64, plan ReorderPlan) ([]model.Milestone, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, ok := m.roadmapLocked(roadmapID)
	if !ok {
		return nil, notFound("Roadmap", map[string]int64{"roadmapId": roadmapID})
	}

	placements, err := plan(r)
	if err != nil {
		return nil, err
	}
	if len(placements) == 0 {
		return r.Milestones, nil
	}

	staged := make(map[int64]model.Milestone, len(placements))
	seen := make(map[position]int64)
	now := m.now()
	for _, p := range placements {
		ms, ok := m.milestones[p.ID]
		if !ok || ms.RoadmapID != roadmapID {
			return nil, notFound("Milestone", p)
		}
		ms = ms.Clone()
		ms.Bucket = p.Bucket
		ms.SortIndex = p.SortIndex
		ms.UpdatedAt = now
		staged[p.ID] = ms
	}

	// The position key is checked once the whole batch is applied, like a deferred
	// unique constraint.
	for id, ms := range m.milestones {
		if ms.RoadmapID != roadmapID {
			continue
		}
		if s, ok := staged[id]; ok {
			ms = s
		}
		key := position{bucket: ms.Bucket, index: ms.SortIndex}
		if other, dup := seen[key]; dup {
			return nil, apierror.NewAPIError(apierror.ErrConflict, "Milestone position already taken",
				map[string]interface{}{"bucket": ms.Bucket, "sortIndex": ms.SortIndex, "milestoneIds": []int64{other, id}})
		}
		seen[key] = id
	}

	for id, ms := range staged {
		m.milestones[id] = ms
	}
	out, _ := m.roadmapLocked(roadmapID)
	return out.Milestones, nil
}

type position struct {
	bucket string
	index  int
}
