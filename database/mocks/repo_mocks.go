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
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/waypointhq/waypoint/database"
	"github.com/waypointhq/waypoint/model"
)

// MockDataSource is a mock implementation of the IDataSource interface. Update methods
// run the supplied callback against the value registered with On, so tests observe the
// same read-modify-write flow the real stores perform.
type MockDataSource struct {
	mock.Mock
}

var _ database.IDataSource = (*MockDataSource)(nil)

// Session methods

func (m *MockDataSource) CreateSession(ctx context.Context, session model.Session) (model.Session, error) {
	args := m.Called(ctx, session)
	return args.Get(0).(model.Session), args.Error(1)
}

func (m *MockDataSource) GetSessionByID(ctx context.Context, id string) (*model.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Session), args.Error(1)
}

func (m *MockDataSource) GetAllSessions(ctx context.Context, limit, offset int) ([]model.Session, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.Session), args.Error(1)
}

func (m *MockDataSource) UpdateSession(ctx context.Context, id string, mutate func(*model.Session) error) (*model.Session, error) {
	args := m.Called(ctx, id, mutate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	s := args.Get(0).(*model.Session).Clone()
	if err := mutate(&s); err != nil {
		if err == database.ErrSkipUpdate {
			return args.Get(0).(*model.Session), nil
		}
		return nil, err
	}
	return &s, args.Error(1)
}

func (m *MockDataSource) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// Customer methods

func (m *MockDataSource) CreateCustomer(ctx context.Context, customer model.Customer) (model.Customer, error) {
	args := m.Called(ctx, customer)
	return args.Get(0).(model.Customer), args.Error(1)
}

func (m *MockDataSource) GetCustomerByID(ctx context.Context, id string) (*model.Customer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Customer), args.Error(1)
}

func (m *MockDataSource) UpdateCustomer(ctx context.Context, id string, mutate func(*model.Customer) error) (*model.Customer, error) {
	args := m.Called(ctx, id, mutate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	c := *args.Get(0).(*model.Customer)
	if err := mutate(&c); err != nil {
		if err == database.ErrSkipUpdate {
			return args.Get(0).(*model.Customer), nil
		}
		return nil, err
	}
	return &c, args.Error(1)
}

// Roadmap methods

func (m *MockDataSource) CreateRoadmap(ctx context.Context, roadmap model.Roadmap) (model.Roadmap, error) {
	args := m.Called(ctx, roadmap)
	return args.Get(0).(model.Roadmap), args.Error(1)
}

func (m *MockDataSource) GetRoadmapByID(ctx context.Context, id int64) (*model.Roadmap, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Roadmap), args.Error(1)
}

func (m *MockDataSource) GetRoadmapBySession(ctx context.Context, sessionID string) (*model.Roadmap, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Roadmap), args.Error(1)
}

func (m *MockDataSource) DeleteRoadmap(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) CreateMilestone(ctx context.Context, milestone model.Milestone) (model.Milestone, error) {
	args := m.Called(ctx, milestone)
	return args.Get(0).(model.Milestone), args.Error(1)
}

func (m *MockDataSource) GetMilestoneByID(ctx context.Context, id int64) (*model.Milestone, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Milestone), args.Error(1)
}

func (m *MockDataSource) UpdateMilestone(ctx context.Context, id int64, mutate func(*model.Milestone) error) (*model.Milestone, error) {
	args := m.Called(ctx, id, mutate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	ms := args.Get(0).(*model.Milestone).Clone()
	if err := mutate(&ms); err != nil {
		return nil, err
	}
	return &ms, args.Error(1)
}

func (m *MockDataSource) DeleteMilestone(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDataSource) ReorderMilestones(ctx context.Context, roadmapID int64, plan database.ReorderPlan) ([]model.Milestone, error) {
	args := m.Called(ctx, roadmapID, plan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	r := args.Get(0).(*model.Roadmap).Clone()
	placements, err := plan(&r)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.Placement, len(placements))
	for _, p := range placements {
		byID[p.ID] = p
	}
	for i, ms := range r.Milestones {
		if p, ok := byID[ms.ID]; ok {
			r.Milestones[i].Bucket = p.Bucket
			r.Milestones[i].SortIndex = p.SortIndex
		}
	}
	return r.Milestones, args.Error(1)
}
