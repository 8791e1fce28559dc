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
	"time"

	"github.com/waypointhq/waypoint/model"
)

// ErrSkipUpdate may be returned by an update callback to end the transaction without
// writing. The update then returns the stored value and a nil error.
var ErrSkipUpdate = errors.New("skip update")

// ReorderPlan receives the roadmap with its committed milestones, read under the roadmap
// lock, and returns the placements to write.
type ReorderPlan func(roadmap *model.Roadmap) ([]model.Placement, error)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	session  // Interface for session-related operations
	customer // Interface for customer-related operations
	roadmap  // Interface for roadmap and milestone operations
}

// session defines methods for handling workflow sessions.
type session interface {
	// CreateSession creates a new session.
	CreateSession(ctx context.Context, session model.Session) (model.Session, error)
	// GetSessionByID retrieves a session by ID.
	GetSessionByID(ctx context.Context, id string) (*model.Session, error)
	// GetAllSessions retrieves sessions, newest first.
	GetAllSessions(ctx context.Context, limit, offset int) ([]model.Session, error)
	// UpdateSession applies mutate to the session under a row lock.
	UpdateSession(ctx context.Context, id string, mutate func(*model.Session) error) (*model.Session, error)
	// DeleteSessionsBefore deletes sessions not updated since cutoff.
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// customer defines methods for handling subscription customers.
type customer interface {
	// CreateCustomer creates a new customer.
	CreateCustomer(ctx context.Context, customer model.Customer) (model.Customer, error)
	// GetCustomerByID retrieves a customer by ID.
	GetCustomerByID(ctx context.Context, id string) (*model.Customer, error)
	// UpdateCustomer applies mutate to the customer under a row lock.
	UpdateCustomer(ctx context.Context, id string, mutate func(*model.Customer) error) (*model.Customer, error)
}

// roadmap defines methods for handling roadmaps and their milestones.
type roadmap interface {
	// CreateRoadmap creates a roadmap and its milestones atomically.
	CreateRoadmap(ctx context.Context, roadmap model.Roadmap) (model.Roadmap, error)
	// GetRoadmapByID retrieves a roadmap with milestones.
	GetRoadmapByID(ctx context.Context, id int64) (*model.Roadmap, error)
	// GetRoadmapBySession retrieves the roadmap of a session.
	GetRoadmapBySession(ctx context.Context, sessionID string) (*model.Roadmap, error)
	// DeleteRoadmap deletes a roadmap and its milestones.
	DeleteRoadmap(ctx context.Context, id int64) error
	// CreateMilestone appends a milestone to its bucket.
	CreateMilestone(ctx context.Context, milestone model.Milestone) (model.Milestone, error)
	// GetMilestoneByID retrieves a milestone by ID.
	GetMilestoneByID(ctx context.Context, id int64) (*model.Milestone, error)
	// UpdateMilestone updates content fields under a row lock.
	UpdateMilestone(ctx context.Context, id int64, mutate func(*model.Milestone) error) (*model.Milestone, error)
	// DeleteMilestone deletes a milestone without renumbering.
	DeleteMilestone(ctx context.Context, id int64) error
	// ReorderMilestones writes placements computed from committed rows.
	ReorderMilestones(ctx context.Context, roadmapID int64, plan ReorderPlan) ([]model.Milestone, error)
}
