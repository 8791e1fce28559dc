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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/apierror"
	"github.com/waypointhq/waypoint/internal/stage"
	"github.com/waypointhq/waypoint/model"
)

func seedMemory(t *testing.T) (*MemoryDataSource, model.Roadmap) {
	t.Helper()
	ctx := context.Background()
	ds := NewMemoryDataSource()

	_, err := ds.CreateSession(ctx, model.Session{SessionID: "ses_1", CurrentStage: stage.Idea, Data: model.StageData{}})
	require.NoError(t, err)

	r, err := ds.CreateRoadmap(ctx, model.Roadmap{
		SessionID: "ses_1",
		Name:      "Launch",
		Layout:    model.LayoutNowNextLater,
		Milestones: []model.Milestone{
			{Bucket: "now", SortIndex: 0, Title: "A", Status: model.MilestonePlanned},
			{Bucket: "now", SortIndex: 1, Title: "B", Status: model.MilestonePlanned},
			{Bucket: "next", SortIndex: 0, Title: "C", Status: model.MilestonePlanned},
		},
	})
	require.NoError(t, err)
	return ds, r
}

func TestMemory_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()

	_, err := ds.CreateSession(ctx, model.Session{SessionID: "ses_1", CurrentStage: stage.Idea})
	require.NoError(t, err)

	_, err = ds.CreateSession(ctx, model.Session{SessionID: "ses_1", CurrentStage: stage.Idea})
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	updated, err := ds.UpdateSession(ctx, "ses_1", func(s *model.Session) error {
		s.CurrentStage = stage.ProblemAnalysis
		s.SessionID = "hijack"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ses_1", updated.SessionID)

	got, err := ds.GetSessionByID(ctx, "ses_1")
	require.NoError(t, err)
	assert.Equal(t, stage.ProblemAnalysis, got.CurrentStage)

	_, err = ds.GetSessionByID(ctx, "hijack")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestMemory_UpdateSessionSkip(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()
	_, err := ds.CreateSession(ctx, model.Session{SessionID: "ses_1", CurrentStage: stage.Idea})
	require.NoError(t, err)

	s, err := ds.UpdateSession(ctx, "ses_1", func(s *model.Session) error {
		s.CurrentStage = stage.Export
		return ErrSkipUpdate
	})
	require.NoError(t, err)
	assert.Equal(t, stage.Idea, s.CurrentStage)

	got, _ := ds.GetSessionByID(ctx, "ses_1")
	assert.Equal(t, stage.Idea, got.CurrentStage)
}

func TestMemory_GetAllSessionsPaging(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Hour)
		ds.now = func() time.Time { return at }
		_, err := ds.CreateSession(ctx, model.Session{SessionID: id, CurrentStage: stage.Idea})
		require.NoError(t, err)
	}

	all, err := ds.GetAllSessions(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].SessionID)

	page2, err := ds.GetAllSessions(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	assert.Equal(t, "a", page2[0].SessionID)

	empty, err := ds.GetAllSessions(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemory_DeleteSessionsBeforeCascades(t *testing.T) {
	ctx := context.Background()
	ds, r := seedMemory(t)

	n, err := ds.DeleteSessionsBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = ds.GetRoadmapByID(ctx, r.ID)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
	_, err = ds.GetMilestoneByID(ctx, r.Milestones[0].ID)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestMemory_CustomerUpdateValidates(t *testing.T) {
	ctx := context.Background()
	ds := NewMemoryDataSource()
	c, err := model.NewCustomer("cus_1", model.CustomerOverrides{})
	require.NoError(t, err)
	created, err := ds.CreateCustomer(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created.ID)

	_, err = ds.CreateCustomer(ctx, c)
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	_, err = ds.UpdateCustomer(ctx, "cus_1", func(c *model.Customer) error {
		c.UsedAttempt = 99
		return nil
	})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	got, err := ds.GetCustomerByID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.UsedAttempt)
}

func TestMemory_RoadmapPerSession(t *testing.T) {
	ctx := context.Background()
	ds, _ := seedMemory(t)

	_, err := ds.CreateRoadmap(ctx, model.Roadmap{SessionID: "ses_1", Layout: model.LayoutQuarterly})
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	_, err = ds.CreateRoadmap(ctx, model.Roadmap{SessionID: "ghost", Layout: model.LayoutQuarterly})
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestMemory_CreateMilestoneAppends(t *testing.T) {
	ctx := context.Background()
	ds, r := seedMemory(t)

	m, err := ds.CreateMilestone(ctx, model.Milestone{RoadmapID: r.ID, Bucket: "now", Title: "D", SortIndex: 42})
	require.NoError(t, err)
	assert.Equal(t, 2, m.SortIndex)

	m, err = ds.CreateMilestone(ctx, model.Milestone{RoadmapID: r.ID, Bucket: "later", Title: "E"})
	require.NoError(t, err)
	assert.Equal(t, 0, m.SortIndex)

	_, err = ds.CreateMilestone(ctx, model.Milestone{RoadmapID: 999, Bucket: "now"})
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestMemory_ReorderMilestones(t *testing.T) {
	ctx := context.Background()
	ds, r := seedMemory(t)
	a, b := r.Milestones[0].ID, r.Milestones[1].ID

	out, err := ds.ReorderMilestones(ctx, r.ID, func(current *model.Roadmap) ([]model.Placement, error) {
		assert.Len(t, current.Milestones, 3)
		return []model.Placement{
			{ID: a, Bucket: "now", SortIndex: 1},
			{ID: b, Bucket: "now", SortIndex: 0},
		}, nil
	})
	require.NoError(t, err)
	require.Len(t, out, 3)

	got, err := ds.GetRoadmapByID(ctx, r.ID)
	require.NoError(t, err)
	board := got.Board()
	assert.Equal(t, "B", board.Buckets[0].Milestones[0].Title)
	assert.Equal(t, "A", board.Buckets[0].Milestones[1].Title)
}

func TestMemory_ReorderMilestonesRejectsDuplicatePositions(t *testing.T) {
	ctx := context.Background()
	ds, r := seedMemory(t)
	a := r.Milestones[0].ID

	_, err := ds.ReorderMilestones(ctx, r.ID, func(*model.Roadmap) ([]model.Placement, error) {
		return []model.Placement{{ID: a, Bucket: "now", SortIndex: 1}}, nil
	})
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	got, _ := ds.GetMilestoneByID(ctx, a)
	assert.Equal(t, 0, got.SortIndex)
}

func TestMemory_ReorderMilestonesForeignMilestone(t *testing.T) {
	ctx := context.Background()
	ds, r := seedMemory(t)

	_, err := ds.ReorderMilestones(ctx, r.ID, func(*model.Roadmap) ([]model.Placement, error) {
		return []model.Placement{{ID: 999, Bucket: "now", SortIndex: 0}}, nil
	})
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestMemory_UpdateMilestoneKeepsPosition(t *testing.T) {
	ctx := context.Background()
	ds, r := seedMemory(t)
	id := r.Milestones[1].ID

	updated, err := ds.UpdateMilestone(ctx, id, func(m *model.Milestone) error {
		m.Title = "B2"
		m.SortIndex = 7
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "B2", updated.Title)
	assert.Equal(t, 1, updated.SortIndex)

	require.NoError(t, ds.DeleteMilestone(ctx, id))
	assert.True(t, apierror.Is(ds.DeleteMilestone(ctx, id), apierror.ErrNotFound))
}
