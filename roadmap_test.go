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

package waypoint

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/config"
	"github.com/waypointhq/waypoint/database"
	"github.com/waypointhq/waypoint/internal/apierror"
	"github.com/waypointhq/waypoint/model"
)

func titles(b model.Board, bucket string) []string {
	for _, col := range b.Buckets {
		if col.Bucket == bucket {
			out := make([]string, 0, len(col.Milestones))
			for _, m := range col.Milestones {
				out = append(out, m.Title)
			}
			return out
		}
	}
	return nil
}

func milestoneID(t *testing.T, b model.Board, title string) int64 {
	t.Helper()
	for _, col := range b.Buckets {
		for _, m := range col.Milestones {
			if m.Title == title {
				return m.ID
			}
		}
	}
	t.Fatalf("milestone %q not on board", title)
	return 0
}

func assertContiguous(t *testing.T, b model.Board) {
	t.Helper()
	for _, col := range b.Buckets {
		for i, m := range col.Milestones {
			assert.Equal(t, i, m.SortIndex, "bucket %s", col.Bucket)
		}
	}
}

func seedBoard(t *testing.T, w *Waypoint, milestones ...model.Milestone) model.Board {
	t.Helper()
	ctx := context.Background()
	_, err := w.CreateSession(ctx, "ses_1", model.SessionPatch{})
	require.NoError(t, err)
	board, err := w.SeedRoadmap(ctx, model.Roadmap{SessionID: "ses_1", Name: "Launch", Milestones: milestones})
	require.NoError(t, err)
	return board
}

func ms(bucket string, titles ...string) []model.Milestone {
	out := make([]model.Milestone, len(titles))
	for i, title := range titles {
		out[i] = model.Milestone{Bucket: bucket, Title: title, SortIndex: 99}
	}
	return out
}

func TestSeedRoadmap_PositionsFollowInput(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	board := seedBoard(t, w, append(ms("now", "A", "B"), append(ms("later", "X"), ms("now", "C")...)...)...)

	assert.Equal(t, model.LayoutNowNextLater, board.Layout)
	assert.Equal(t, []string{"A", "B", "C"}, titles(board, "now"))
	assert.Equal(t, []string{}, titles(board, "next"))
	assert.Equal(t, []string{"X"}, titles(board, "later"))
	assertContiguous(t, board)
	assert.Equal(t, model.MilestonePlanned, board.Buckets[0].Milestones[0].Status)
}

func TestSeedRoadmap_Errors(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	ctx := context.Background()

	_, err := w.SeedRoadmap(ctx, model.Roadmap{SessionID: "ghost"})
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))

	_, err = w.CreateSession(ctx, "ses_1", model.SessionPatch{})
	require.NoError(t, err)

	_, err = w.SeedRoadmap(ctx, model.Roadmap{SessionID: "ses_1", Layout: "kanban"})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	_, err = w.SeedRoadmap(ctx, model.Roadmap{SessionID: "ses_1", Milestones: ms("q1", "A")})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	_, err = w.SeedRoadmap(ctx, model.Roadmap{SessionID: "ses_1", Milestones: ms("now", "")})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	_, err = w.SeedRoadmap(ctx, model.Roadmap{SessionID: "ses_1", Layout: model.LayoutQuarterly, Milestones: ms("q1", "A")})
	require.NoError(t, err)
	_, err = w.SeedRoadmap(ctx, model.Roadmap{SessionID: "ses_1"})
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
}

func TestMoveMilestone_WithinBucket(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	board := seedBoard(t, w, ms("now", "A", "B", "C")...)

	moved, err := w.MoveMilestone(context.Background(), milestoneID(t, board, "C"), MoveTarget{Bucket: "now", Index: model.IntPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, titles(moved, "now"))
	assertContiguous(t, moved)
}

func TestMoveMilestone_AcrossBuckets(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	board := seedBoard(t, w, ms("now", "A", "B")...)

	moved, err := w.MoveMilestone(context.Background(), milestoneID(t, board, "B"), MoveTarget{Bucket: "next"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, titles(moved, "now"))
	assert.Equal(t, []string{"B"}, titles(moved, "next"))
	assertContiguous(t, moved)
}

func TestMoveMilestone_DropOntoMilestone(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	board := seedBoard(t, w, append(ms("now", "A", "B"), ms("next", "X", "Y")...)...)
	before := milestoneID(t, board, "Y")

	moved, err := w.MoveMilestone(context.Background(), milestoneID(t, board, "A"), MoveTarget{Bucket: "next", Before: &before})
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, titles(moved, "now"))
	assert.Equal(t, []string{"X", "A", "Y"}, titles(moved, "next"))
	assertContiguous(t, moved)
}

func TestMoveMilestone_OwnPositionIsNoop(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	board := seedBoard(t, w, ms("now", "A", "B", "C")...)

	moved, err := w.MoveMilestone(context.Background(), milestoneID(t, board, "B"), MoveTarget{Bucket: "now", Index: model.IntPtr(1)})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, titles(moved, "now"))
}

func TestMoveMilestone_ClampsAndRejects(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	ctx := context.Background()
	board := seedBoard(t, w, ms("now", "A", "B", "C")...)
	a := milestoneID(t, board, "A")

	moved, err := w.MoveMilestone(ctx, a, MoveTarget{Bucket: "now", Index: model.IntPtr(40)})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A"}, titles(moved, "now"))

	_, err = w.MoveMilestone(ctx, a, MoveTarget{Bucket: "now", Index: model.IntPtr(-1)})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	_, err = w.MoveMilestone(ctx, a, MoveTarget{Bucket: "q3"})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	_, err = w.MoveMilestone(ctx, 9999, MoveTarget{Bucket: "now"})
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestMoveMilestone_ClosesGapLeftByRemove(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	ctx := context.Background()
	board := seedBoard(t, w, ms("now", "A", "B", "C", "D")...)

	require.NoError(t, w.RemoveMilestone(ctx, milestoneID(t, board, "B")))
	moved, err := w.MoveMilestone(ctx, milestoneID(t, board, "D"), MoveTarget{Bucket: "now", Index: model.IntPtr(0)})
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "A", "C"}, titles(moved, "now"))
	assertContiguous(t, moved)
}

func TestMoveMilestone_SequenceKeepsBucketsContiguous(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	ctx := context.Background()
	board := seedBoard(t, w, append(ms("now", "A", "B", "C"), ms("later", "X", "Y")...)...)

	moves := []struct {
		title string
		to    MoveTarget
	}{
		{"A", MoveTarget{Bucket: "later", Index: model.IntPtr(1)}},
		{"Y", MoveTarget{Bucket: "next"}},
		{"C", MoveTarget{Bucket: "now", Index: model.IntPtr(0)}},
		{"X", MoveTarget{Bucket: "next", Index: model.IntPtr(0)}},
		{"B", MoveTarget{Bucket: "later", Index: model.IntPtr(5)}},
	}
	for _, mv := range moves {
		var err error
		board, err = w.MoveMilestone(ctx, milestoneID(t, board, mv.title), mv.to)
		require.NoError(t, err)
		assertContiguous(t, board)
	}
	assert.Equal(t, []string{"C"}, titles(board, "now"))
	assert.Equal(t, []string{"X", "Y"}, titles(board, "next"))
	assert.Equal(t, []string{"A", "B"}, titles(board, "later"))
}

func TestMoveMilestone_ConcurrentMovesStayContiguous(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	ctx := context.Background()
	seeded := append(ms("now", "A", "B", "C"), ms("next", "D", "E")...)
	seeded = append(seeded, ms("later", "F")...)
	board := seedBoard(t, w, seeded...)

	ids := make([]int64, 0, 6)
	for _, title := range []string{"A", "B", "C", "D", "E", "F"} {
		ids = append(ids, milestoneID(t, board, title))
	}
	buckets := []string{"now", "next", "later"}

	var wg sync.WaitGroup
	errs := make(chan error, 60)
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := w.MoveMilestone(ctx, ids[i%len(ids)], MoveTarget{
				Bucket: buckets[i%len(buckets)],
				Index:  model.IntPtr(i % 4),
			})
			if err != nil {
				errs <- fmt.Errorf("move %d: %w", i, err)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	final, err := w.GetRoadmapByID(ctx, board.ID)
	require.NoError(t, err)
	assertContiguous(t, final)
	seen := map[int64]bool{}
	for _, col := range final.Buckets {
		for _, m := range col.Milestones {
			assert.False(t, seen[m.ID], "milestone %d placed twice", m.ID)
			seen[m.ID] = true
		}
	}
	assert.Len(t, seen, len(ids))
}

func TestReorderMilestones_AppliesBatch(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	board := seedBoard(t, w, ms("now", "A", "B", "C")...)
	a, b, c := milestoneID(t, board, "A"), milestoneID(t, board, "B"), milestoneID(t, board, "C")

	out, err := w.ReorderMilestones(context.Background(), board.ID, []model.Placement{
		{ID: c, Bucket: "now", SortIndex: 0},
		{ID: a, Bucket: "now", SortIndex: 1},
		{ID: b, Bucket: "next", SortIndex: 0},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A"}, titles(out, "now"))
	assert.Equal(t, []string{"B"}, titles(out, "next"))
}

func TestReorderMilestones_RejectsGapsAndDuplicates(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	ctx := context.Background()
	board := seedBoard(t, w, ms("now", "A", "B", "C")...)
	a, b := milestoneID(t, board, "A"), milestoneID(t, board, "B")

	_, err := w.ReorderMilestones(ctx, board.ID, []model.Placement{{ID: a, Bucket: "now", SortIndex: 1}})
	require.Error(t, err)
	var apiErr apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierror.ErrInvalidInput, apiErr.Code)
	assert.Equal(t, "now", apiErr.Details.(map[string]interface{})["bucket"])

	_, err = w.ReorderMilestones(ctx, board.ID, []model.Placement{{ID: b, Bucket: "next", SortIndex: 0}})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	after, err := w.GetRoadmapByID(ctx, board.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, titles(after, "now"))
}

func TestReorderMilestones_UnknownMilestoneAndBucket(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	ctx := context.Background()
	board := seedBoard(t, w, ms("now", "A")...)

	_, err := w.ReorderMilestones(ctx, board.ID, []model.Placement{{ID: 777, Bucket: "now", SortIndex: 0}})
	var apiErr apierror.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.Equal(t, int64(777), apiErr.Details.(map[string]interface{})["milestoneId"])

	_, err = w.ReorderMilestones(ctx, board.ID, []model.Placement{{ID: milestoneID(t, board, "A"), Bucket: "q2", SortIndex: 0}})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	_, err = w.ReorderMilestones(ctx, 4242, nil)
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

func TestGetRoadmap_CachesBoardAndInvalidates(t *testing.T) {
	w, _, mr := newTestWaypoint(t)
	ctx := context.Background()
	board := seedBoard(t, w, ms("now", "A", "B")...)

	got, err := w.GetRoadmap(ctx, "ses_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, titles(got, "now"))
	before, err := w.boardVersion(ctx, "ses_1")
	require.NoError(t, err)
	assert.True(t, mr.Exists(boardKey("ses_1", before)))

	_, err = w.MoveMilestone(ctx, milestoneID(t, board, "B"), MoveTarget{Bucket: "now", Index: model.IntPtr(0)})
	require.NoError(t, err)
	after, err := w.boardVersion(ctx, "ses_1")
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
	assert.False(t, mr.Exists(boardKey("ses_1", before)))
	assert.False(t, mr.Exists(boardKey("ses_1", after)))

	got, err = w.GetRoadmap(ctx, "ses_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, titles(got, "now"))

	_, err = w.GetRoadmap(ctx, "ses_none")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}

// pausedBoardReads holds GetRoadmapBySession after the rows are read until released.
type pausedBoardReads struct {
	*database.MemoryDataSource
	read    chan struct{}
	release chan struct{}
}

func (p *pausedBoardReads) GetRoadmapBySession(ctx context.Context, sessionID string) (*model.Roadmap, error) {
	roadmap, err := p.MemoryDataSource.GetRoadmapBySession(ctx, sessionID)
	if p.read != nil {
		p.read <- struct{}{}
		<-p.release
	}
	return roadmap, err
}

func TestGetRoadmap_ReadRacingMoveIsNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	config.MockConfig(testConfig(mr))
	ds := &pausedBoardReads{MemoryDataSource: database.NewMemoryDataSource()}
	w, err := NewWaypoint(ds)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	ctx := context.Background()
	board := seedBoard(t, w, ms("now", "A", "B")...)
	ds.read = make(chan struct{})
	ds.release = make(chan struct{})

	stale := make(chan model.Board, 1)
	go func() {
		b, err := w.GetRoadmap(ctx, "ses_1")
		assert.NoError(t, err)
		stale <- b
	}()
	<-ds.read
	ds.read = nil

	_, err = w.MoveMilestone(ctx, milestoneID(t, board, "B"), MoveTarget{Bucket: "now", Index: model.IntPtr(0)})
	require.NoError(t, err)
	close(ds.release)
	assert.Equal(t, []string{"A", "B"}, titles(<-stale, "now"))

	got, err := w.GetRoadmap(ctx, "ses_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, titles(got, "now"))

	cached, err := w.GetRoadmap(ctx, "ses_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, titles(cached, "now"))
}

func TestGetRoadmap_ServesFromCache(t *testing.T) {
	w, ds, _ := newTestWaypoint(t)
	ctx := context.Background()
	board := seedBoard(t, w, ms("now", "A")...)

	_, err := w.GetRoadmap(ctx, "ses_1")
	require.NoError(t, err)

	// A write behind the engine's back is not seen until the entry goes away.
	require.NoError(t, ds.DeleteMilestone(ctx, milestoneID(t, board, "A")))
	cached, err := w.GetRoadmap(ctx, "ses_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, titles(cached, "now"))
}

func TestGetRoadmap_SurvivesRedisOutage(t *testing.T) {
	w, _, mr := newTestWaypoint(t)
	seedBoard(t, w, ms("now", "A")...)
	mr.Close()

	got, err := w.GetRoadmap(context.Background(), "ses_1")
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, titles(got, "now"))
}

func TestMilestoneCRUD(t *testing.T) {
	w, _, _ := newTestWaypoint(t)
	ctx := context.Background()
	board := seedBoard(t, w, ms("now", "A")...)

	added, err := w.AddMilestone(ctx, board.ID, model.Milestone{Bucket: "now", Title: "B", SortIndex: 12})
	require.NoError(t, err)
	assert.Equal(t, 1, added.SortIndex)
	assert.Equal(t, model.MilestonePlanned, added.Status)

	_, err = w.AddMilestone(ctx, board.ID, model.Milestone{Bucket: "q1", Title: "C"})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))
	_, err = w.AddMilestone(ctx, 999, model.Milestone{Bucket: "now", Title: "C"})
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))

	done := model.MilestoneDone
	updated, err := w.UpdateMilestone(ctx, added.ID, model.MilestoneUpdate{
		Title:        model.StringPtr("B2"),
		Status:       &done,
		Dependencies: []string{"A"},
	})
	require.NoError(t, err)
	assert.Equal(t, "B2", updated.Title)
	assert.Equal(t, model.MilestoneDone, updated.Status)
	assert.Equal(t, 1, updated.SortIndex)

	bogus := model.MilestoneStatus("archived")
	_, err = w.UpdateMilestone(ctx, added.ID, model.MilestoneUpdate{Status: &bogus})
	assert.True(t, apierror.Is(err, apierror.ErrInvalidInput))

	require.NoError(t, w.RemoveMilestone(ctx, added.ID))
	assert.True(t, apierror.Is(w.RemoveMilestone(ctx, added.ID), apierror.ErrNotFound))

	require.NoError(t, w.DeleteRoadmap(ctx, board.ID))
	_, err = w.GetRoadmap(ctx, "ses_1")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))
}
