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
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/waypointhq/waypoint/internal/apierror"
	"github.com/waypointhq/waypoint/internal/ordering"
	"github.com/waypointhq/waypoint/model"
)

// MoveTarget is where a dragged milestone is dropped. Before wins over Index; with
// neither set the milestone is appended to the bucket.
type MoveTarget struct {
	Bucket string
	Index  *int
	Before *int64
}

func boardVersionKey(sessionID string) string {
	return "roadmap:version:" + sessionID
}

func boardKey(sessionID string, version int64) string {
	return fmt.Sprintf("roadmap:session:%s:%d", sessionID, version)
}

// boardVersion is the generation of a session's board. Boards are cached under the
// generation read before their rows, and every committed write bumps it, so a read that
// raced a write can only fill a key nobody asks for again.
func (w *Waypoint) boardVersion(ctx context.Context, sessionID string) (int64, error) {
	version, err := w.redis.Get(ctx, boardVersionKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return version, err
}

func (w *Waypoint) invalidateBoard(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	version, err := w.redis.Incr(ctx, boardVersionKey(sessionID)).Result()
	if err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Warn("failed to bump roadmap cache version")
		return
	}
	if err := w.cache.Delete(ctx, boardKey(sessionID, version-1)); err != nil {
		logrus.WithError(err).WithField("session_id", sessionID).Warn("failed to invalidate roadmap cache")
	}
}

// orderingError turns an ordering failure into an API error that names the milestone
// and bucket involved.
func orderingError(err error) error {
	var oe *ordering.Error
	if !errors.As(err, &oe) {
		return err
	}
	details := map[string]interface{}{}
	if oe.ItemID != 0 {
		details["milestoneId"] = oe.ItemID
	}
	if oe.Bucket != "" {
		details["bucket"] = oe.Bucket
	}
	if errors.Is(oe.Err, ordering.ErrItemNotFound) {
		return apierror.NewAPIError(apierror.ErrNotFound, "Milestone not found in roadmap", details)
	}
	return apierror.NewAPIError(apierror.ErrInvalidInput, oe.Error(), details)
}

func illegalBucket(layout model.Layout, bucket string) error {
	return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("bucket %q is not part of layout %q", bucket, layout), map[string]interface{}{
		"bucket":  bucket,
		"buckets": layout.Buckets(),
	})
}

func validateMilestone(layout model.Layout, m *model.Milestone) error {
	if !layout.Allows(m.Bucket) {
		return illegalBucket(layout, m.Bucket)
	}
	if strings.TrimSpace(m.Title) == "" {
		return apierror.NewAPIError(apierror.ErrInvalidInput, "milestone title is required", map[string]interface{}{"bucket": m.Bucket})
	}
	if m.Status == "" {
		m.Status = model.MilestonePlanned
	}
	if !m.Status.Valid() {
		return apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown milestone status %q", m.Status), nil)
	}
	if m.Dependencies == nil {
		m.Dependencies = []string{}
	}
	return nil
}

// SeedRoadmap stores a roadmap with its milestones in one transaction. Each milestone's
// position within its bucket is its position in the input.
func (w *Waypoint) SeedRoadmap(ctx context.Context, roadmap model.Roadmap) (model.Board, error) {
	ctx, span := tracer.Start(ctx, "SeedRoadmap", trace.WithAttributes(attribute.String("session.id", roadmap.SessionID)))
	defer span.End()

	if roadmap.Layout == "" {
		roadmap.Layout = model.LayoutNowNextLater
	}
	if !roadmap.Layout.Valid() {
		return model.Board{}, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown layout %q", roadmap.Layout), nil)
	}
	if _, err := w.datasource.GetSessionByID(ctx, roadmap.SessionID); err != nil {
		return model.Board{}, err
	}

	milestones := make([]model.Milestone, len(roadmap.Milestones))
	for i, m := range roadmap.Milestones {
		m = m.Clone()
		if err := validateMilestone(roadmap.Layout, &m); err != nil {
			return model.Board{}, err
		}
		milestones[i] = m
	}
	for i, it := range ordering.Seed(model.MilestoneItems(milestones)) {
		milestones[i].SortIndex = it.SortIndex
	}
	roadmap.Milestones = milestones

	created, err := w.datasource.CreateRoadmap(ctx, roadmap)
	if err != nil {
		span.RecordError(err)
		return model.Board{}, err
	}
	w.invalidateBoard(ctx, created.SessionID)

	board := created.Board()
	w.notifyEvent(EventRoadmapCreated, board)
	return board, nil
}

// GetRoadmap returns the board of a session, served from the cache when possible.
func (w *Waypoint) GetRoadmap(ctx context.Context, sessionID string) (model.Board, error) {
	ctx, span := tracer.Start(ctx, "GetRoadmap", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	version, err := w.boardVersion(ctx, sessionID)
	cacheable := err == nil
	if err != nil {
		logrus.WithError(err).Warn("roadmap cache version read failed")
	}

	var board model.Board
	if cacheable {
		found, err := w.cache.Get(ctx, boardKey(sessionID, version), &board)
		if err != nil {
			logrus.WithError(err).Warn("roadmap cache read failed")
		}
		if found {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			return board, nil
		}
	}

	roadmap, err := w.datasource.GetRoadmapBySession(ctx, sessionID)
	if err != nil {
		return model.Board{}, err
	}
	board = roadmap.Board()
	if cacheable {
		if err := w.cache.Set(ctx, boardKey(sessionID, version), board, w.boardTTL); err != nil {
			logrus.WithError(err).Warn("roadmap cache write failed")
		}
	}
	return board, nil
}

func (w *Waypoint) GetRoadmapByID(ctx context.Context, roadmapID int64) (model.Board, error) {
	roadmap, err := w.datasource.GetRoadmapByID(ctx, roadmapID)
	if err != nil {
		return model.Board{}, err
	}
	return roadmap.Board(), nil
}

// DeleteRoadmap removes a roadmap and its milestones.
func (w *Waypoint) DeleteRoadmap(ctx context.Context, roadmapID int64) error {
	roadmap, err := w.datasource.GetRoadmapByID(ctx, roadmapID)
	if err != nil {
		return err
	}
	if err := w.datasource.DeleteRoadmap(ctx, roadmapID); err != nil {
		return err
	}
	w.invalidateBoard(ctx, roadmap.SessionID)
	return nil
}

// AddMilestone appends a milestone to the end of its bucket.
func (w *Waypoint) AddMilestone(ctx context.Context, roadmapID int64, milestone model.Milestone) (model.Milestone, error) {
	ctx, span := tracer.Start(ctx, "AddMilestone")
	defer span.End()

	roadmap, err := w.datasource.GetRoadmapByID(ctx, roadmapID)
	if err != nil {
		return model.Milestone{}, err
	}
	milestone.RoadmapID = roadmapID
	if err := validateMilestone(roadmap.Layout, &milestone); err != nil {
		return model.Milestone{}, err
	}

	created, err := w.datasource.CreateMilestone(ctx, milestone)
	if err != nil {
		span.RecordError(err)
		return model.Milestone{}, err
	}
	w.invalidateBoard(ctx, roadmap.SessionID)
	return created, nil
}

// UpdateMilestone changes content fields. Position only changes through moves.
func (w *Waypoint) UpdateMilestone(ctx context.Context, milestoneID int64, update model.MilestoneUpdate) (*model.Milestone, error) {
	if update.Status != nil && !update.Status.Valid() {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, fmt.Sprintf("unknown milestone status %q", *update.Status), nil)
	}
	if update.Title != nil && strings.TrimSpace(*update.Title) == "" {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, "milestone title is required", nil)
	}

	updated, err := w.datasource.UpdateMilestone(ctx, milestoneID, func(m *model.Milestone) error {
		update.Apply(m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	w.invalidateRoadmap(ctx, updated.RoadmapID)
	return updated, nil
}

// RemoveMilestone deletes a milestone. The bucket is not renumbered; the gap closes
// on the next move or reorder that touches it.
func (w *Waypoint) RemoveMilestone(ctx context.Context, milestoneID int64) error {
	milestone, err := w.datasource.GetMilestoneByID(ctx, milestoneID)
	if err != nil {
		return err
	}
	if err := w.datasource.DeleteMilestone(ctx, milestoneID); err != nil {
		return err
	}
	w.invalidateRoadmap(ctx, milestone.RoadmapID)
	return nil
}

func (w *Waypoint) invalidateRoadmap(ctx context.Context, roadmapID int64) {
	roadmap, err := w.datasource.GetRoadmapByID(ctx, roadmapID)
	if err != nil {
		logrus.WithError(err).WithField("roadmap_id", roadmapID).Warn("could not resolve roadmap for cache invalidation")
		return
	}
	w.invalidateBoard(ctx, roadmap.SessionID)
}

// MoveMilestone drags one milestone to a bucket position. The new order is computed
// from the rows committed under the roadmap lock, and every affected position is
// written in the same transaction.
func (w *Waypoint) MoveMilestone(ctx context.Context, milestoneID int64, target MoveTarget) (model.Board, error) {
	ctx, span := tracer.Start(ctx, "MoveMilestone", trace.WithAttributes(attribute.Int64("milestone.id", milestoneID)))
	defer span.End()

	if target.Index != nil && *target.Index < 0 {
		return model.Board{}, apierror.NewAPIError(apierror.ErrInvalidInput, "target index must not be negative", map[string]interface{}{
			"milestoneId": milestoneID,
			"bucket":      target.Bucket,
		})
	}
	milestone, err := w.datasource.GetMilestoneByID(ctx, milestoneID)
	if err != nil {
		return model.Board{}, err
	}

	var locked model.Roadmap
	milestones, err := w.datasource.ReorderMilestones(ctx, milestone.RoadmapID, func(current *model.Roadmap) ([]model.Placement, error) {
		locked = *current
		if !current.Layout.Allows(target.Bucket) {
			return nil, illegalBucket(current.Layout, target.Bucket)
		}
		batch, err := ordering.Move(model.MilestoneItems(current.Milestones), milestoneID, ordering.Target{
			Bucket: target.Bucket,
			Index:  target.Index,
			Before: target.Before,
		})
		if err != nil {
			return nil, orderingError(err)
		}
		return model.PlacementsFromItems(batch), nil
	})
	if err != nil {
		span.RecordError(err)
		return model.Board{}, err
	}

	locked.Milestones = milestones
	w.invalidateBoard(ctx, locked.SessionID)
	return locked.Board(), nil
}

// ReorderMilestones applies a caller-computed batch of positions atomically. Every bucket
// the batch touches must come out as 0..n-1 with no duplicates once the batch is laid
// over the committed rows, or nothing is written.
func (w *Waypoint) ReorderMilestones(ctx context.Context, roadmapID int64, batch []model.Placement) (model.Board, error) {
	ctx, span := tracer.Start(ctx, "ReorderMilestones", trace.WithAttributes(attribute.Int64("roadmap.id", roadmapID)))
	defer span.End()

	var locked model.Roadmap
	milestones, err := w.datasource.ReorderMilestones(ctx, roadmapID, func(current *model.Roadmap) ([]model.Placement, error) {
		locked = *current
		for _, p := range batch {
			if !current.Layout.Allows(p.Bucket) {
				return nil, illegalBucket(current.Layout, p.Bucket)
			}
		}
		changed, err := ordering.Apply(model.MilestoneItems(current.Milestones), model.ItemsFromPlacements(batch))
		if err != nil {
			return nil, orderingError(err)
		}
		return model.PlacementsFromItems(changed), nil
	})
	if err != nil {
		span.RecordError(err)
		return model.Board{}, err
	}

	locked.Milestones = milestones
	w.invalidateBoard(ctx, locked.SessionID)
	board := locked.Board()
	w.notifyEvent(EventRoadmapReordered, board)
	return board, nil
}
