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
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/lib/pq"

	"github.com/waypointhq/waypoint/internal/apierror"
	"github.com/waypointhq/waypoint/internal/ordering"
	"github.com/waypointhq/waypoint/model"
)

const (
	roadmapColumns   = `id, session_id, name, layout, created_at, updated_at`
	milestoneColumns = `id, roadmap_id, bucket, sort_index, title, description, category, status, dependencies, due_date, created_at, updated_at`
)

func scanRoadmap(row rowScanner) (*model.Roadmap, error) {
	r := &model.Roadmap{}
	var layout string
	if err := row.Scan(&r.ID, &r.SessionID, &r.Name, &layout, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Layout = model.Layout(layout)
	return r, nil
}

func scanMilestone(row rowScanner) (*model.Milestone, error) {
	m := &model.Milestone{}
	var (
		status  string
		dueDate sql.NullTime
		deps    []string
	)
	err := row.Scan(&m.ID, &m.RoadmapID, &m.Bucket, &m.SortIndex, &m.Title, &m.Description, &m.Category,
		&status, pq.Array(&deps), &dueDate, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Status = model.MilestoneStatus(status)
	m.Dependencies = append([]string{}, deps...)
	if dueDate.Valid {
		due := dueDate.Time
		m.DueDate = &due
	}
	return m, nil
}

func loadMilestones(ctx context.Context, q queryer, roadmapID int64) ([]model.Milestone, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+milestoneColumns+`
		FROM waypoint.milestones
		WHERE roadmap_id = $1
		ORDER BY bucket, sort_index, id
	`, roadmapID)
	if err != nil {
		return nil, storeError(err, "Milestones", "retrieve")
	}
	defer rows.Close()

	milestones := []model.Milestone{}
	for rows.Next() {
		m, err := scanMilestone(rows)
		if err != nil {
			return nil, storeError(err, "Milestone", "scan")
		}
		milestones = append(milestones, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over milestones", err)
	}
	return milestones, nil
}

// dependencies keeps a nil slice from being written as NULL.
func dependencies(deps []string) []string {
	if deps == nil {
		return []string{}
	}
	return deps
}

func insertMilestone(ctx context.Context, tx *sql.Tx, m *model.Milestone) error {
	return tx.QueryRowContext(ctx, `
		INSERT INTO waypoint.milestones (roadmap_id, bucket, sort_index, title, description, category, status, dependencies, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id
	`, m.RoadmapID, m.Bucket, m.SortIndex, m.Title, m.Description, m.Category, string(m.Status),
		pq.Array(dependencies(m.Dependencies)), nullTime(m.DueDate), m.CreatedAt, m.UpdatedAt).Scan(&m.ID)
}

// CreateRoadmap inserts the roadmap and all of its milestones in one transaction. The
// milestones must already carry their sort indexes.
func (d Datasource) CreateRoadmap(ctx context.Context, roadmap model.Roadmap) (model.Roadmap, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return model.Roadmap{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	now := time.Now().UTC()
	roadmap.CreatedAt = now
	roadmap.UpdatedAt = now

	err = tx.QueryRowContext(ctx, `
		INSERT INTO waypoint.roadmaps (session_id, name, layout, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, roadmap.SessionID, roadmap.Name, string(roadmap.Layout), roadmap.CreatedAt, roadmap.UpdatedAt).Scan(&roadmap.ID)
	if err != nil {
		return model.Roadmap{}, storeError(err, "Roadmap", "create")
	}

	for i := range roadmap.Milestones {
		m := &roadmap.Milestones[i]
		m.RoadmapID = roadmap.ID
		m.CreatedAt = now
		m.UpdatedAt = now
		if err := insertMilestone(ctx, tx, m); err != nil {
			return model.Roadmap{}, storeError(err, "Milestone", "create")
		}
	}

	if err := tx.Commit(); err != nil {
		return model.Roadmap{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return roadmap, nil
}

func (d Datasource) GetRoadmapByID(ctx context.Context, id int64) (*model.Roadmap, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+roadmapColumns+` FROM waypoint.roadmaps WHERE id = $1`, id)
	return d.withMilestones(ctx, row)
}

func (d Datasource) GetRoadmapBySession(ctx context.Context, sessionID string) (*model.Roadmap, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+roadmapColumns+` FROM waypoint.roadmaps WHERE session_id = $1`, sessionID)
	return d.withMilestones(ctx, row)
}

func (d Datasource) withMilestones(ctx context.Context, row rowScanner) (*model.Roadmap, error) {
	r, err := scanRoadmap(row)
	if err != nil {
		return nil, storeError(err, "Roadmap", "retrieve")
	}
	r.Milestones, err = loadMilestones(ctx, d.Conn, r.ID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (d Datasource) DeleteRoadmap(ctx context.Context, id int64) error {
	result, err := d.Conn.ExecContext(ctx, `DELETE FROM waypoint.roadmaps WHERE id = $1`, id)
	if err != nil {
		return storeError(err, "Roadmap", "delete")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete roadmap", err)
	}
	if n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Roadmap not found", map[string]int64{"roadmapId": id})
	}
	return nil
}

// CreateMilestone appends the milestone at the end of its bucket. The roadmap row is
// locked so concurrent appends cannot pick the same index.
func (d Datasource) CreateMilestone(ctx context.Context, milestone model.Milestone) (model.Milestone, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return model.Milestone{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	var locked int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM waypoint.roadmaps WHERE id = $1 FOR UPDATE`, milestone.RoadmapID).Scan(&locked)
	if err != nil {
		return model.Milestone{}, storeError(err, "Roadmap", "retrieve")
	}

	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(sort_index) + 1, 0)
		FROM waypoint.milestones
		WHERE roadmap_id = $1 AND bucket = $2
	`, milestone.RoadmapID, milestone.Bucket).Scan(&milestone.SortIndex)
	if err != nil {
		return model.Milestone{}, storeError(err, "Milestone", "position")
	}

	now := time.Now().UTC()
	milestone.CreatedAt = now
	milestone.UpdatedAt = now
	if err := insertMilestone(ctx, tx, &milestone); err != nil {
		return model.Milestone{}, storeError(err, "Milestone", "create")
	}

	if err := tx.Commit(); err != nil {
		return model.Milestone{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return milestone, nil
}

func (d Datasource) GetMilestoneByID(ctx context.Context, id int64) (*model.Milestone, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM waypoint.milestones WHERE id = $1`, id)
	m, err := scanMilestone(row)
	if err != nil {
		return nil, storeError(err, "Milestone", "retrieve")
	}
	return m, nil
}

// UpdateMilestone writes content fields only; bucket and sort_index are owned by reorders.
func (d Datasource) UpdateMilestone(ctx context.Context, id int64, mutate func(*model.Milestone) error) (*model.Milestone, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	row := tx.QueryRowContext(ctx, `SELECT `+milestoneColumns+` FROM waypoint.milestones WHERE id = $1 FOR UPDATE`, id)
	current, err := scanMilestone(row)
	if err != nil {
		return nil, storeError(err, "Milestone", "retrieve")
	}

	updated := current.Clone()
	if err := mutate(&updated); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return current, nil
		}
		return nil, err
	}
	updated.ID, updated.RoadmapID = current.ID, current.RoadmapID
	updated.Bucket, updated.SortIndex = current.Bucket, current.SortIndex
	updated.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE waypoint.milestones
		SET title = $2, description = $3, category = $4, status = $5, dependencies = $6, due_date = $7, updated_at = $8
		WHERE id = $1
	`, id, updated.Title, updated.Description, updated.Category, string(updated.Status),
		pq.Array(dependencies(updated.Dependencies)), nullTime(updated.DueDate), updated.UpdatedAt)
	if err != nil {
		return nil, storeError(err, "Milestone", "update")
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return &updated, nil
}

// DeleteMilestone removes the row. Remaining milestones keep their indexes, so the bucket
// may have a gap until the next move or reorder touches it.
func (d Datasource) DeleteMilestone(ctx context.Context, id int64) error {
	result, err := d.Conn.ExecContext(ctx, `DELETE FROM waypoint.milestones WHERE id = $1`, id)
	if err != nil {
		return storeError(err, "Milestone", "delete")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to delete milestone", err)
	}
	if n == 0 {
		return apierror.NewAPIError(apierror.ErrNotFound, "Milestone not found", map[string]int64{"milestoneId": id})
	}
	return nil
}

// ReorderMilestones locks the roadmap, reads the committed milestones, asks plan for the
// placements and writes them in the same transaction. The position unique key is
// deferred, so intermediate duplicates inside the batch are fine.
func (d Datasource) ReorderMilestones(ctx context.Context, roadmapID int64, plan ReorderPlan) ([]model.Milestone, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	row := tx.QueryRowContext(ctx, `SELECT `+roadmapColumns+` FROM waypoint.roadmaps WHERE id = $1 FOR UPDATE`, roadmapID)
	r, err := scanRoadmap(row)
	if err != nil {
		return nil, storeError(err, "Roadmap", "retrieve")
	}
	r.Milestones, err = loadMilestones(ctx, tx, roadmapID)
	if err != nil {
		return nil, err
	}

	placements, err := plan(r)
	if err != nil {
		return nil, err
	}
	if len(placements) == 0 {
		return r.Milestones, nil
	}

	now := time.Now().UTC()
	for _, p := range placements {
		result, err := tx.ExecContext(ctx, `
			UPDATE waypoint.milestones
			SET bucket = $2, sort_index = $3, updated_at = $4
			WHERE id = $1 AND roadmap_id = $5
		`, p.ID, p.Bucket, p.SortIndex, now, roadmapID)
		if err != nil {
			return nil, storeError(err, "Milestone", "reorder")
		}
		n, err := result.RowsAffected()
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reorder milestones", err)
		}
		if n == 0 {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Milestone not found", p)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, storeError(err, "Milestones", "commit reorder of")
	}

	return applyPlacements(r.Milestones, placements, now), nil
}

// applyPlacements returns milestones with the placements written over them, sorted by
// bucket and position.
func applyPlacements(milestones []model.Milestone, placements []model.Placement, at time.Time) []model.Milestone {
	byID := make(map[int64]model.Placement, len(placements))
	for _, p := range placements {
		byID[p.ID] = p
	}

	out := make([]model.Milestone, len(milestones))
	for i, m := range milestones {
		if p, ok := byID[m.ID]; ok {
			m.Bucket = p.Bucket
			m.SortIndex = p.SortIndex
			m.UpdatedAt = at
		}
		out[i] = m
	}

	items := ordering.Group(model.MilestoneItems(out))
	index := make(map[int64]model.Milestone, len(out))
	for _, m := range out {
		index[m.ID] = m
	}
	sorted := make([]model.Milestone, 0, len(out))
	for _, bucket := range sortedKeys(items) {
		for _, it := range items[bucket] {
			sorted = append(sorted, index[it.ID])
		}
	}
	return sorted
}

func sortedKeys(groups map[string][]ordering.Item) []string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
