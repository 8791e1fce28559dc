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
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/waypointhq/waypoint/internal/apierror"
	"github.com/waypointhq/waypoint/internal/stage"
	"github.com/waypointhq/waypoint/model"
)

const sessionColumns = `session_id, current_stage, completed_stages, data, completed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var (
		s           model.Session
		current     string
		completed   []string
		dataJSON    []byte
		completedAt sql.NullTime
	)
	if err := row.Scan(&s.SessionID, &current, pq.Array(&completed), &dataJSON, &completedAt, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}

	s.CurrentStage = stage.ID(current)
	s.CompletedStages = make([]stage.ID, len(completed))
	for i, c := range completed {
		s.CompletedStages[i] = stage.ID(c)
	}
	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &s.Data); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal session data", err)
		}
	}
	if completedAt.Valid {
		at := completedAt.Time
		s.CompletedAt = &at
	}
	return &s, nil
}

func stageStrings(ids []stage.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (d Datasource) CreateSession(ctx context.Context, session model.Session) (model.Session, error) {
	dataJSON, err := json.Marshal(session.Data)
	if err != nil {
		return model.Session{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal session data", err)
	}

	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	_, err = d.Conn.ExecContext(ctx, `
		INSERT INTO waypoint.sessions (session_id, current_stage, completed_stages, data, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, session.SessionID, string(session.CurrentStage), pq.Array(stageStrings(session.CompletedStages)), dataJSON, nullTime(session.CompletedAt), session.CreatedAt, session.UpdatedAt)
	if err != nil {
		return model.Session{}, storeError(err, "Session", "create")
	}

	return session, nil
}

func (d Datasource) GetSessionByID(ctx context.Context, id string) (*model.Session, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM waypoint.sessions WHERE session_id = $1`, id)
	s, err := scanSession(row)
	if err != nil {
		return nil, storeError(err, "Session", "retrieve")
	}
	return s, nil
}

func (d Datasource) GetAllSessions(ctx context.Context, limit, offset int) ([]model.Session, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM waypoint.sessions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, storeError(err, "Sessions", "retrieve")
	}
	defer rows.Close()

	sessions := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, storeError(err, "Session", "scan")
		}
		sessions = append(sessions, *s)
	}
	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over sessions", err)
	}
	return sessions, nil
}

// UpdateSession locks the session row, hands a copy to mutate and writes it back.
func (d Datasource) UpdateSession(ctx context.Context, id string, mutate func(*model.Session) error) (*model.Session, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM waypoint.sessions WHERE session_id = $1 FOR UPDATE`, id)
	current, err := scanSession(row)
	if err != nil {
		return nil, storeError(err, "Session", "retrieve")
	}

	updated := current.Clone()
	if err := mutate(&updated); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return current, nil
		}
		return nil, err
	}
	updated.SessionID = current.SessionID
	updated.CreatedAt = current.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	dataJSON, err := json.Marshal(updated.Data)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal session data", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE waypoint.sessions
		SET current_stage = $2, completed_stages = $3, data = $4, completed_at = $5, updated_at = $6
		WHERE session_id = $1
	`, id, string(updated.CurrentStage), pq.Array(stageStrings(updated.CompletedStages)), dataJSON, nullTime(updated.CompletedAt), updated.UpdatedAt)
	if err != nil {
		return nil, storeError(err, "Session", "update")
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return &updated, nil
}

// DeleteSessionsBefore removes sessions whose last update is older than cutoff. Their
// roadmaps go with them through the foreign key cascade.
func (d Datasource) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := d.Conn.ExecContext(ctx, `DELETE FROM waypoint.sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, storeError(err, "Sessions", "delete")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count deleted sessions", err)
	}
	return n, nil
}
