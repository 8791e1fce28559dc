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
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/waypointhq/waypoint/internal/apierror"
	"github.com/waypointhq/waypoint/internal/stage"
	"github.com/waypointhq/waypoint/model"
)

// StageCompletion records that a stage was finished. Next, when set, overrides the
// default advance to the following stage.
type StageCompletion struct {
	Stage string
	Data  map[string]interface{}
	Next  *string
}

// unknownStage builds the error returned for ids the registry cannot resolve.
func (w *Waypoint) unknownStage(raw string) error {
	details := map[string]interface{}{"stage": raw}
	if suggestion := w.registry.Suggest(raw); suggestion != stage.Unrecognized {
		details["suggestion"] = suggestion
	}
	return apierror.NewAPIError(apierror.ErrUnknownStage, fmt.Sprintf("Unknown stage %q", raw), details)
}

func (w *Waypoint) resolveStage(raw string) (stage.ID, error) {
	id := w.registry.Normalize(raw)
	if id == stage.Unrecognized {
		return stage.Unrecognized, w.unknownStage(raw)
	}
	return id, nil
}

// mergeStageData validates payload against the stage's shape and merges it into the
// session data.
func (w *Waypoint) mergeStageData(s *model.Session, id stage.ID, payload map[string]interface{}) error {
	if _, err := model.DecodeStagePayload(id, payload); err != nil {
		return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), map[string]interface{}{"stage": id})
	}
	if len(payload) == 0 {
		return nil
	}
	if s.Data == nil {
		s.Data = model.StageData{}
	}
	s.Data[id] = model.MergePayload(s.Data[id], payload)
	return nil
}

// applyPatch copies the supplied fields of patch onto s. Every stage id goes through
// the registry first, so nothing non-canonical is ever written.
func (w *Waypoint) applyPatch(s *model.Session, patch model.SessionPatch) error {
	if patch.CurrentStage != nil {
		id, err := w.resolveStage(*patch.CurrentStage)
		if err != nil {
			return err
		}
		s.CurrentStage = id
	}

	if patch.CompletedStages != nil {
		ids, unknown := w.registry.NormalizeSet(patch.CompletedStages)
		if len(unknown) > 0 {
			return w.unknownStage(strings.Join(unknown, ","))
		}
		s.CompletedStages = ids
	}

	for raw, payload := range patch.Data {
		id, err := w.resolveStage(raw)
		if err != nil {
			return err
		}
		if err := w.mergeStageData(s, id, payload); err != nil {
			return err
		}
	}
	return nil
}

// normalize rewrites legacy ids of a stored session and logs whatever had to be dropped.
func (w *Waypoint) normalize(s *model.Session) {
	n := s.Normalize(w.registry)
	if n.Clean() {
		return
	}
	logrus.WithFields(logrus.Fields{
		"session_id":        s.SessionID,
		"dropped_completed": n.DroppedCompleted,
		"dropped_data":      n.DroppedData,
		"reset_current":     n.ResetCurrent,
	}).Warn("session held unknown stage ids")
}

func (w *Waypoint) postSessionActions(event string, s *model.Session) {
	w.notifyEvent(event, s)
}

// CreateSession starts a workflow. An empty id is generated, the current stage defaults
// to the first stage, and every supplied payload is validated before anything is stored.
func (w *Waypoint) CreateSession(ctx context.Context, sessionID string, patch model.SessionPatch) (model.Session, error) {
	ctx, span := tracer.Start(ctx, "CreateSession")
	defer span.End()

	if strings.TrimSpace(sessionID) == "" {
		sessionID = model.GenerateUUIDWithSuffix("ses")
	}
	session := model.Session{
		SessionID:       sessionID,
		CurrentStage:    w.registry.First(),
		CompletedStages: []stage.ID{},
		Data:            model.StageData{},
	}
	if err := w.applyPatch(&session, patch); err != nil {
		span.RecordError(err)
		return model.Session{}, err
	}

	created, err := w.datasource.CreateSession(ctx, session)
	if err != nil {
		span.RecordError(err)
		return model.Session{}, err
	}
	span.SetAttributes(attribute.String("session.id", created.SessionID))
	w.postSessionActions(EventSessionCreated, &created)
	return created, nil
}

// GetSession returns the session with every stage id in canonical form.
func (w *Waypoint) GetSession(ctx context.Context, sessionID string) (*model.Session, error) {
	ctx, span := tracer.Start(ctx, "GetSession")
	defer span.End()

	s, err := w.datasource.GetSessionByID(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	w.normalize(s)
	return s, nil
}

func (w *Waypoint) GetAllSessions(ctx context.Context, limit, offset int) ([]model.Session, error) {
	sessions, err := w.datasource.GetAllSessions(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	for i := range sessions {
		w.normalize(&sessions[i])
	}
	return sessions, nil
}

// UpdateSession applies a partial update inside the session's row lock.
func (w *Waypoint) UpdateSession(ctx context.Context, sessionID string, patch model.SessionPatch) (*model.Session, error) {
	ctx, span := tracer.Start(ctx, "UpdateSession", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	updated, err := w.datasource.UpdateSession(ctx, sessionID, func(s *model.Session) error {
		w.normalize(s)
		return w.applyPatch(s, patch)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return updated, nil
}

// RecordCompletion marks a stage as done, merges its payload and advances the session.
// Without an explicit next stage the session moves to the stage after the completed
// one, and stays put when that was the last stage.
func (w *Waypoint) RecordCompletion(ctx context.Context, sessionID string, completion StageCompletion) (model.Progress, error) {
	ctx, span := tracer.Start(ctx, "RecordCompletion", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	id, err := w.resolveStage(completion.Stage)
	if err != nil {
		span.RecordError(err)
		return model.Progress{}, err
	}
	next := id
	if completion.Next != nil {
		if next, err = w.resolveStage(*completion.Next); err != nil {
			span.RecordError(err)
			return model.Progress{}, err
		}
	} else if following, ok := w.registry.Next(id); ok {
		next = following
	}
	if _, err := model.DecodeStagePayload(id, completion.Data); err != nil {
		err = apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), map[string]interface{}{"stage": id})
		span.RecordError(err)
		return model.Progress{}, err
	}

	updated, err := w.datasource.UpdateSession(ctx, sessionID, func(s *model.Session) error {
		w.normalize(s)
		s.MarkCompleted(id)
		if err := w.mergeStageData(s, id, completion.Data); err != nil {
			return err
		}
		s.CurrentStage = next
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return model.Progress{}, err
	}

	progress := updated.Progress(w.registry)
	logrus.WithFields(logrus.Fields{
		"session_id": sessionID,
		"stage":      id,
		"current":    progress.CurrentStage,
		"percentage": progress.Percentage,
	}).Info("stage completed")
	w.notifyEvent(EventSessionStageCompleted, progress)
	return progress, nil
}

// Progress is the derived progress view of a session.
func (w *Waypoint) Progress(ctx context.Context, sessionID string) (model.Progress, error) {
	s, err := w.GetSession(ctx, sessionID)
	if err != nil {
		return model.Progress{}, err
	}
	return s.Progress(w.registry), nil
}

// PurgeStaleSessions deletes sessions not updated within olderThan. Their roadmaps go
// with them.
func (w *Waypoint) PurgeStaleSessions(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, apierror.NewAPIError(apierror.ErrInvalidInput, "retention must be positive", olderThan.String())
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	n, err := w.datasource.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{"cutoff": cutoff, "deleted": n}).Info("purged stale sessions")
	return n, nil
}
