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
	"time"

	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/waypointhq/waypoint/database"
	"github.com/waypointhq/waypoint/internal/apierror"
	redlock "github.com/waypointhq/waypoint/internal/lock"
	"github.com/waypointhq/waypoint/internal/notification"
	"github.com/waypointhq/waypoint/internal/stage"
	"github.com/waypointhq/waypoint/model"
)

// WorkflowResult is the outcome of finishing a session's workflow.
type WorkflowResult struct {
	SessionID        string               `json:"sessionId"`
	AlreadyCompleted bool                 `json:"alreadyCompleted"`
	Completed        bool                 `json:"completed"`
	Attempt          *model.AttemptResult `json:"attempt,omitempty"`
	Progress         model.Progress       `json:"progress"`
}

// workflowMark remembers what marking a session complete changed so it can be undone.
type workflowMark struct {
	addedLast    bool
	previousStep stage.ID
}

// CompleteWorkflow finishes a session and charges the customer one attempt. It runs
// under a per-session Redis lock. A session is charged at most once: an already
// completed session returns without charging, and a refused or failed charge reverts
// the completion marker.
func (w *Waypoint) CompleteWorkflow(ctx context.Context, sessionID, customerID string) (WorkflowResult, error) {
	ctx, span := tracer.Start(ctx, "CompleteWorkflow", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("customer.id", customerID),
	))
	defer span.End()

	locker := redlock.NewSessionLocker(w.redis, sessionID)
	if err := locker.WaitLock(ctx, w.lockTTL, w.lockTTL); err != nil {
		span.RecordError(err)
		if errors.Is(err, redlock.ErrLockHeld) {
			return WorkflowResult{}, apierror.NewAPIError(apierror.ErrConflict, "Workflow completion already in progress", map[string]interface{}{"sessionId": sessionID})
		}
		return WorkflowResult{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to acquire workflow lock", err)
	}
	defer func() {
		if err := locker.Unlock(context.Background()); err != nil {
			logrus.WithError(err).WithField("session_id", sessionID).Warn("failed to release workflow lock")
		}
	}()

	last := w.registry.Last()
	var (
		already bool
		mark    workflowMark
	)
	session, err := w.datasource.UpdateSession(ctx, sessionID, func(s *model.Session) error {
		w.normalize(s)
		if s.CompletedAt != nil {
			already = true
			return database.ErrSkipUpdate
		}
		mark.previousStep = s.CurrentStage
		mark.addedLast = s.MarkCompleted(last)
		s.CurrentStage = last
		s.CompletedAt = ptr.Time(time.Now().UTC())
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return WorkflowResult{}, err
	}
	if already {
		w.normalize(session)
		return WorkflowResult{SessionID: sessionID, AlreadyCompleted: true, Completed: true, Progress: session.Progress(w.registry)}, nil
	}

	attempt, err := w.CompleteAttempt(ctx, customerID)
	if err != nil || !attempt.Success {
		reverted, revertErr := w.revertCompletion(ctx, sessionID, mark)
		if revertErr != nil {
			notification.NotifyError(revertErr)
		}
		if err != nil {
			span.RecordError(err)
			return WorkflowResult{}, err
		}
		result := WorkflowResult{SessionID: sessionID, Attempt: &attempt}
		if reverted != nil {
			result.Progress = reverted.Progress(w.registry)
		}
		return result, nil
	}

	result := WorkflowResult{
		SessionID: sessionID,
		Completed: true,
		Attempt:   &attempt,
		Progress:  session.Progress(w.registry),
	}
	logrus.WithFields(logrus.Fields{"session_id": sessionID, "customer_id": customerID}).Info("workflow completed")
	w.notifyEvent(EventWorkflowCompleted, result)
	return result, nil
}

func (w *Waypoint) revertCompletion(ctx context.Context, sessionID string, mark workflowMark) (*model.Session, error) {
	last := w.registry.Last()
	return w.datasource.UpdateSession(ctx, sessionID, func(s *model.Session) error {
		s.CompletedAt = nil
		s.CurrentStage = mark.previousStep
		if mark.addedLast {
			kept := s.CompletedStages[:0]
			for _, id := range s.CompletedStages {
				if id != last {
					kept = append(kept, id)
				}
			}
			s.CompletedStages = kept
		}
		return nil
	})
}
