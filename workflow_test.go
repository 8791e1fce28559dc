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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/apierror"
	"github.com/waypointhq/waypoint/internal/stage"
	"github.com/waypointhq/waypoint/model"
)

func setupWorkflow(t *testing.T, overrides model.CustomerOverrides) *Waypoint {
	t.Helper()
	w, _, _ := newTestWaypoint(t)
	ctx := context.Background()
	_, err := w.CreateSession(ctx, "ses_1", model.SessionPatch{
		CurrentStage:    model.StringPtr("roadmap"),
		CompletedStages: []string{"idea", "problem_analysis"},
	})
	require.NoError(t, err)
	_, err = w.CreateCustomer(ctx, "cus_1", overrides)
	require.NoError(t, err)
	return w
}

func TestCompleteWorkflow_ChargesOnce(t *testing.T) {
	w := setupWorkflow(t, model.CustomerOverrides{})
	ctx := context.Background()

	result, err := w.CompleteWorkflow(ctx, "ses_1", "cus_1")
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.False(t, result.AlreadyCompleted)
	require.NotNil(t, result.Attempt)
	assert.True(t, result.Attempt.Success)
	assert.Equal(t, 1, result.Attempt.UsedAttempt)
	assert.Equal(t, stage.Export, result.Progress.CurrentStage)
	assert.Contains(t, result.Progress.CompletedStages, stage.Export)

	s, err := w.GetSession(ctx, "ses_1")
	require.NoError(t, err)
	assert.NotNil(t, s.CompletedAt)

	again, err := w.CompleteWorkflow(ctx, "ses_1", "cus_1")
	require.NoError(t, err)
	assert.True(t, again.AlreadyCompleted)
	assert.Nil(t, again.Attempt)

	status, err := w.SubscriptionStatus(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.UsedAttempt)
}

func TestCompleteWorkflow_RefusedChargeRevertsSession(t *testing.T) {
	w := setupWorkflow(t, model.CustomerOverrides{UsedAttempt: model.IntPtr(3)})
	ctx := context.Background()

	result, err := w.CompleteWorkflow(ctx, "ses_1", "cus_1")
	require.NoError(t, err)
	assert.False(t, result.Completed)
	require.NotNil(t, result.Attempt)
	assert.False(t, result.Attempt.Success)
	assert.Equal(t, model.ReasonQuotaReached, result.Attempt.Reason)

	s, err := w.GetSession(ctx, "ses_1")
	require.NoError(t, err)
	assert.Nil(t, s.CompletedAt)
	assert.Equal(t, stage.Roadmap, s.CurrentStage)
	assert.Equal(t, []stage.ID{stage.Idea, stage.ProblemAnalysis}, s.CompletedStages)
}

func TestCompleteWorkflow_UnknownCustomerRevertsSession(t *testing.T) {
	w := setupWorkflow(t, model.CustomerOverrides{})
	ctx := context.Background()

	_, err := w.CompleteWorkflow(ctx, "ses_1", "cus_ghost")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))

	s, err := w.GetSession(ctx, "ses_1")
	require.NoError(t, err)
	assert.Nil(t, s.CompletedAt)
	assert.NotContains(t, s.CompletedStages, stage.Export)
}

func TestCompleteWorkflow_UnknownSession(t *testing.T) {
	w := setupWorkflow(t, model.CustomerOverrides{})

	_, err := w.CompleteWorkflow(context.Background(), "ses_ghost", "cus_1")
	assert.True(t, apierror.Is(err, apierror.ErrNotFound))

	status, err := w.SubscriptionStatus(context.Background(), "cus_1")
	require.NoError(t, err)
	assert.Equal(t, 0, status.UsedAttempt)
}

func TestCompleteWorkflow_LockHeld(t *testing.T) {
	w, _, mr := newTestWaypoint(t)
	ctx := context.Background()
	_, err := w.CreateSession(ctx, "ses_1", model.SessionPatch{})
	require.NoError(t, err)
	require.NoError(t, mr.Set("waypoint:lock:session:ses_1", "someone-else"))

	_, err = w.CompleteWorkflow(ctx, "ses_1", "cus_1")
	assert.True(t, apierror.Is(err, apierror.ErrConflict))
	assert.True(t, mr.Exists("waypoint:lock:session:ses_1"))
}
