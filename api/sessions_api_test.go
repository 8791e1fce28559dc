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

package api

import (
	"net/http"
	"testing"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint"
	model2 "github.com/waypointhq/waypoint/api/model"
	"github.com/waypointhq/waypoint/internal/stage"
	"github.com/waypointhq/waypoint/model"
)

func TestCreateSession(t *testing.T) {
	router, _ := setupRouter(t)
	legacy := "market"

	tests := []struct {
		name         string
		payload      model2.CreateSession
		expectedCode int
		expectedCur  stage.ID
	}{
		{
			name:         "Generated id",
			payload:      model2.CreateSession{},
			expectedCode: http.StatusCreated,
			expectedCur:  stage.Idea,
		},
		{
			name: "Legacy ids",
			payload: model2.CreateSession{
				SessionID:       "ses_legacy",
				CurrentStage:    &legacy,
				CompletedStages: []string{"step1", "problem"},
				Data:            map[string]map[string]interface{}{"idea-input": {"title": gofakeit.Company()}},
			},
			expectedCode: http.StatusCreated,
			expectedCur:  stage.MarketResearch,
		},
		{
			name:         "Invalid id",
			payload:      model2.CreateSession{SessionID: "not valid!"},
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var response model.Session
			resp := doJSON(t, router, http.MethodPost, "/sessions", &tt.payload, &response)
			assert.Equal(t, tt.expectedCode, resp.Code)
			if tt.expectedCode == http.StatusCreated {
				assert.NotEmpty(t, response.SessionID)
				assert.Equal(t, tt.expectedCur, response.CurrentStage)
			}
		})
	}
}

func TestCreateSession_UnknownStageSuggestion(t *testing.T) {
	router, _ := setupRouter(t)
	typo := "markt_research"

	var response errorResponse
	resp := doJSON(t, router, http.MethodPost, "/sessions", &model2.CreateSession{CurrentStage: &typo}, &response)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "UNKNOWN_STAGE", response.Code)
	assert.Equal(t, "market_research", response.Details["suggestion"])
}

func TestGetSession(t *testing.T) {
	router, _ := setupRouter(t)
	doJSON(t, router, http.MethodPost, "/sessions", &model2.CreateSession{SessionID: "ses_1"}, nil)

	var session model.Session
	resp := doJSON(t, router, http.MethodGet, "/sessions/ses_1", nil, &session)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "ses_1", session.SessionID)

	var missing errorResponse
	resp = doJSON(t, router, http.MethodGet, "/sessions/ghost", nil, &missing)
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.Equal(t, "NOT_FOUND", missing.Code)

	conflict := doJSON(t, router, http.MethodPost, "/sessions", &model2.CreateSession{SessionID: "ses_1"}, nil)
	assert.Equal(t, http.StatusConflict, conflict.Code)
}

func TestGetAllSessions(t *testing.T) {
	router, _ := setupRouter(t)
	for _, id := range []string{"ses_a", "ses_b", "ses_c"} {
		doJSON(t, router, http.MethodPost, "/sessions", &model2.CreateSession{SessionID: id}, nil)
	}

	var page []model.Session
	resp := doJSON(t, router, http.MethodGet, "/sessions?limit=2", nil, &page)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Len(t, page, 2)

	resp = doJSON(t, router, http.MethodGet, "/sessions?limit=-1", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestUpdateSession(t *testing.T) {
	router, _ := setupRouter(t)
	doJSON(t, router, http.MethodPost, "/sessions", &model2.CreateSession{
		SessionID: "ses_1",
		Data:      map[string]map[string]interface{}{"idea": {"title": "Old", "industry": "fintech"}},
	}, nil)

	var session model.Session
	resp := doJSON(t, router, http.MethodPatch, "/sessions/ses_1", &model2.UpdateSession{
		Data: map[string]map[string]interface{}{"idea": {"title": "New"}},
	}, &session)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "New", session.Data[stage.Idea]["title"])
	assert.Equal(t, "fintech", session.Data[stage.Idea]["industry"])

	resp = doJSON(t, router, http.MethodPatch, "/sessions/ses_1", &model2.UpdateSession{
		Data: map[string]map[string]interface{}{"idea": {"title": 7}},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCompleteStage(t *testing.T) {
	router, _ := setupRouter(t)
	doJSON(t, router, http.MethodPost, "/sessions", &model2.CreateSession{SessionID: "ses_1"}, nil)

	var progress model.Progress
	resp := doJSON(t, router, http.MethodPost, "/sessions/ses_1/stages/step1/complete", &model2.CompleteStage{
		Data: map[string]interface{}{"title": gofakeit.Company()},
	}, &progress)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, stage.ProblemAnalysis, progress.CurrentStage)
	assert.Equal(t, []stage.ID{stage.Idea}, progress.CompletedStages)
	assert.Equal(t, 13, progress.Percentage)

	var fetched model.Progress
	resp = doJSON(t, router, http.MethodGet, "/sessions/ses_1/progress", nil, &fetched)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, progress.Percentage, fetched.Percentage)

	var unknown errorResponse
	resp = doJSON(t, router, http.MethodPost, "/sessions/ses_1/stages/pitch-deck/complete", nil, &unknown)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "UNKNOWN_STAGE", unknown.Code)
}

func TestCompleteWorkflow(t *testing.T) {
	router, _ := setupRouter(t)
	doJSON(t, router, http.MethodPost, "/sessions", &model2.CreateSession{SessionID: "ses_1"}, nil)
	doJSON(t, router, http.MethodPost, "/customers", &model2.CreateCustomer{CustomerID: "cus_1"}, nil)

	var result waypoint.WorkflowResult
	resp := doJSON(t, router, http.MethodPost, "/sessions/ses_1/complete", map[string]string{"customerId": "cus_1"}, &result)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, result.Completed)
	require.NotNil(t, result.Attempt)
	assert.Equal(t, 2, result.Attempt.RemainingAttempts)

	var again waypoint.WorkflowResult
	resp = doJSON(t, router, http.MethodPost, "/sessions/ses_1/complete", map[string]string{"customer_id": "cus_1"}, &again)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.True(t, again.AlreadyCompleted)

	resp = doJSON(t, router, http.MethodPost, "/sessions/ses_1/complete", map[string]string{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestCompleteWorkflow_QuotaExhausted(t *testing.T) {
	router, _ := setupRouter(t)
	used := 3
	doJSON(t, router, http.MethodPost, "/sessions", &model2.CreateSession{SessionID: "ses_1"}, nil)
	doJSON(t, router, http.MethodPost, "/customers", &model2.CreateCustomer{CustomerID: "cus_1", UsedAttempt: &used}, nil)

	var result waypoint.WorkflowResult
	resp := doJSON(t, router, http.MethodPost, "/sessions/ses_1/complete", map[string]string{"customerId": "cus_1"}, &result)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.False(t, result.Completed)
	require.NotNil(t, result.Attempt)
	assert.Equal(t, model.ReasonQuotaReached, result.Attempt.Reason)
}
