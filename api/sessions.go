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
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/waypointhq/waypoint"
	model2 "github.com/waypointhq/waypoint/api/model"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

type stageView struct {
	ID            string   `json:"id"`
	Order         int      `json:"order"`
	LegacyAliases []string `json:"legacyAliases"`
}

func (a Api) GetStages(c *gin.Context) {
	entries := a.waypoint.Registry().Entries()
	resp := make([]stageView, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, stageView{ID: string(e.ID), Order: e.Order, LegacyAliases: e.LegacyAliases})
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) CreateSession(c *gin.Context) {
	var newSession model2.CreateSession
	if err := c.ShouldBindJSON(&newSession); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := newSession.ValidateCreateSession(); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := a.waypoint.CreateSession(c.Request.Context(), newSession.SessionID, newSession.ToPatch())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetSession(c *gin.Context) {
	id, passed := c.Params.Get("id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required. pass id in the route /:id"})
		return
	}

	resp, err := a.waypoint.GetSession(c.Request.Context(), id)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func pagination(c *gin.Context) (int, int, bool) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if err != nil || limit <= 0 {
		return 0, 0, false
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		return 0, 0, false
	}
	return limit, offset, true
}

func (a Api) GetAllSessions(c *gin.Context) {
	limit, offset, ok := pagination(c)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be positive and offset non-negative"})
		return
	}

	resp, err := a.waypoint.GetAllSessions(c.Request.Context(), limit, offset)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) UpdateSession(c *gin.Context) {
	id := c.Param("id")
	var update model2.UpdateSession
	if err := c.ShouldBindJSON(&update); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := update.ValidateUpdateSession(); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := a.waypoint.UpdateSession(c.Request.Context(), id, update.ToPatch())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetProgress(c *gin.Context) {
	resp, err := a.waypoint.Progress(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) CompleteStage(c *gin.Context) {
	var body model2.CompleteStage
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			invalidRequest(c, err)
			return
		}
	}
	if err := body.ValidateCompleteStage(); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := a.waypoint.RecordCompletion(c.Request.Context(), c.Param("id"), waypoint.StageCompletion{
		Stage: c.Param("stage"),
		Data:  body.Data,
		Next:  body.NextStage,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CompleteWorkflow finishes the session and charges the customer. A refused charge is
// still a 200: completed is false and the refused attempt is attached.
func (a Api) CompleteWorkflow(c *gin.Context) {
	var body model2.CompleteWorkflow
	if err := c.ShouldBindJSON(&body); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := body.ValidateCompleteWorkflow(); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := a.waypoint.CompleteWorkflow(c.Request.Context(), c.Param("id"), body.CustomerID)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
