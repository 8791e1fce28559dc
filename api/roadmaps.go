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

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (a Api) CreateRoadmap(c *gin.Context) {
	var newRoadmap model2.CreateRoadmap
	if err := c.ShouldBindJSON(&newRoadmap); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := newRoadmap.ValidateCreateRoadmap(); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := a.waypoint.SeedRoadmap(c.Request.Context(), newRoadmap.ToRoadmap())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetRoadmap returns the board of the session named in the route. Milestone and
// delete routes address the roadmap by its numeric id instead.
func (a Api) GetRoadmap(c *gin.Context) {
	resp, err := a.waypoint.GetRoadmap(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) DeleteRoadmap(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := a.waypoint.DeleteRoadmap(c.Request.Context(), id); err != nil {
		respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a Api) AddMilestone(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var newMilestone model2.CreateMilestone
	if err := c.ShouldBindJSON(&newMilestone); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := newMilestone.ValidateCreateMilestone(); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := a.waypoint.AddMilestone(c.Request.Context(), id, newMilestone.ToMilestone())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a Api) UpdateMilestone(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var update model2.UpdateMilestone
	if err := c.ShouldBindJSON(&update); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := update.ValidateUpdateMilestone(); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := a.waypoint.UpdateMilestone(c.Request.Context(), id, update.ToUpdate())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) RemoveMilestone(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := a.waypoint.RemoveMilestone(c.Request.Context(), id); err != nil {
		respondWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a Api) MoveMilestone(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var move model2.MoveMilestone
	if err := c.ShouldBindJSON(&move); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := move.ValidateMoveMilestone(); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := a.waypoint.MoveMilestone(c.Request.Context(), id, waypoint.MoveTarget{
		Bucket: move.Bucket,
		Index:  move.Index,
		Before: move.BeforeMilestoneID,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ReorderMilestones(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var reorder model2.ReorderMilestones
	if err := c.ShouldBindJSON(&reorder); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := reorder.ValidateReorderMilestones(); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := a.waypoint.ReorderMilestones(c.Request.Context(), id, reorder.Milestones)
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
