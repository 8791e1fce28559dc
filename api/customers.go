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

	"github.com/gin-gonic/gin"

	model2 "github.com/waypointhq/waypoint/api/model"
	"github.com/waypointhq/waypoint/model"
)

func (a Api) CreateCustomer(c *gin.Context) {
	var newCustomer model2.CreateCustomer
	if err := c.ShouldBindJSON(&newCustomer); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := newCustomer.ValidateCreateCustomer(); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := a.waypoint.CreateCustomer(c.Request.Context(), newCustomer.CustomerID, newCustomer.ToOverrides())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetCustomer(c *gin.Context) {
	resp, err := a.waypoint.GetCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) GetSubscriptionStatus(c *gin.Context) {
	resp, err := a.waypoint.SubscriptionStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// CompleteAttempt charges one attempt. A refused attempt is not an error: callers
// branch on success and reason.
func (a Api) CompleteAttempt(c *gin.Context) {
	resp, err := a.waypoint.CompleteAttempt(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ApplySubscription(c *gin.Context) {
	var subscription model2.ApplySubscription
	if err := c.ShouldBindJSON(&subscription); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := subscription.ValidateApplySubscription(); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := a.waypoint.ApplyPaidSubscription(c.Request.Context(), c.Param("id"), subscription.ToPaidSubscription())
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a Api) ChangeSubscriptionStatus(c *gin.Context) {
	var change model2.ChangeSubscriptionStatus
	if err := c.ShouldBindJSON(&change); err != nil {
		invalidRequest(c, err)
		return
	}
	if err := change.ValidateChangeSubscriptionStatus(); err != nil {
		invalidRequest(c, err)
		return
	}

	resp, err := a.waypoint.ChangeSubscriptionStatus(c.Request.Context(), c.Param("id"), model.SubscriptionStatus(change.Status))
	if err != nil {
		respondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
