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
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/waypointhq/waypoint"
	"github.com/waypointhq/waypoint/api/middleware"
	"github.com/waypointhq/waypoint/config"
	"github.com/waypointhq/waypoint/internal/apierror"
)

type Api struct {
	waypoint *waypoint.Waypoint
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.GET("/stages", a.GetStages)

	router.POST("/sessions", a.CreateSession)
	router.GET("/sessions", a.GetAllSessions)
	router.GET("/sessions/:id", a.GetSession)
	router.PATCH("/sessions/:id", a.UpdateSession)
	router.GET("/sessions/:id/progress", a.GetProgress)
	router.POST("/sessions/:id/stages/:stage/complete", a.CompleteStage)
	router.POST("/sessions/:id/complete", a.CompleteWorkflow)

	router.POST("/customers", a.CreateCustomer)
	router.GET("/customers/:id", a.GetCustomer)
	router.GET("/customers/:id/subscription", a.GetSubscriptionStatus)
	router.POST("/customers/:id/complete-attempt", a.CompleteAttempt)
	router.POST("/customers/:id/subscription", a.ApplySubscription)
	router.PUT("/customers/:id/status", a.ChangeSubscriptionStatus)

	router.POST("/roadmaps", a.CreateRoadmap)
	router.GET("/roadmaps/:id", a.GetRoadmap)
	router.DELETE("/roadmaps/:id", a.DeleteRoadmap)
	router.POST("/roadmaps/:id/milestones", a.AddMilestone)
	router.POST("/roadmaps/:id/milestones/reorder", a.ReorderMilestones)

	router.PUT("/milestones/:id", a.UpdateMilestone)
	router.DELETE("/milestones/:id", a.RemoveMilestone)
	router.POST("/milestones/:id/move", a.MoveMilestone)
	return a.router
}

func NewAPI(w *waypoint.Waypoint) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		logrus.WithError(err).Error("failed to load configuration for api")
		return nil
	}
	r := gin.Default()
	if conf.Tracing.Enabled {
		r.Use(otelgin.Middleware(conf.Tracing.ServiceName))
	}
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware(conf.Server.SecretKey))
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, "server running...")
	})

	return &Api{waypoint: w, router: r}
}

// respondWithError writes err with the status its code maps to. Internal errors never
// expose their details.
func respondWithError(c *gin.Context, err error) {
	status := apierror.MapErrorToHTTPStatus(err)
	body := gin.H{"error": err.Error(), "code": apierror.CodeOf(err)}

	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		body["error"] = apiErr.Message
		if apiErr.Code != apierror.ErrInternalServer && apiErr.Details != nil {
			if _, isErr := apiErr.Details.(error); !isErr {
				body["details"] = apiErr.Details
			}
		}
	}
	if status == http.StatusInternalServerError {
		body["error"] = "internal server error"
	}
	c.JSON(status, body)
}

func invalidRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error(), "code": apierror.ErrInvalidInput})
}
