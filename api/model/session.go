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

package model

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/waypointhq/waypoint/model"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_\-.:]+$`)

type CreateSession struct {
	SessionID       string                            `json:"sessionId"`
	CurrentStage    *string                           `json:"currentStage"`
	CompletedStages []string                          `json:"completedStages"`
	Data            map[string]map[string]interface{} `json:"data"`
}

type UpdateSession struct {
	CurrentStage    *string                           `json:"currentStage"`
	CompletedStages []string                          `json:"completedStages"`
	Data            map[string]map[string]interface{} `json:"data"`
}

type CompleteStage struct {
	Data      map[string]interface{} `json:"data"`
	NextStage *string                `json:"nextStage"`
}

type CompleteWorkflow struct {
	CustomerID string `json:"customerId"`
}

func (s *CreateSession) ValidateCreateSession() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.SessionID, validation.Length(1, 128), validation.Match(sessionIDPattern)),
		validation.Field(&s.CurrentStage, validation.NilOrNotEmpty),
	)
}

func (s *CreateSession) ToPatch() model.SessionPatch {
	return model.SessionPatch{
		CurrentStage:    s.CurrentStage,
		CompletedStages: s.CompletedStages,
		Data:            s.Data,
	}
}

func (s *UpdateSession) ValidateUpdateSession() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.CurrentStage, validation.NilOrNotEmpty),
	)
}

func (s *UpdateSession) ToPatch() model.SessionPatch {
	return model.SessionPatch{
		CurrentStage:    s.CurrentStage,
		CompletedStages: s.CompletedStages,
		Data:            s.Data,
	}
}

func (c *CompleteStage) ValidateCompleteStage() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.NextStage, validation.NilOrNotEmpty),
	)
}

// UnmarshalJSON accepts customer_id as well as customerId.
func (c *CompleteWorkflow) UnmarshalJSON(data []byte) error {
	type plain CompleteWorkflow
	return decodeAliased(data, map[string]string{"customer_id": "customerId"}, (*plain)(c))
}

func (c *CompleteWorkflow) ValidateCompleteWorkflow() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CustomerID, validation.Required),
	)
}
