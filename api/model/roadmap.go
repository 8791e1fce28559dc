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
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/waypointhq/waypoint/model"
)

var (
	layouts           = []interface{}{string(model.LayoutNowNextLater), string(model.LayoutQuarterly)}
	milestoneStatuses = []interface{}{
		string(model.MilestonePlanned),
		string(model.MilestoneInProgress),
		string(model.MilestoneDone),
		string(model.MilestoneBlocked),
	}
)

type CreateMilestone struct {
	Bucket       string     `json:"bucket"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Status       string     `json:"status"`
	Dependencies []string   `json:"dependencies"`
	DueDate      *time.Time `json:"dueDate"`
}

type CreateRoadmap struct {
	SessionID  string            `json:"sessionId"`
	Name       string            `json:"name"`
	Layout     string            `json:"layout"`
	Milestones []CreateMilestone `json:"milestones"`
}

type UpdateMilestone struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Category     *string    `json:"category"`
	Status       *string    `json:"status"`
	Dependencies []string   `json:"dependencies"`
	DueDate      *time.Time `json:"dueDate"`
	ClearDueDate bool       `json:"clearDueDate"`
}

type MoveMilestone struct {
	Bucket            string `json:"bucket"`
	Index             *int   `json:"index"`
	BeforeMilestoneID *int64 `json:"beforeMilestoneId"`
}

type ReorderMilestones struct {
	Milestones []model.Placement `json:"milestones"`
}

func (m CreateMilestone) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.Bucket, validation.Required),
		validation.Field(&m.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&m.Status, validation.In(milestoneStatuses...)),
	)
}

func (m *CreateMilestone) ToMilestone() model.Milestone {
	return model.Milestone{
		Bucket:       m.Bucket,
		Title:        m.Title,
		Description:  m.Description,
		Category:     m.Category,
		Status:       model.MilestoneStatus(m.Status),
		Dependencies: m.Dependencies,
		DueDate:      m.DueDate,
	}
}

func (r *CreateRoadmap) ValidateCreateRoadmap() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.SessionID, validation.Required),
		validation.Field(&r.Layout, validation.In(layouts...)),
		validation.Field(&r.Milestones),
	)
}

func (r *CreateRoadmap) ToRoadmap() model.Roadmap {
	roadmap := model.Roadmap{
		SessionID:  r.SessionID,
		Name:       r.Name,
		Layout:     model.Layout(r.Layout),
		Milestones: make([]model.Milestone, 0, len(r.Milestones)),
	}
	for i := range r.Milestones {
		roadmap.Milestones = append(roadmap.Milestones, r.Milestones[i].ToMilestone())
	}
	return roadmap
}

func (m *CreateMilestone) ValidateCreateMilestone() error {
	return m.Validate()
}

func (u *UpdateMilestone) ValidateUpdateMilestone() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.Title, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&u.Status, validation.NilOrNotEmpty, validation.In(milestoneStatuses...)),
	)
}

func (u *UpdateMilestone) ToUpdate() model.MilestoneUpdate {
	update := model.MilestoneUpdate{
		Title:        u.Title,
		Description:  u.Description,
		Category:     u.Category,
		Dependencies: u.Dependencies,
		DueDate:      u.DueDate,
		ClearDueDate: u.ClearDueDate,
	}
	if u.Status != nil {
		status := model.MilestoneStatus(*u.Status)
		update.Status = &status
	}
	return update
}

func (m *MoveMilestone) ValidateMoveMilestone() error {
	return validation.ValidateStruct(m,
		validation.Field(&m.Bucket, validation.Required),
		validation.Field(&m.Index, validation.Min(0)),
	)
}

func (r *ReorderMilestones) ValidateReorderMilestones() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Milestones, validation.Required),
	)
}
