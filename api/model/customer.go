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
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"

	"github.com/waypointhq/waypoint/model"
)

// customerAliases maps the camelCase spelling of every customer field onto the
// snake_case one.
var customerAliases = map[string]string{
	"customerId":            "customer_id",
	"planName":              "plan_name",
	"subscriptionId":        "subscription_id",
	"subscriptionStatus":    "subscription_status",
	"subscriptionPlanPrice": "subscription_plan_price",
	"actualAttempts":        "actual_attempts",
	"usedAttempt":           "used_attempt",
}

var subscriptionStatuses = []interface{}{
	string(model.SubscriptionActive),
	string(model.SubscriptionInactive),
	string(model.SubscriptionPaused),
	string(model.SubscriptionCancelled),
	string(model.SubscriptionExpired),
}

// CreateCustomer accepts either spelling of each field. Absent fields stay nil so the
// Free plan defaults can fill them.
type CreateCustomer struct {
	CustomerID            string           `json:"customer_id"`
	Email                 *string          `json:"email"`
	PlanName              *string          `json:"plan_name"`
	SubscriptionID        *string          `json:"subscription_id"`
	SubscriptionStatus    *string          `json:"subscription_status"`
	SubscriptionPlanPrice *decimal.Decimal `json:"subscription_plan_price"`
	ActualAttempts        *int             `json:"actual_attempts"`
	UsedAttempt           *int             `json:"used_attempt"`
}

type ApplySubscription struct {
	PlanName              string          `json:"plan_name"`
	SubscriptionID        string          `json:"subscription_id"`
	SubscriptionPlanPrice decimal.Decimal `json:"subscription_plan_price"`
	ActualAttempts        *int            `json:"actual_attempts"`
}

type ChangeSubscriptionStatus struct {
	Status string `json:"status"`
}

func (c *CreateCustomer) UnmarshalJSON(data []byte) error {
	type plain CreateCustomer
	return decodeAliased(data, customerAliases, (*plain)(c))
}

func (c *CreateCustomer) ValidateCreateCustomer() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CustomerID, validation.Required, validation.Length(1, 128)),
		validation.Field(&c.SubscriptionStatus, validation.NilOrNotEmpty, validation.In(subscriptionStatuses...)),
		validation.Field(&c.ActualAttempts, validation.Min(0)),
		validation.Field(&c.UsedAttempt, validation.Min(0)),
	)
}

func (c *CreateCustomer) ToOverrides() model.CustomerOverrides {
	o := model.CustomerOverrides{
		Email:                 c.Email,
		PlanName:              c.PlanName,
		SubscriptionID:        c.SubscriptionID,
		SubscriptionPlanPrice: c.SubscriptionPlanPrice,
		ActualAttempts:        c.ActualAttempts,
		UsedAttempt:           c.UsedAttempt,
	}
	if c.SubscriptionStatus != nil {
		status := model.SubscriptionStatus(*c.SubscriptionStatus)
		o.SubscriptionStatus = &status
	}
	return o
}

func (s *ApplySubscription) UnmarshalJSON(data []byte) error {
	type plain ApplySubscription
	return decodeAliased(data, customerAliases, (*plain)(s))
}

func (s *ApplySubscription) ValidateApplySubscription() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.PlanName, validation.Required),
		validation.Field(&s.ActualAttempts, validation.Min(0)),
	)
}

func (s *ApplySubscription) ToPaidSubscription() model.PaidSubscription {
	return model.PaidSubscription{
		PlanName:              s.PlanName,
		SubscriptionID:        s.SubscriptionID,
		SubscriptionPlanPrice: s.SubscriptionPlanPrice,
		ActualAttempts:        s.ActualAttempts,
	}
}

func (s *ChangeSubscriptionStatus) ValidateChangeSubscriptionStatus() error {
	return validation.ValidateStruct(s,
		validation.Field(&s.Status, validation.Required, validation.In(subscriptionStatuses...)),
	)
}
