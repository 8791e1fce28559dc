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
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

const (
	FreePlanName       = "Free"
	FreePlanAttempts   = 3
	ReasonInactive     = "subscription_inactive"
	ReasonQuotaReached = "quota_exhausted"
)

var ErrIllegalTransition = errors.New("illegal subscription status transition")

// transitions lists the edges reachable through a status change. Reaching active from
// any state through a paid subscription is handled by ApplyPaidSubscription.
var transitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionActive:    {SubscriptionInactive, SubscriptionPaused, SubscriptionCancelled, SubscriptionExpired},
	SubscriptionPaused:    {SubscriptionActive, SubscriptionCancelled, SubscriptionExpired},
	SubscriptionInactive:  {SubscriptionCancelled, SubscriptionExpired},
	SubscriptionCancelled: {},
	SubscriptionExpired:   {},
}

// Valid reports whether s is a known status.
func (s SubscriptionStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether next is reachable from s without a payment.
func (s SubscriptionStatus) CanTransitionTo(next SubscriptionStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Customer struct {
	ID                    int64              `json:"-"`
	CustomerID            string             `json:"customer_id"`
	Email                 string             `json:"email,omitempty"`
	PlanName              string             `json:"plan_name"`
	SubscriptionID        string             `json:"subscription_id"`
	SubscriptionStatus    SubscriptionStatus `json:"subscription_status"`
	SubscriptionPlanPrice decimal.Decimal    `json:"subscription_plan_price"`
	ActualAttempts        int                `json:"actual_attempts"`
	UsedAttempt           int                `json:"used_attempt"`
	CreatedAt             time.Time          `json:"created_at"`
	UpdatedAt             time.Time          `json:"updated_at"`
}

// CustomerOverrides carries the fields a caller supplied on create. Nil means absent.
type CustomerOverrides struct {
	Email                 *string
	PlanName              *string
	SubscriptionID        *string
	SubscriptionStatus    *SubscriptionStatus
	SubscriptionPlanPrice *decimal.Decimal
	ActualAttempts        *int
	UsedAttempt           *int
}

// PaidSubscription is the result of a successful checkout.
type PaidSubscription struct {
	PlanName              string          `json:"plan_name"`
	SubscriptionID        string          `json:"subscription_id"`
	SubscriptionPlanPrice decimal.Decimal `json:"subscription_plan_price"`
	ActualAttempts        *int            `json:"actual_attempts,omitempty"`
}

type AttemptResult struct {
	Success            bool               `json:"success"`
	Reason             string             `json:"reason,omitempty"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	UsedAttempt        int                `json:"used_attempt"`
	ActualAttempts     int                `json:"actual_attempts"`
	RemainingAttempts  int                `json:"remaining_attempts"`
}

type SubscriptionSummary struct {
	Status         SubscriptionStatus `json:"status"`
	Remaining      int                `json:"remaining"`
	PlanName       string             `json:"plan_name"`
	UsedAttempt    int                `json:"used_attempt"`
	ActualAttempts int                `json:"actual_attempts"`
}

// NewCustomer builds a customer from the supplied fields, filling every absent one with
// the Free plan default. Defaults apply per field, so a paid plan created without quota
// fields starts with the Free attempt quota until ApplyPaid sets one.
func NewCustomer(customerID string, o CustomerOverrides) (Customer, error) {
	c := Customer{
		CustomerID:            customerID,
		PlanName:              FreePlanName,
		SubscriptionStatus:    SubscriptionActive,
		SubscriptionPlanPrice: decimal.Zero,
		ActualAttempts:        FreePlanAttempts,
	}
	if o.Email != nil {
		c.Email = *o.Email
	}
	if o.PlanName != nil {
		c.PlanName = *o.PlanName
	}
	if o.SubscriptionID != nil {
		c.SubscriptionID = *o.SubscriptionID
	}
	if o.SubscriptionStatus != nil {
		c.SubscriptionStatus = *o.SubscriptionStatus
	}
	if o.SubscriptionPlanPrice != nil {
		c.SubscriptionPlanPrice = *o.SubscriptionPlanPrice
	}
	if o.ActualAttempts != nil {
		c.ActualAttempts = *o.ActualAttempts
	}
	if o.UsedAttempt != nil {
		c.UsedAttempt = *o.UsedAttempt
	}
	return c, c.Validate()
}

// Validate enforces the ledger invariants.
func (c *Customer) Validate() error {
	if c.CustomerID == "" {
		return errors.New("customer_id is required")
	}
	if !c.SubscriptionStatus.Valid() {
		return fmt.Errorf("unknown subscription status %q", c.SubscriptionStatus)
	}
	if c.ActualAttempts < 0 {
		return errors.New("actual_attempts must not be negative")
	}
	if c.UsedAttempt < 0 {
		return errors.New("used_attempt must not be negative")
	}
	if c.UsedAttempt > c.ActualAttempts {
		return fmt.Errorf("used_attempt %d exceeds actual_attempts %d", c.UsedAttempt, c.ActualAttempts)
	}
	if c.SubscriptionPlanPrice.IsNegative() {
		return errors.New("subscription_plan_price must not be negative")
	}
	return nil
}

// Remaining is the number of attempts left in the current plan.
func (c *Customer) Remaining() int {
	if c.UsedAttempt >= c.ActualAttempts {
		return 0
	}
	return c.ActualAttempts - c.UsedAttempt
}

// ConsumeAttempt charges one attempt. A failed result leaves the customer untouched.
// An exhausted quota takes precedence over an inactive status.
func (c *Customer) ConsumeAttempt() AttemptResult {
	if c.UsedAttempt >= c.ActualAttempts {
		return c.result(false, ReasonQuotaReached)
	}
	if c.SubscriptionStatus != SubscriptionActive {
		return c.result(false, ReasonInactive)
	}

	c.UsedAttempt++
	if c.UsedAttempt >= c.ActualAttempts {
		c.SubscriptionStatus = SubscriptionInactive
	}
	return c.result(true, "")
}

func (c *Customer) result(success bool, reason string) AttemptResult {
	return AttemptResult{
		Success:            success,
		Reason:             reason,
		SubscriptionStatus: c.SubscriptionStatus,
		UsedAttempt:        c.UsedAttempt,
		ActualAttempts:     c.ActualAttempts,
		RemainingAttempts:  c.Remaining(),
	}
}

// ApplyPaid moves the customer onto a paid plan from any state and restarts the quota.
func (c *Customer) ApplyPaid(p PaidSubscription) error {
	if p.ActualAttempts != nil && *p.ActualAttempts < 0 {
		return errors.New("actual_attempts must not be negative")
	}
	if p.SubscriptionPlanPrice.IsNegative() {
		return errors.New("subscription_plan_price must not be negative")
	}

	c.PlanName = p.PlanName
	c.SubscriptionID = p.SubscriptionID
	c.SubscriptionPlanPrice = p.SubscriptionPlanPrice
	if p.ActualAttempts != nil {
		c.ActualAttempts = *p.ActualAttempts
	}
	c.UsedAttempt = 0
	c.SubscriptionStatus = SubscriptionActive
	return nil
}

// ChangeStatus follows the transition table. It returns false when next equals the
// current status and nothing changed.
func (c *Customer) ChangeStatus(next SubscriptionStatus) (bool, error) {
	if !next.Valid() {
		return false, fmt.Errorf("unknown subscription status %q", next)
	}
	if next == c.SubscriptionStatus {
		return false, nil
	}
	if !c.SubscriptionStatus.CanTransitionTo(next) {
		return false, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, c.SubscriptionStatus, next)
	}
	c.SubscriptionStatus = next
	return true, nil
}

// Summary is the read-only subscription view.
func (c *Customer) Summary() SubscriptionSummary {
	return SubscriptionSummary{
		Status:         c.SubscriptionStatus,
		Remaining:      c.Remaining(),
		PlanName:       c.PlanName,
		UsedAttempt:    c.UsedAttempt,
		ActualAttempts: c.ActualAttempts,
	}
}
