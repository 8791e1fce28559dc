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
	"strings"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/waypointhq/waypoint/database"
	"github.com/waypointhq/waypoint/internal/apierror"
	"github.com/waypointhq/waypoint/model"
)

// CreateCustomer registers a customer. Fields missing from overrides take the Free plan
// defaults; supplied ones are kept as given.
func (w *Waypoint) CreateCustomer(ctx context.Context, customerID string, overrides model.CustomerOverrides) (model.Customer, error) {
	ctx, span := tracer.Start(ctx, "CreateCustomer")
	defer span.End()

	if strings.TrimSpace(customerID) == "" {
		return model.Customer{}, apierror.NewAPIError(apierror.ErrInvalidInput, "customer_id is required", nil)
	}
	customer, err := model.NewCustomer(customerID, overrides)
	if err != nil {
		return model.Customer{}, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
	}

	created, err := w.datasource.CreateCustomer(ctx, customer)
	if err != nil {
		span.RecordError(err)
		return model.Customer{}, err
	}
	w.notifyEvent(EventCustomerCreated, created)
	return created, nil
}

func (w *Waypoint) GetCustomer(ctx context.Context, customerID string) (*model.Customer, error) {
	return w.datasource.GetCustomerByID(ctx, customerID)
}

// CompleteAttempt charges one attempt. A customer without quota or without an active
// subscription gets a failed result and an unchanged record, not an error.
func (w *Waypoint) CompleteAttempt(ctx context.Context, customerID string) (model.AttemptResult, error) {
	ctx, span := tracer.Start(ctx, "CompleteAttempt", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	var result model.AttemptResult
	_, err := w.datasource.UpdateCustomer(ctx, customerID, func(c *model.Customer) error {
		result = c.ConsumeAttempt()
		if !result.Success {
			return database.ErrSkipUpdate
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return model.AttemptResult{}, err
	}

	span.SetAttributes(attribute.Bool("attempt.success", result.Success))
	fields := logrus.Fields{
		"customer_id": customerID,
		"used":        result.UsedAttempt,
		"actual":      result.ActualAttempts,
		"status":      result.SubscriptionStatus,
	}
	switch {
	case !result.Success:
		logrus.WithFields(fields).WithField("reason", result.Reason).Info("attempt refused")
	case result.RemainingAttempts == 0:
		logrus.WithFields(fields).Info("attempt quota exhausted")
		w.notifyEvent(EventCustomerQuotaReached, map[string]interface{}{"customer_id": customerID, "result": result})
	}
	return result, nil
}

// ApplyPaidSubscription moves the customer onto a paid plan from any state, resetting
// the used attempts.
func (w *Waypoint) ApplyPaidSubscription(ctx context.Context, customerID string, paid model.PaidSubscription) (*model.Customer, error) {
	ctx, span := tracer.Start(ctx, "ApplyPaidSubscription", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	updated, err := w.datasource.UpdateCustomer(ctx, customerID, func(c *model.Customer) error {
		if err := c.ApplyPaid(paid); err != nil {
			return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), nil)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	w.notifyEvent(EventSubscriptionChanged, updated)
	return updated, nil
}

// SubscriptionStatus is a pure read of the customer's quota.
func (w *Waypoint) SubscriptionStatus(ctx context.Context, customerID string) (model.SubscriptionSummary, error) {
	c, err := w.datasource.GetCustomerByID(ctx, customerID)
	if err != nil {
		return model.SubscriptionSummary{}, err
	}
	return c.Summary(), nil
}

// ChangeSubscriptionStatus pauses, resumes, cancels or expires a subscription. Edges
// outside the transition table are rejected; moving to the current status is a no-op.
func (w *Waypoint) ChangeSubscriptionStatus(ctx context.Context, customerID string, status model.SubscriptionStatus) (*model.Customer, error) {
	ctx, span := tracer.Start(ctx, "ChangeSubscriptionStatus", trace.WithAttributes(attribute.String("customer.id", customerID)))
	defer span.End()

	var changed bool
	updated, err := w.datasource.UpdateCustomer(ctx, customerID, func(c *model.Customer) error {
		ok, err := c.ChangeStatus(status)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), map[string]interface{}{
				"from": c.SubscriptionStatus,
				"to":   status,
			})
		}
		if !ok {
			return database.ErrSkipUpdate
		}
		changed = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if changed {
		w.notifyEvent(EventSubscriptionChanged, updated)
	}
	return updated, nil
}
