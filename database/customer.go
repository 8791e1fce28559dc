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

package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/waypointhq/waypoint/internal/apierror"
	"github.com/waypointhq/waypoint/model"
)

const customerColumns = `id, customer_id, email, plan_name, subscription_id, subscription_status, subscription_plan_price, actual_attempts, used_attempt, created_at, updated_at`

func scanCustomer(row rowScanner) (*model.Customer, error) {
	c := &model.Customer{}
	var status string
	err := row.Scan(&c.ID, &c.CustomerID, &c.Email, &c.PlanName, &c.SubscriptionID, &status,
		&c.SubscriptionPlanPrice, &c.ActualAttempts, &c.UsedAttempt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.SubscriptionStatus = model.SubscriptionStatus(status)
	return c, nil
}

func (d Datasource) CreateCustomer(ctx context.Context, customer model.Customer) (model.Customer, error) {
	now := time.Now().UTC()
	customer.CreatedAt = now
	customer.UpdatedAt = now

	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO waypoint.customers (customer_id, email, plan_name, subscription_id, subscription_status, subscription_plan_price, actual_attempts, used_attempt, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, customer.CustomerID, customer.Email, customer.PlanName, customer.SubscriptionID, string(customer.SubscriptionStatus),
		customer.SubscriptionPlanPrice, customer.ActualAttempts, customer.UsedAttempt, customer.CreatedAt, customer.UpdatedAt).Scan(&customer.ID)
	if err != nil {
		return model.Customer{}, storeError(err, "Customer", "create")
	}

	return customer, nil
}

func (d Datasource) GetCustomerByID(ctx context.Context, id string) (*model.Customer, error) {
	row := d.Conn.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM waypoint.customers WHERE customer_id = $1`, id)
	c, err := scanCustomer(row)
	if err != nil {
		return nil, storeError(err, "Customer", "retrieve")
	}
	return c, nil
}

// UpdateCustomer locks the customer row, hands a copy to mutate and writes it back. The
// ledger invariants are checked before anything is written.
func (d Datasource) UpdateCustomer(ctx context.Context, id string, mutate func(*model.Customer) error) (*model.Customer, error) {
	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	row := tx.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM waypoint.customers WHERE customer_id = $1 FOR UPDATE`, id)
	current, err := scanCustomer(row)
	if err != nil {
		return nil, storeError(err, "Customer", "retrieve")
	}

	updated := *current
	if err := mutate(&updated); err != nil {
		if errors.Is(err, ErrSkipUpdate) {
			return current, nil
		}
		return nil, err
	}
	if err := updated.Validate(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInvalidInput, err.Error(), err)
	}
	updated.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		UPDATE waypoint.customers
		SET email = $2, plan_name = $3, subscription_id = $4, subscription_status = $5, subscription_plan_price = $6, actual_attempts = $7, used_attempt = $8, updated_at = $9
		WHERE customer_id = $1
	`, id, updated.Email, updated.PlanName, updated.SubscriptionID, string(updated.SubscriptionStatus),
		updated.SubscriptionPlanPrice, updated.ActualAttempts, updated.UsedAttempt, updated.UpdatedAt)
	if err != nil {
		return nil, storeError(err, "Customer", "update")
	}

	if err := tx.Commit(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transaction", err)
	}
	return &updated, nil
}
