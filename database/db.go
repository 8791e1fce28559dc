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
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/waypointhq/waypoint/config"
	"github.com/waypointhq/waypoint/internal/apierror"
)

// Declare a package-level variable to hold the singleton instance.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn *sql.DB
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// NewDataSource returns the store selected by the configuration: the in-process store
// when data_source.dns is "memory", PostgreSQL otherwise.
func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	if configuration.UsesMemoryStore() {
		logrus.Warn("using the in-memory data source, state is lost on restart")
		return NewMemoryDataSource(), nil
	}
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// ConnectDB opens a pooled connection and pings it with exponential backoff.
func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5)
	err = backoff.RetryNotify(db.Ping, policy, func(err error, wait time.Duration) {
		logrus.WithError(err).Warnf("database not reachable, retrying in %s", wait)
	})
	if err != nil {
		logrus.Errorf("database Connection error ❌: %v", err)
		_ = db.Close()
		return nil, err
	}

	logrus.Info("Database connection established ✅")
	return db, nil
}

// storeError converts a driver error into an APIError. APIErrors pass through untouched.
func storeError(err error, entity, action string) error {
	if err == nil {
		return nil
	}

	var apiErr apierror.APIError
	if errors.As(err, &apiErr) {
		return err
	}

	if errors.Is(err, sql.ErrNoRows) {
		return apierror.NewAPIError(apierror.ErrNotFound, entity+" not found", err)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Name() {
		case "unique_violation":
			return apierror.NewAPIError(apierror.ErrConflict, entity+" already exists", err)
		case "foreign_key_violation":
			return apierror.NewAPIError(apierror.ErrNotFound, "Referenced record for "+entity+" not found", err)
		case "check_violation":
			return apierror.NewAPIError(apierror.ErrInvalidInput, entity+" violates a constraint", err)
		}
	}

	return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to "+action+" "+entity, err)
}
