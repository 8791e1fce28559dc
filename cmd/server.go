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

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caddyserver/certmagic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/posthog/posthog-go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/waypointhq/waypoint/api"
	"github.com/waypointhq/waypoint/config"
	trace "github.com/waypointhq/waypoint/internal/traces"
)

// serveTLS serves the router over HTTPS with certificates managed by CertMagic.
func serveTLS(r *gin.Engine, conf config.ServerConfig) error {
	certmagic.DefaultACME.Agreed = true
	certmagic.DefaultACME.Email = conf.Email
	cfg := certmagic.NewDefault()
	cfg.Storage = &certmagic.FileStorage{Path: "certmagic"}

	domains := []string{conf.Domain}
	if err := cfg.ManageSync(context.Background(), domains); err != nil {
		return err
	}

	server := &http.Server{
		Addr:      ":" + conf.Port,
		Handler:   r,
		TLSConfig: cfg.TLSConfig(),
	}

	log.Printf("Starting HTTPS server on %s\n", conf.Port)
	if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// sendHeartbeat reports a running server to PostHog every interval until ctx ends.
func sendHeartbeat(ctx context.Context, client posthog.Client, heartbeatID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := client.Enqueue(posthog.Capture{
					DistinctId: heartbeatID,
					Event:      "server_heartbeat",
					Properties: map[string]interface{}{
						"timestamp": time.Now().UTC(),
					},
				}); err != nil {
					logrus.WithError(err).Warn("failed to send heartbeat")
				}
			}
		}
	}()
}

func initializePostHog(ctx context.Context, cfg *config.Configuration) (posthog.Client, error) {
	client, err := posthog.NewWithConfig(cfg.Telemetry.PosthogKey, posthog.Config{Endpoint: cfg.Telemetry.PosthogEndpoint})
	if err != nil {
		return nil, err
	}
	sendHeartbeat(ctx, client, uuid.New().String(), time.Duration(cfg.Telemetry.HeartbeatSec)*time.Second)
	return client, nil
}

// initializeObservability sets up tracing and, when telemetry is enabled, the PostHog
// heartbeat. The returned function releases both.
func initializeObservability(ctx context.Context, cfg *config.Configuration) (func(context.Context), error) {
	shutdownTracing, err := trace.SetupOTelSDK(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}

	var phClient posthog.Client
	if cfg.EnableTelemetry {
		phClient, err = initializePostHog(ctx, cfg)
		if err != nil {
			logrus.WithError(err).Warn("telemetry disabled, posthog client could not start")
		}
	}

	return func(ctx context.Context) {
		if err := shutdownTracing(ctx); err != nil {
			logrus.WithError(err).Warn("error during tracing shutdown")
		}
		if phClient != nil {
			_ = phClient.Close()
		}
	}, nil
}

func startServer(ctx context.Context, router *gin.Engine, cfg config.ServerConfig) error {
	if cfg.SSL {
		return serveTLS(router, cfg)
	}

	server := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("server shutdown failed")
		}
	}()

	log.Printf("Starting server on http://localhost:%s", cfg.Port)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func serverCommands(w *waypointInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start waypoint server",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := initializeObservability(ctx, w.cnf)
			if err != nil {
				log.Fatal(err)
			}
			defer shutdown(context.Background())
			defer func() {
				if err := w.waypoint.Close(); err != nil {
					logrus.WithError(err).Warn("error closing queue")
				}
			}()

			router := api.NewAPI(w.waypoint).Router()
			if err := startServer(ctx, router, w.cnf.Server); err != nil {
				logrus.WithError(err).Error("server stopped")
			}
		},
	}

	return cmd
}
