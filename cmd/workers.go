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
	"fmt"
	"log"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/hibiken/asynqmon"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.elastic.co/apm/module/apmlogrus/v2"

	"github.com/waypointhq/waypoint"
	"github.com/waypointhq/waypoint/config"
)

func init() {
	logrus.AddHook(&apmlogrus.Hook{})
}

func initializeQueues(conf *config.Configuration) map[string]int {
	return map[string]int{
		conf.Queue.WebhookQueue: 1,
	}
}

func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := waypoint.RedisClientOpt(conf)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(redisOption, asynq.Config{
		Concurrency: conf.Queue.Concurrency,
		Queues:      queues,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logrus.WithError(err).WithFields(logrus.Fields{
				"task":      task.Type(),
				"retried":   retried,
				"max_retry": maxRetry,
			}).Warn("webhook delivery failed")
		}),
	}), nil
}

func initializeTaskHandlers(conf *config.Configuration, mux *asynq.ServeMux) {
	mux.HandleFunc(conf.Queue.WebhookQueue, waypoint.ProcessWebhook)
}

// startMonitoring serves the asynqmon dashboard for the webhook queue.
func startMonitoring(conf *config.Configuration) error {
	redisOption, err := waypoint.RedisClientOpt(conf)
	if err != nil {
		return err
	}
	h := asynqmon.New(asynqmon.Options{
		RootPath:     "/monitoring",
		RedisConnOpt: redisOption,
	})

	go func() {
		monitoringAddr := fmt.Sprintf(":%s", conf.Queue.MonitoringPort)
		log.Printf("Asynqmon server listening on %s/monitoring", monitoringAddr)
		if err := http.ListenAndServe(monitoringAddr, h); err != nil {
			logrus.WithError(err).Error("could not start asynqmon server")
		}
	}()
	return nil
}

// workerCommands starts the webhook delivery workers.
func workerCommands(w *waypointInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start waypoint workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()
			conf := w.cnf

			shutdown, err := initializeObservability(ctx, conf)
			if err != nil {
				log.Fatal(err)
			}
			defer shutdown(ctx)

			srv, err := initializeWorkerServer(conf, initializeQueues(conf))
			if err != nil {
				log.Fatal(err)
			}

			mux := asynq.NewServeMux()
			initializeTaskHandlers(conf, mux)

			if err := startMonitoring(conf); err != nil {
				logrus.WithError(err).Warn("queue monitoring disabled")
			}

			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
