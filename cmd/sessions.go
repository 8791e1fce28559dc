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
	"time"

	"github.com/spf13/cobra"
)

func sessionCommands(w *waypointInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "manage stored workflow sessions",
	}

	cmd.AddCommand(purgeSessionsCommand(w))
	return cmd
}

func purgeSessionsCommand(w *waypointInstance) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "delete sessions not updated within the retention window",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := w.waypoint.PurgeStaleSessions(context.Background(), olderThan)
			if err != nil {
				log.Fatalf("Error purging sessions: %v", err)
			}
			fmt.Printf("Purged %d sessions\n", n)
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "purge sessions not updated within this duration")

	return cmd
}
