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
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/waypointhq/waypoint"
	"github.com/waypointhq/waypoint/config"
	"github.com/waypointhq/waypoint/database"
	"github.com/waypointhq/waypoint/internal/notification"
)

// Waypoint represents the CLI application, encapsulating the root Cobra command.
type Waypoint struct {
	cmd *cobra.Command
}

// waypointInstance holds the engine and its configuration for the running command.
type waypointInstance struct {
	waypoint *waypoint.Waypoint
	cnf      *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and builds the engine before any command runs.
func preRun(app *waypointInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newWaypoint, err := setupWaypoint(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.waypoint = newWaypoint
		app.cnf = cnf
		return nil
	}
}

func setupWaypoint(cfg *config.Configuration) (*waypoint.Waypoint, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newWaypoint, err := waypoint.NewWaypoint(db)
	if err != nil {
		return nil, fmt.Errorf("error creating waypoint: %v", err)
	}
	return newWaypoint, nil
}

func NewCLI() *Waypoint {
	var configFile string
	w := &waypointInstance{}

	var rootCmd = &cobra.Command{
		Use:   "waypoint",
		Short: "Founder workflow progression engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./waypoint.json", "Configuration file for the waypoint server")
	rootCmd.PersistentPreRunE = preRun(w, &configFile)

	rootCmd.AddCommand(serverCommands(w))
	rootCmd.AddCommand(workerCommands(w))
	rootCmd.AddCommand(migrateCommands(w))
	rootCmd.AddCommand(sessionCommands(w))
	rootCmd.AddCommand(configCommands(w))

	return &Waypoint{cmd: rootCmd}
}

func (w Waypoint) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
