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

	migrate "github.com/rubenv/sql-migrate"
	"github.com/spf13/cobra"

	"github.com/waypointhq/waypoint"
	"github.com/waypointhq/waypoint/config"
	"github.com/waypointhq/waypoint/database"
)

func migrateCommands(_ *waypointInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "run waypoint database migrations",
	}

	cmd.AddCommand(migrateUpCommands())
	cmd.AddCommand(migrateDownCommands())

	return cmd
}

func migrationSource() migrate.EmbedFileSystemMigrationSource {
	return migrate.EmbedFileSystemMigrationSource{
		FileSystem: waypoint.SQLFiles,
		Root:       "sql",
	}
}

func runMigrations(direction migrate.MigrationDirection) (int, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return 0, err
	}
	if cnf.UsesMemoryStore() {
		return 0, fmt.Errorf("the memory data source has no schema to migrate")
	}

	db, err := database.ConnectDB(cnf.DataSource.Dns)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	migrate.SetSchema("waypoint")
	return migrate.Exec(db, "postgres", migrationSource(), direction)
}

func migrateUpCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use: "up",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(migrate.Up)
			if err != nil {
				log.Printf("Error migrating up: %v", err)
				return
			}
			fmt.Printf("Applied %d migrations!\n", n)
		},
	}

	return cmd
}

func migrateDownCommands() *cobra.Command {
	cmd := &cobra.Command{
		Use: "down",
		Run: func(cmd *cobra.Command, args []string) {
			n, err := runMigrations(migrate.Down)
			if err != nil {
				log.Printf("Error migrating down: %v", err)
				return
			}
			fmt.Printf("Rolled back %d migrations!\n", n)
		},
	}

	return cmd
}
