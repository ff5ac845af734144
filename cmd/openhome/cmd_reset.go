/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/friendsincode/openhome/internal/db"
	"github.com/friendsincode/openhome/internal/models"
)

var (
	resetForce      bool
	resetKeepRunLog bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Factory reset the controller database",
	Long: `Reset OpenHome to factory defaults.

This command will:
- Drop the settings, program, station and audit tables
- Drop the run log unless --keep-runlog is given
- Re-create empty tables with default settings

The controller must be stopped first. WARNING: this cannot be undone.

Examples:
  openhome reset
  openhome reset --force --keep-runlog
`,
	RunE: runReset,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "Skip confirmation prompt")
	resetCmd.Flags().BoolVar(&resetKeepRunLog, "keep-runlog", false, "Keep the watering history")
	rootCmd.AddCommand(resetCmd)
}

func runReset(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	if !resetForce {
		fmt.Println("This will delete every program, station setting and controller option.")
		if !resetKeepRunLog {
			fmt.Println("The watering history will also be deleted.")
		}
		fmt.Print("Type 'yes' to confirm reset: ")
		reader := bufio.NewReader(os.Stdin)
		response, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		if strings.TrimSpace(strings.ToLower(response)) != "yes" {
			fmt.Println("Reset cancelled.")
			return nil
		}
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(database)

	tables := []any{
		&models.AuditLog{},
		&models.Program{},
		&models.StationConfig{},
		&models.ControllerSettings{},
	}
	if !resetKeepRunLog {
		tables = append(tables, &models.RunLogEntry{})
	}

	logger.Info().Bool("keep_runlog", resetKeepRunLog).Msg("dropping controller tables")
	for _, table := range tables {
		if err := database.Migrator().DropTable(table); err != nil {
			logger.Debug().Err(err).Msg("drop table (may not exist)")
		}
	}

	if err := db.Migrate(database); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	logger.Info().Msg("reset complete")
	fmt.Println("OpenHome has been reset. Start it with: openhome serve")
	return nil
}
