/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/friendsincode/openhome/internal/db"
	"github.com/friendsincode/openhome/internal/seed"
	"github.com/friendsincode/openhome/internal/store"
)

var importDryRun bool

var importCmd = &cobra.Command{
	Use:   "import <file.yaml>",
	Short: "Import settings, stations and programs from a YAML file",
	Long: `Import controller configuration from a YAML document.

Settings keys that are present replace the stored values; absent keys are
left alone. Stations and programs are upserted by id.

Example:
  openhome import garden.yaml
  openhome import --dry-run garden.yaml
`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Parse and validate without writing")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	f, err := seed.ParseFile(args[0])
	if err != nil {
		return err
	}
	if importDryRun {
		fmt.Printf("%s: %d stations, %d programs parsed\n", args[0], len(f.Stations), len(f.Programs))
		return nil
	}

	database, err := db.Connect(cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close(database)
	if err := db.Migrate(database); err != nil {
		return err
	}

	res, err := seed.Apply(context.Background(), store.New(database, logger), f)
	if err != nil {
		return fmt.Errorf("import %s: %w", args[0], err)
	}
	logger.Info().
		Bool("settings", res.Settings).
		Int("stations", res.Stations).
		Int("programs", res.Programs).
		Msg("import complete")
	fmt.Println("Restart the controller or POST /api/v1/reload to apply the import.")
	return nil
}
