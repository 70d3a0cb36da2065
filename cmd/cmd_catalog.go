// Copyright 2025 The Terroir Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/jcodagnone/terroir/catalog"
	"github.com/spf13/cobra"
)

var (
	catalogDB   string
	catalogFrom string
	catalogAddr string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the local DuckDB catalog",
}

var catalogLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the enriched outputs into the catalog database",
	Long: `Reads the enriched JSON files written by 'terroir enrich' and replaces
the catalog tables with their contents. The load swaps the whole snapshot
inside one transaction, so a failed run leaves the previous catalog intact.`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		dataset, err := catalog.ReadDataset(catalogFrom)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(catalogDB), 0o750); err != nil {
			return fmt.Errorf("creating db directory: %w", err)
		}

		db, err := sql.Open("duckdb", catalogDB)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		_, err = catalog.Load(catalog.NewRepository(db), dataset)

		return err
	},
}

var catalogServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interactive catalog map server (local only)",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		if _, err := os.Stat(catalogDB); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("database not found at %s - run 'terroir catalog load' or 'terroir enrich --db' first", catalogDB)
		}

		db, err := sql.Open("duckdb", catalogDB)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close()

		server, err := catalog.NewServer(catalog.NewRepository(db), &catalog.ServerOptions{
			Addr: catalogAddr,
		})
		if err != nil {
			return err
		}

		fmt.Println("🗺️  Catalog map server starting...")
		fmt.Printf("📍 Open http://%s in your browser\n", catalogAddr)
		fmt.Println("🔒 Local only - not exposed to internet")

		return server.Run()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogLoadCmd)
	catalogCmd.AddCommand(catalogServeCmd)
	catalogCmd.PersistentFlags().StringVar(
		&catalogDB,
		"db",
		catalog.DefaultDB,
		"DuckDB catalog database file",
	)
	catalogLoadCmd.PersistentFlags().StringVar(
		&catalogFrom,
		"from",
		"data",
		"Directory holding the enriched JSON files",
	)
	catalogServeCmd.PersistentFlags().StringVar(
		&catalogAddr,
		"addr",
		catalog.DefaultAddr,
		"Address to listen on",
	)
}
