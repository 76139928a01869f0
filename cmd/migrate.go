package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long: `Manage the database schema of the Annotation API.

The schema is derived from the application models and applied with
gorm's AutoMigrate, which only adds tables, columns and indexes.

Available subcommands:
  up      - Create or update all tables
  status  - Show each table and its row count`,
}

// migrateUpCmd applies the schema
var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Create or update all tables",
	RunE:  runMigrateUp,
}

// migrateStatusCmd shows migration status
var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long: `Display each application table, whether it exists and how many
rows it holds.`,
	RunE: runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// openDatabase migrates before returning
	db, err := openDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	fmt.Fprintf(cmd.OutOrStdout(), "Schema is up to date (%s)\n", cfg.Database.Driver)
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := connectDatabase(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tables, err := db.Status(cmd.Context())
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(tables))
	pending := 0
	for _, t := range tables {
		state, count := "applied", strconv.FormatInt(t.Rows, 10)
		if !t.Exists {
			state, count = "pending", "-"
			pending++
		}
		rows = append(rows, []string{t.Table, state, count})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable([]string{"Table", "State", "Rows"}, rows, 2))
	if pending > 0 {
		fmt.Fprintf(out, "%d table(s) pending, run 'annotation-api migrate up'\n", pending)
	}
	return nil
}
