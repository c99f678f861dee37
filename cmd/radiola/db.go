package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/radiola/internal/util"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Maintain the catalogue database",
}

var dbExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Export cached channels and tracks as JSON",
	Long: `Write the cached catalogue as a single JSON document.

Without a file argument the document goes to stdout.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDBExport,
}

var dbResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all cached data, keeping the schema",
	RunE:  runDBReset,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDBMigrate,
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbExportCmd)
	dbCmd.AddCommand(dbResetCmd)
	dbCmd.AddCommand(dbMigrateCmd)

	dbResetCmd.Flags().Bool("force", false, "skip the confirmation prompt")
}

func runDBExport(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	out := os.Stdout
	if len(args) == 1 {
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("failed to create export file: %w", err)
		}
		defer f.Close()
		out = f
	}

	if err := db.Export(out); err != nil {
		return err
	}

	if len(args) == 1 {
		util.SuccessLog("Exported catalogue to %s", args[0])
	}
	return nil
}

func runDBReset(cmd *cobra.Command, args []string) error {
	applyLogFlags()
	force, _ := cmd.Flags().GetBool("force")

	if !force {
		fmt.Fprintf(os.Stderr, "This deletes all cached channels, tracks, edits and queued writes from %s.\n", viper.GetString("db"))
		fmt.Fprint(os.Stderr, "Type 'yes' to continue: ")

		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.TrimSpace(answer) != "yes" {
			util.InfoLog("Aborted")
			return nil
		}
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Reset(); err != nil {
		return err
	}

	util.SuccessLog("Database reset")
	return nil
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	applyLogFlags()

	// Open already runs pending migrations
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := db.AppliedMigrations()
	if err != nil {
		return err
	}

	util.SuccessLog("Schema up to date (%d migrations)", len(applied))
	for _, name := range applied {
		util.DebugLog("  %s", name)
	}

	if err := db.CheckIntegrity(); err != nil {
		return err
	}
	util.InfoLog("Integrity check passed")

	return nil
}
