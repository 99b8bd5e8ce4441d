package main

import (
	"github.com/spf13/cobra"

	"node.town/asrbench/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Run:   runMigrate,
}

func init() {
	migrateCmd.Flags().Bool("confirm", false, "Ask before applying each migration")
}

func runMigrate(cmd *cobra.Command, args []string) {
	mainLogger := logger.With().WithPrefix("main")
	s := settings()
	if s.DatabaseURL == "" {
		mainLogger.Fatal("no database configured", "hint", "set DATABASE_URL or --database-url")
	}
	ask, _ := cmd.Flags().GetBool("confirm")

	var confirm db.Confirm
	if ask {
		confirm = confirmMigration
	}

	ctx, cancel := signalContext()
	defer cancel()

	mainLogger.Info("Starting database migration process...")
	store, err := db.Open(ctx, s.DatabaseURL, confirm, logger.With().WithPrefix("data"))
	if err != nil {
		mainLogger.Fatal("apply migrations", "error", err)
	}
	store.Close()
	mainLogger.Info("Migrations applied successfully")
}
