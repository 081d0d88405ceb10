package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database"
	_ "github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database/postgres"
	_ "github.com/felixgeelhaar/meridian/internal/shared/infrastructure/database/sqlite"
	"github.com/felixgeelhaar/meridian/internal/shared/infrastructure/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		conn, err := database.Open(cmd.Context(), database.Config{
			URL:        cfg.DatabaseURL,
			SQLitePath: cfg.SQLitePath,
			MaxConns:   cfg.DBMaxConns,
		})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer conn.Close()

		applied, err := migrations.Run(cmd.Context(), conn)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(applied) == 0 {
			fmt.Fprintln(out, "schema up to date")
			return nil
		}
		for _, version := range applied {
			fmt.Fprintf(out, "applied %s\n", version)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
