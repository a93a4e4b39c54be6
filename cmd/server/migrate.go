package main

import (
	"fmt"

	"tradehub-admin/internal/db"
	"tradehub-admin/internal/logging"
	"tradehub-admin/internal/migrations"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
)

func newMigrateCommand() *cobra.Command {
	flags := configFlags()
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			log, cleanup, err := logging.New(logging.Options{Level: cfg.LogLevel, Environment: cfg.Env})
			if err != nil {
				return err
			}
			defer cleanup()

			database, err := db.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer database.Close()
			applied, err := migrations.Apply(cmd.Context(), database, migrations.Files, log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d migration(s) applied\n", len(applied))
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}
