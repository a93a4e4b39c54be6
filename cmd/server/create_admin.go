package main

import (
	"errors"
	"fmt"
	"strings"

	"tradehub-admin/internal/cache"
	"tradehub-admin/internal/db"
	"tradehub-admin/internal/form"
	"tradehub-admin/internal/migrations"
	"tradehub-admin/internal/models"
	"tradehub-admin/internal/services"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
)

const (
	emailFlag    = "email"
	passwordFlag = "password"
	nameFlag     = "name"
)

func newCreateAdminCommand() *cobra.Command {
	flags := configFlags()
	flags[emailFlag] = &cobraflags.StringFlag{Name: emailFlag, Value: "", Usage: "Email of the new administrator (required)"}
	flags[passwordFlag] = &cobraflags.StringFlag{Name: passwordFlag, Value: "", Usage: "Password, at least 8 characters (required)"}
	flags[nameFlag] = &cobraflags.StringFlag{Name: nameFlag, Value: "", Usage: "Full name"}

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			database, err := db.Open(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer database.Close()
			if _, err := migrations.Apply(cmd.Context(), database, migrations.Files, nil); err != nil {
				return err
			}

			res := services.NewUsers(database, services.TokenService{})
			users := services.Bind(res, cache.New(0))
			body := form.Values{
				"email":    strings.TrimSpace(flags[emailFlag].GetString()),
				"password": flags[passwordFlag].GetString(),
				"role":     services.RoleAdmin,
				"status":   "active",
			}
			if name := strings.TrimSpace(flags[nameFlag].GetString()); name != "" {
				body["full_name"] = name
			}
			created, err := users.Create(cmd.Context(), "", body)
			if err != nil {
				return describeCreateError(err, res.SchemaFor(true).Fields())
			}
			user := created.(models.User)
			fmt.Fprintf(cmd.OutOrStdout(), "created admin %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func describeCreateError(err error, fields []string) error {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		parts := make([]string, 0, len(verr.Fields))
		for _, field := range fields {
			if msg, ok := verr.Fields[field]; ok {
				parts = append(parts, field+": "+msg)
			}
		}
		return fmt.Errorf("invalid account: %s", strings.Join(parts, "; "))
	}
	if services.IsRemote(err, services.RemoteConstraint) {
		return fmt.Errorf("an account with this email already exists")
	}
	return err
}
