package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"tradehub-admin/internal/config"

	"github.com/go-extras/cobraflags"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	envFileFlag    = "env-file"
	configFileFlag = "config"
)

// configFlags returns a fresh flag set for one command; cobraflags binds
// each Flag to a single command.
func configFlags() map[string]cobraflags.Flag {
	return map[string]cobraflags.Flag{
		envFileFlag: &cobraflags.StringFlag{
			Name:  envFileFlag,
			Value: ".env",
			Usage: "Dotenv file loaded before reading the environment (missing file is ignored)",
		},
		configFileFlag: &cobraflags.StringFlag{
			Name:  configFileFlag,
			Value: "",
			Usage: "Optional config file (yaml, json, toml); environment variables take precedence",
		},
	}
}

func loadConfig(flags map[string]cobraflags.Flag) (config.Config, error) {
	if envFile := flags[envFileFlag].GetString(); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return config.Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return config.Load(flags[configFileFlag].GetString())
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tradehub-admin",
		Short:         "Admin API for the trading content dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(newMigrateCommand())
	root.AddCommand(newCreateAdminCommand())
	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
