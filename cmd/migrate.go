package main

import (
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/server"
)

func migrateCMD() *cobra.Command {
	var cfgPath string
	var migDir string
	var direction string
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if err := cfg.Storage.Postgres.Validate(); err != nil {
				return err
			}
			return server.Migrate(migDir, cfg.Storage.Postgres.DSN(), direction, steps)
		},
	}

	cmd.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source (file://migrations)")
	cmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	cmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
