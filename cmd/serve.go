package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/scout/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = os.Getenv("SCOUT_HTTP_ADDR")
			}
			return server.Run(cfgPath, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
