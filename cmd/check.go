package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/scout/config"
	"github.com/mohammad-safakhou/scout/internal/email"
	"github.com/mohammad-safakhou/scout/internal/subscription"
	"github.com/mohammad-safakhou/scout/internal/telemetry"
)

func checkCMD() *cobra.Command {
	var cfgPath string
	var once bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run the subscription checker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if err := cfg.Storage.Redis.Validate(); err != nil {
				return err
			}

			tele := telemetry.NewTelemetry(cfg.Telemetry)
			defer tele.Shutdown()

			ctx := context.Background()
			rdb, err := subscription.Conn(ctx, cfg.Storage.Redis)
			if err != nil {
				return fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
			}
			subs := subscription.NewStore(rdb, cfg.Notifications)

			pipe := buildPipeline(cfg, tele)
			mailer := email.NewSender(cfg.Notifications.Email)
			checker := subscription.NewChecker(subs, pipe, mailer, cfg.Notifications)

			if once {
				n, err := checker.RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("found %d new results\n", n)
				return nil
			}

			checker.Start()
			log.Printf("subscription checker running (interval %s)", cfg.Notifications.CheckInterval)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			log.Println("shutting down")
			checker.Stop()
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "check due subscriptions once and exit")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return cmd
}
