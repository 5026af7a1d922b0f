package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/thaitype/monguard-sub000/internal/conf"
)

var rootCmd = &cobra.Command{
	Use:   "monguard",
	Short: "Monguard audit relay",
	Long:  `Background services for the monguard document mutation layer.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*conf.AppConfig, error) {
	confFile, _ := cmd.Flags().GetString("config")
	appConfig, err := conf.NewConfig(confFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return appConfig, nil
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Starts the outbox relay worker",
	Long:  `Polls the audit outbox and publishes pending events to the message queue.`,
	Run: func(cmd *cobra.Command, args []string) {
		appConfig, err := loadConfig(cmd)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		app, cleanup, err := InitializeRelayApp(appConfig)
		if err != nil {
			log.Fatalf("failed to init relay app: %v", err)
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app.logger.Info("Starting relay application")
		if err := app.Run(ctx); err != nil {
			app.logger.Error("Relay application exited with error", zap.Error(err))
		}
		app.logger.Info("Relay application shut down gracefully")
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "internal/conf/config.yaml", "path to config file")
	rootCmd.AddCommand(relayCmd)
}
