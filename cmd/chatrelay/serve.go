package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hospital-ms/chatrelay/internal/app"
	"github.com/hospital-ms/chatrelay/internal/config"
	applog "github.com/hospital-ms/chatrelay/internal/log"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chat relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			bootLog := applog.New("info", "console")

			cfg, resolvedPath, err := config.Load(bootLog, configPath, cmd.Flags())
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := applog.New(cfg.LogLevel, cfg.LogFormat)
			logger.Info().Str("config", resolvedPath).Str("addr", cfg.Addr()).Msg("starting chatrelay")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(&cfg, logger)
			if err != nil {
				return err
			}

			if err := application.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("server exited with error")
				return err
			}
			logger.Info().Msg("server stopped")
			return nil
		},
	}

	defaults := config.Default()
	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to the YAML config file")
	flags.String("host", defaults.Host, "listen host")
	flags.String("port", defaults.Port, "listen port (env PORT, then CHAT_PORT)")
	flags.String("log-level", defaults.LogLevel, "log level: debug, info, warn, error")
	flags.String("log-format", defaults.LogFormat, "log format: console or json")
	flags.String("history-backend", defaults.HistoryBackend, "history backend: memory or sqlite")
	flags.Int("history-limit", defaults.HistoryLimit, "messages kept in history, 0 keeps all")
	flags.String("database-path", defaults.DatabasePath, "sqlite database path or DSN")
	flags.Bool("require-auth", defaults.RequireAuth, "require a bearer JWT on /ws")
	flags.String("jwt-secret", defaults.JWTSecret, "HMAC secret for bearer tokens")

	return cmd
}
