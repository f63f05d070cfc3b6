package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hospital-ms/chatrelay/internal/app"
	"github.com/hospital-ms/chatrelay/internal/auth"
	"github.com/hospital-ms/chatrelay/internal/config"
	applog "github.com/hospital-ms/chatrelay/internal/log"
)

func tokenCmd() *cobra.Command {
	var (
		configPath string
		user       string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a chat participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(applog.New("warn", "console"), configPath, cmd.Flags())
			if err != nil {
				return err
			}
			return writeToken(cmd.OutOrStdout(), &cfg, user, ttl)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to the YAML config file")
	flags.StringVar(&user, "user", "", "display name carried by the token")
	flags.DurationVar(&ttl, "ttl", 0, "token lifetime (default 12h)")
	flags.String("jwt-secret", "", "HMAC secret, overrides config")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func writeToken(out io.Writer, cfg *config.Config, user string, ttl time.Duration) error {
	if cfg.JWTSecret == "" {
		return errors.New("jwt_secret is not configured")
	}

	jwtConfig := app.JWTConfig(cfg)
	if ttl > 0 {
		jwtConfig.TTL = ttl
	}

	token, err := auth.GenerateToken(jwtConfig, user)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	_, err = fmt.Fprintln(out, token)
	return err
}
