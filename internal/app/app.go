package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hospital-ms/chatrelay/internal/auth"
	"github.com/hospital-ms/chatrelay/internal/config"
	"github.com/hospital-ms/chatrelay/internal/core"
	"github.com/hospital-ms/chatrelay/internal/store"
	"github.com/hospital-ms/chatrelay/internal/store/memory"
	"github.com/hospital-ms/chatrelay/internal/store/sqlite"
	transporthttp "github.com/hospital-ms/chatrelay/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	relay           *core.Relay
	history         store.MessageLog
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	history, err := openHistory(cfg)
	if err != nil {
		return nil, fmt.Errorf("init history: %w", err)
	}

	if cfg.HistoryLimit == 0 {
		logger.Warn().Str("backend", cfg.HistoryBackend).Msg("history_limit is 0: history grows without bound for the life of the process")
	} else {
		logger.Info().Str("backend", cfg.HistoryBackend).Int("limit", cfg.HistoryLimit).Msg("history initialized")
	}

	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	relay := core.NewRelay(history, core.Options{
		DefaultUser: cfg.DefaultUser,
		TimeFormat:  cfg.TimeFormat,
		Location:    loc,
	}, logger)

	server := transporthttp.NewServer(relay, cfg, JWTConfig(cfg), logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		relay:           relay,
		history:         history,
		log:             logger,
	}, nil
}

// JWTConfig derives token settings from cfg.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      12 * time.Hour, // one shift
	}
}

func openHistory(cfg *config.Config) (store.MessageLog, error) {
	switch cfg.HistoryBackend {
	case config.BackendSQLite:
		return sqlite.New(cfg.DatabasePath, cfg.HistoryLimit)
	case config.BackendMemory, "":
		return memory.New(cfg.HistoryLimit), nil
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.HistoryBackend)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	relayCtx, stopRelay := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		a.relay.Run(relayCtx)
		close(relayDone)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopRelay()
		<-relayDone
		a.cleanup()
		return err
	case <-ctx.Done():
		// Stopping the relay closes every WebSocket; Shutdown does not track hijacked connections.
		stopRelay()
		<-relayDone

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// cleanup closes the history store.
func (a *App) cleanup() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close history")
		} else {
			a.log.Info().Msg("history closed")
		}
	}
}
