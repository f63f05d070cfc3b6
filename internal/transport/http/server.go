package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hospital-ms/chatrelay/internal/auth"
	"github.com/hospital-ms/chatrelay/internal/config"
	"github.com/hospital-ms/chatrelay/internal/core"
)

// NewServer builds the HTTP server exposing the relay endpoint.
// jwtConfig is consulted only when cfg.RequireAuth is set.
func NewServer(hub core.Hub, cfg *config.Config, jwtConfig *auth.JWTConfig, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr(),
		Handler:           NewRouter(hub, cfg, jwtConfig, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter wires routes and middleware. The WebSocket upgrade is served
// straight from the mux; gin's response writer cannot be hijacked once it has
// been touched by the engine.
func NewRouter(hub core.Hub, cfg *config.Config, jwtConfig *auth.JWTConfig, logger *zerolog.Logger) stdhttp.Handler {
	opts := WSOptions{
		AllowedOrigins:  cfg.AllowedOrigins,
		MaxMessageBytes: cfg.MaxMessageBytes,
		ClientBuffer:    cfg.ClientBuffer,
	}
	if cfg.RequireAuth {
		opts.Auth = jwtConfig
	} else {
		logger.Warn().Msg("require_auth is off: anyone can read and post as any name")
	}

	mux := stdhttp.NewServeMux()
	mux.Handle("GET /ws", NewWSHandler(hub, opts, logger))
	mux.Handle("/", newEngine(cfg, logger))
	return mux
}

// newEngine serves everything except the upgrade, including CORS preflight for /ws.
func newEngine(cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))
	router.Use(CORSMiddleware(cfg.AllowedOrigins, cfg.AllowsAnyOrigin()))

	router.GET("/health", healthHandler)

	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
