package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hospital-ms/chatrelay/internal/auth"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// authenticate validates the request's bearer token and returns its username.
// On failure the returned message is safe to show to the caller.
func authenticate(jwtConfig *auth.JWTConfig, r *http.Request) (string, string, error) {
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		if errors.Is(err, auth.ErrMissingToken) {
			return "", "missing token", err
		}
		return "", "invalid authorization header format", err
	}

	claims, err := auth.ValidateToken(jwtConfig, token)
	if err != nil {
		return "", "invalid token", err
	}
	return claims.Username, "", nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: msg})
}

// LoggerMiddleware creates a middleware that logs HTTP requests.
func LoggerMiddleware(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}

// CORSMiddleware permits GET and POST from the configured origins.
func CORSMiddleware(origins []string, allowAll bool) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
