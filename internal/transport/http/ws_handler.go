package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/hospital-ms/chatrelay/internal/auth"
	"github.com/hospital-ms/chatrelay/internal/core"
	"github.com/hospital-ms/chatrelay/internal/proto"
	"github.com/hospital-ms/chatrelay/internal/utils"
)

const writeTimeout = 10 * time.Second

var errRelayClosed = errors.New("relay closed the connection")

// WSOptions configure the WebSocket endpoint.
type WSOptions struct {
	// AllowedOrigins are full origins ("https://ward.example.org") or "*".
	AllowedOrigins  []string
	MaxMessageBytes int64
	ClientBuffer    int
	// Auth, when set, requires a valid bearer token before the upgrade.
	Auth *auth.JWTConfig
}

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub    core.Hub
	accept *websocket.AcceptOptions
	opts   WSOptions
	log    *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub core.Hub, opts WSOptions, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		accept: acceptOptions(opts.AllowedOrigins),
		opts:   opts,
		log:    logger,
	}
}

func acceptOptions(origins []string) *websocket.AcceptOptions {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			return &websocket.AcceptOptions{InsecureSkipVerify: true}
		}
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			patterns = append(patterns, strings.ToLower(u.Host))
		} else if origin != "" {
			patterns = append(patterns, strings.ToLower(origin))
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}

// ServeHTTP authenticates the request if required and serves the connection.
func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	var username string
	if h.opts.Auth != nil {
		name, msg, err := authenticate(h.opts.Auth, r)
		if err != nil {
			h.log.Debug().Err(err).Str("remote", r.RemoteAddr).Msg("rejecting unauthenticated upgrade")
			writeError(w, stdhttp.StatusUnauthorized, msg)
			return
		}
		username = name
	}
	h.serve(w, r, username)
}

func (h *WSHandler) serve(w stdhttp.ResponseWriter, r *stdhttp.Request, username string) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.opts.MaxMessageBytes)
	}

	client := core.NewClient(utils.NewID(), username, h.opts.ClientBuffer)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)

	h.log.Debug().Str("client_id", client.ID).Str("remote", r.RemoteAddr).Msg("ws connected")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	if errors.Is(err, errRelayClosed) {
		// Close before cancelling: cancelling the reader's context tears the connection down.
		conn.Close(websocket.StatusGoingAway, truncateReason(err.Error()))
		cancel()
		<-errCh
		h.log.Debug().Str("client_id", client.ID).Int("status", int(websocket.StatusGoingAway)).Msg("ws disconnected")
		return
	}
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	h.log.Debug().Str("client_id", client.ID).Int("status", int(status)).Msg("ws disconnected")
	conn.Close(status, truncateReason(reason))
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		// Nothing a client sends is ever answered with an error; bad frames are skipped.
		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("ignoring undecodable frame")
			continue
		}

		cmd, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Msg("ignoring inbound")
			continue
		}

		select {
		case client.Commands <- cmd:
		case <-client.Done():
			return errRelayClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event, ok := <-client.Events:
			if !ok {
				return errRelayClosed
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, conn, outboundFromEvent(event))
			cancel()
			if err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close reasons must fit in a control frame.
func truncateReason(reason string) string {
	const maxReason = 120
	if len(reason) > maxReason {
		return reason[:maxReason]
	}
	return reason
}
