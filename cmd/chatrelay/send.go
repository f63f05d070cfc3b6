package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"github.com/hospital-ms/chatrelay/internal/auth"
	"github.com/hospital-ms/chatrelay/internal/core"
	"github.com/hospital-ms/chatrelay/internal/proto"
)

type sendOptions struct {
	URL     string
	User    string
	Text    string
	Token   string
	Timeout time.Duration

	// Placeholder is the relay's default_user, the name an unnamed sender gets.
	Placeholder string
}

func sendCmd() *cobra.Command {
	opts := sendOptions{}

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Connect, print history, send one message and wait for its echo",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
			defer cancel()
			return runSend(ctx, cmd.OutOrStdout(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.URL, "url", "ws://localhost:5000/ws", "WebSocket address")
	flags.StringVar(&opts.User, "user", "", "display name, empty for the placeholder")
	flags.StringVar(&opts.Text, "text", "hello from chatrelay send", "message text")
	flags.StringVar(&opts.Token, "token", "", "bearer token when the relay requires auth")
	flags.DurationVar(&opts.Timeout, "timeout", 5*time.Second, "total timeout for the run")
	flags.StringVar(&opts.Placeholder, "placeholder", core.DefaultUser, "name the relay gives unnamed senders")

	return cmd
}

func runSend(ctx context.Context, out io.Writer, opts sendOptions) error {
	var dialOpts *websocket.DialOptions
	if opts.Token != "" {
		dialOpts = &websocket.DialOptions{
			HTTPHeader: http.Header{"Authorization": []string{"Bearer " + opts.Token}},
		}
	}

	conn, _, err := websocket.Dial(ctx, opts.URL, dialOpts)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	wantUser := expectedUser(opts)
	sent := false
	for {
		var frame struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			return fmt.Errorf("read: %w", err)
		}

		switch frame.Event {
		case proto.EventHistory:
			var history []proto.Message
			if err := json.Unmarshal(frame.Data, &history); err != nil {
				return fmt.Errorf("unmarshal history: %w", err)
			}
			fmt.Fprintf(out, "history: %d message(s)\n", len(history))
			for _, msg := range history {
				printMessage(out, msg)
			}

			if !sent {
				payload, err := json.Marshal(proto.SendData{User: opts.User, Text: opts.Text})
				if err != nil {
					return fmt.Errorf("marshal send: %w", err)
				}
				if err := wsjson.Write(ctx, conn, proto.Inbound{Type: proto.InboundTypeSend, Data: payload}); err != nil {
					return fmt.Errorf("send: %w", err)
				}
				sent = true
			}
		case proto.EventMessage:
			var msg proto.Message
			if err := json.Unmarshal(frame.Data, &msg); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			printMessage(out, msg)
			if sent && msg.User == wantUser && msg.Text == opts.Text {
				return nil
			}
		default:
			// keep looping for the echo
		}
	}
}

// expectedUser is the name the relay will stamp on our message: the token's
// identity, else the requested name, else the placeholder.
func expectedUser(opts sendOptions) string {
	if opts.Token != "" {
		claims := &auth.Claims{}
		if _, _, err := jwt.NewParser().ParseUnverified(opts.Token, claims); err == nil {
			if claims.Username != "" {
				return claims.Username
			}
			if claims.Subject != "" {
				return claims.Subject
			}
		}
	}
	if opts.User != "" {
		return opts.User
	}
	if opts.Placeholder != "" {
		return opts.Placeholder
	}
	return core.DefaultUser
}

func printMessage(out io.Writer, msg proto.Message) {
	fmt.Fprintf(out, "[%s] %s: %s\n", msg.Time, msg.User, msg.Text)
}
