package store

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by a MessageLog after Close.
var ErrClosed = errors.New("message log closed")

// Message is a chat message as kept in history.
type Message struct {
	User      string
	Text      string
	Time      string    // server receipt time, already formatted for clients
	CreatedAt time.Time // same instant, used for ordering only
}

// MessageLog is the append-only history the relay replays to new connections.
type MessageLog interface {
	// Append adds msg to the end of the history.
	Append(ctx context.Context, msg Message) error
	// Snapshot returns the whole history, oldest first. The returned slice is owned by the caller.
	Snapshot(ctx context.Context) ([]Message, error)
	// Len reports how many messages are currently retained.
	Len(ctx context.Context) (int, error)
	Close() error
}
