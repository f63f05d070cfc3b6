// Package memory keeps chat history in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/hospital-ms/chatrelay/internal/store"
)

// Log is an in-memory store.MessageLog.
type Log struct {
	mu       sync.RWMutex
	limit    int
	messages []store.Message
	closed   bool
}

// New creates an empty log. A positive limit keeps only the newest limit
// messages; zero keeps everything.
func New(limit int) *Log {
	if limit < 0 {
		limit = 0
	}
	return &Log{limit: limit}
}

// Append adds msg, evicting the oldest entries when over the limit.
func (l *Log) Append(_ context.Context, msg store.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return store.ErrClosed
	}

	l.messages = append(l.messages, msg)
	if l.limit > 0 && len(l.messages) > l.limit {
		// Copy down so the backing array does not keep growing.
		kept := make([]store.Message, l.limit)
		copy(kept, l.messages[len(l.messages)-l.limit:])
		l.messages = kept
	}
	return nil
}

// Snapshot returns a copy of the history, oldest first.
func (l *Log) Snapshot(_ context.Context) ([]store.Message, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return nil, store.ErrClosed
	}

	out := make([]store.Message, len(l.messages))
	copy(out, l.messages)
	return out, nil
}

// Len reports the number of retained messages.
func (l *Log) Len(_ context.Context) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		return 0, store.ErrClosed
	}
	return len(l.messages), nil
}

// Close drops the history.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closed = true
	l.messages = nil
	return nil
}
