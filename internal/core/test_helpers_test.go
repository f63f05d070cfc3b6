package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hospital-ms/chatrelay/internal/store"
	"github.com/hospital-ms/chatrelay/internal/store/memory"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

func mustNoEvent(t *testing.T, ch <-chan *Event, wait time.Duration) {
	t.Helper()

	select {
	case ev, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(wait):
	}
}

var fixedNow = time.Date(2026, 10, 17, 14, 5, 9, 0, time.UTC)

func startRelay(t *testing.T, history store.MessageLog) *Relay {
	t.Helper()

	if history == nil {
		history = memory.New(0)
	}
	relay := NewRelay(history, Options{
		Location: time.UTC,
		Clock:    func() time.Time { return fixedNow },
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go relay.Run(ctx)
	t.Cleanup(cancel)

	return relay
}

func send(c *Client, user, text string) {
	c.Commands <- &Command{Kind: CommandSendMessage, Message: Message{User: user, Text: text}}
}

type failingLog struct{}

var errBroken = errors.New("broken disk")

func (failingLog) Append(context.Context, store.Message) error { return errBroken }

func (failingLog) Snapshot(context.Context) ([]store.Message, error) { return nil, errBroken }

func (failingLog) Len(context.Context) (int, error) { return 0, errBroken }

func (failingLog) Close() error { return nil }
