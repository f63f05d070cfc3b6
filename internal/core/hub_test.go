package core

import (
	"context"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/hospital-ms/chatrelay/internal/store/memory"
)

func TestRelayNewClientGetsEmptyHistory(t *testing.T) {
	relay := startRelay(t, nil)

	alice := NewClient("a", "", 0)
	relay.RegisterClient(alice)

	ev := mustEvent(t, alice.Events, EventHistory)
	if ev.Messages == nil || len(ev.Messages) != 0 {
		t.Fatalf("expected empty non-nil history, got %#v", ev.Messages)
	}
}

func TestRelayEchoAndLateJoinerHistory(t *testing.T) {
	relay := startRelay(t, nil)

	alice := NewClient("a", "", 0)
	bob := NewClient("b", "", 0)
	relay.RegisterClient(alice)
	relay.RegisterClient(bob)
	mustEvent(t, alice.Events, EventHistory)
	mustEvent(t, bob.Events, EventHistory)

	send(alice, "Alice", "hi")

	want := Message{User: "Alice", Text: "hi", Time: "14:05:09", CreatedAt: fixedNow}

	// The sender gets its own message back.
	if got := mustEvent(t, alice.Events, EventMessage).Message; got != want {
		t.Fatalf("alice echo: expected %+v, got %+v", want, got)
	}
	if got := mustEvent(t, bob.Events, EventMessage).Message; got != want {
		t.Fatalf("bob broadcast: expected %+v, got %+v", want, got)
	}

	carol := NewClient("c", "", 0)
	relay.RegisterClient(carol)
	hist := mustEvent(t, carol.Events, EventHistory)
	if len(hist.Messages) != 1 || hist.Messages[0] != want {
		t.Fatalf("carol history: expected [%+v], got %+v", want, hist.Messages)
	}

	// History goes only to the connecting client.
	mustNoEvent(t, alice.Events, 50*time.Millisecond)
	mustNoEvent(t, bob.Events, 50*time.Millisecond)
}

func TestRelayMissingUserGetsPlaceholder(t *testing.T) {
	relay := startRelay(t, nil)

	alice := NewClient("a", "", 0)
	relay.RegisterClient(alice)
	mustEvent(t, alice.Events, EventHistory)

	send(alice, "", "no name")

	got := mustEvent(t, alice.Events, EventMessage).Message
	if got.User != DefaultUser || got.Text != "no name" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestRelayCustomPlaceholder(t *testing.T) {
	relay := NewRelay(memory.New(0), Options{DefaultUser: "Guest"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relay.Run(ctx)

	c := NewClient("a", "", 0)
	relay.RegisterClient(c)
	mustEvent(t, c.Events, EventHistory)

	send(c, "", "")
	got := mustEvent(t, c.Events, EventMessage).Message
	if got.User != "Guest" || got.Text != "" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestRelayTimeIsServerAssigned(t *testing.T) {
	relay := startRelay(t, nil)

	alice := NewClient("a", "", 0)
	relay.RegisterClient(alice)
	mustEvent(t, alice.Events, EventHistory)

	alice.Commands <- &Command{
		Kind:    CommandSendMessage,
		Message: Message{User: "Alice", Text: "x", Time: "01:02:03", CreatedAt: time.Unix(0, 0)},
	}

	got := mustEvent(t, alice.Events, EventMessage).Message
	if got.Time != "14:05:09" || !got.CreatedAt.Equal(fixedNow) {
		t.Fatalf("expected server time, got %+v", got)
	}
}

func TestRelayHistoryKeepsSendOrder(t *testing.T) {
	relay := startRelay(t, nil)

	alice := NewClient("a", "", 0)
	bob := NewClient("b", "", 0)
	relay.RegisterClient(alice)
	relay.RegisterClient(bob)
	mustEvent(t, alice.Events, EventHistory)
	mustEvent(t, bob.Events, EventHistory)

	const n = 20
	for i := range n {
		sender, name := alice, "Alice"
		if i%2 == 1 {
			sender, name = bob, "Bob"
		}
		send(sender, name, fmt.Sprintf("m%d", i))
		mustEvent(t, alice.Events, EventMessage)
		mustEvent(t, bob.Events, EventMessage)
	}

	late := NewClient("late", "", 0)
	relay.RegisterClient(late)
	hist := mustEvent(t, late.Events, EventHistory)
	if len(hist.Messages) != n {
		t.Fatalf("expected %d messages, got %d", n, len(hist.Messages))
	}
	for i, msg := range hist.Messages {
		if want := fmt.Sprintf("m%d", i); msg.Text != want {
			t.Fatalf("index %d: expected %q, got %q", i, want, msg.Text)
		}
	}
}

func TestRelayPerClientOrderWithoutWaiting(t *testing.T) {
	relay := startRelay(t, nil)

	alice := NewClient("a", "", 0)
	relay.RegisterClient(alice)
	mustEvent(t, alice.Events, EventHistory)

	for i := range 5 {
		send(alice, "Alice", fmt.Sprintf("m%d", i))
	}
	for i := range 5 {
		got := mustEvent(t, alice.Events, EventMessage).Message
		if want := fmt.Sprintf("m%d", i); got.Text != want {
			t.Fatalf("index %d: expected %q, got %q", i, want, got.Text)
		}
	}
}

func TestRelayDisconnectIsSilent(t *testing.T) {
	history := memory.New(0)
	relay := startRelay(t, history)

	alice := NewClient("a", "", 0)
	bob := NewClient("b", "", 0)
	relay.RegisterClient(alice)
	relay.RegisterClient(bob)
	mustEvent(t, alice.Events, EventHistory)
	mustEvent(t, bob.Events, EventHistory)

	send(bob, "Bob", "bye")
	mustEvent(t, alice.Events, EventMessage)

	relay.UnregisterClient(bob)
	select {
	case <-bob.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bob was not released")
	}
	// Unregistering twice is harmless.
	relay.UnregisterClient(bob)

	mustNoEvent(t, alice.Events, 100*time.Millisecond)

	n, err := history.Len(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected history of 1, got %d (err %v)", n, err)
	}
}

func TestRelayHistoryIsIdempotent(t *testing.T) {
	relay := startRelay(t, nil)

	alice := NewClient("a", "", 0)
	relay.RegisterClient(alice)
	mustEvent(t, alice.Events, EventHistory)
	send(alice, "Alice", "one")
	send(alice, "", "two")
	mustEvent(t, alice.Events, EventMessage)
	mustEvent(t, alice.Events, EventMessage)

	first := NewClient("x", "", 0)
	second := NewClient("y", "", 0)
	relay.RegisterClient(first)
	h1 := mustEvent(t, first.Events, EventHistory)
	relay.RegisterClient(second)
	h2 := mustEvent(t, second.Events, EventHistory)

	if !reflect.DeepEqual(h1.Messages, h2.Messages) {
		t.Fatalf("histories differ:\n%+v\n%+v", h1.Messages, h2.Messages)
	}
}

func TestRelayBoundIdentityWins(t *testing.T) {
	relay := startRelay(t, nil)

	nurse := NewClient("n", "nurse.jones", 0)
	relay.RegisterClient(nurse)
	mustEvent(t, nurse.Events, EventHistory)

	send(nurse, "Dr. Impostor", "meds at 9")
	got := mustEvent(t, nurse.Events, EventMessage).Message
	if got.User != "nurse.jones" {
		t.Fatalf("expected bound identity, got %q", got.User)
	}
}

func TestRelayDropsSlowConsumer(t *testing.T) {
	relay := startRelay(t, nil)

	alice := NewClient("a", "", 0)
	slow := NewClient("slow", "", 1)
	relay.RegisterClient(alice)
	relay.RegisterClient(slow)
	mustEvent(t, alice.Events, EventHistory)

	// slow never reads: its single slot holds the history event.
	send(alice, "Alice", "hello")
	mustEvent(t, alice.Events, EventMessage)

	select {
	case <-slow.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("slow consumer was not dropped")
	}

	// The buffered history is still readable, then the channel is closed.
	if ev := <-slow.Events; ev == nil || ev.Kind != EventHistory {
		t.Fatalf("expected buffered history, got %+v", ev)
	}
	if _, ok := <-slow.Events; ok {
		t.Fatal("expected closed events channel")
	}
}

func TestRelayAppendFailureIsNotBroadcast(t *testing.T) {
	relay := startRelay(t, failingLog{})

	alice := NewClient("a", "", 0)
	relay.RegisterClient(alice)

	ev := mustEvent(t, alice.Events, EventHistory)
	if len(ev.Messages) != 0 {
		t.Fatalf("expected empty history on snapshot failure, got %+v", ev.Messages)
	}

	send(alice, "Alice", "lost")
	mustNoEvent(t, alice.Events, 100*time.Millisecond)
}

func TestRelayStopClosesClients(t *testing.T) {
	relay := NewRelay(memory.New(0), Options{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(stopped)
	}()

	alice := NewClient("a", "", 0)
	relay.RegisterClient(alice)
	mustEvent(t, alice.Events, EventHistory)

	cancel()
	<-stopped

	select {
	case <-alice.Done():
	default:
		t.Fatal("client still open after stop")
	}

	late := NewClient("late", "", 0)
	relay.RegisterClient(late)
	select {
	case <-late.Done():
	default:
		t.Fatal("register after stop should close the client")
	}
	relay.UnregisterClient(late)
}
