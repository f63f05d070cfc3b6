package core

import (
	"context"
	"strconv"
	"testing"

	"github.com/hospital-ms/chatrelay/internal/store/memory"
)

func benchmarkBroadcast(b *testing.B, recipients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := NewRelay(memory.New(1000), Options{}, nil)
	go relay.Run(ctx)

	sender := NewClient("sender", "", 0)
	relay.RegisterClient(sender)
	<-sender.Events

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		c := NewClient("c"+strconv.Itoa(i), "", 0)
		relay.RegisterClient(c)
		clients = append(clients, c)
	}

	// Drain everyone except the sender so nobody is dropped for falling behind.
	for _, c := range clients {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		sender.Commands <- &Command{
			Kind:    CommandSendMessage,
			Message: Message{User: "bench", Text: "payload"},
		}
		<-sender.Events
	}
}

func BenchmarkBroadcast_10(b *testing.B)  { benchmarkBroadcast(b, 10) }
func BenchmarkBroadcast_100(b *testing.B) { benchmarkBroadcast(b, 100) }
func BenchmarkBroadcast_500(b *testing.B) { benchmarkBroadcast(b, 500) }
