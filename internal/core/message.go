package core

import (
	"time"

	"github.com/hospital-ms/chatrelay/internal/store"
)

// Message is the domain model for a chat message.
type Message struct {
	User      string
	Text      string
	Time      string
	CreatedAt time.Time
}

func (m Message) record() store.Message {
	return store.Message{
		User:      m.User,
		Text:      m.Text,
		Time:      m.Time,
		CreatedAt: m.CreatedAt,
	}
}

func messagesFromRecords(records []store.Message) []Message {
	out := make([]Message, 0, len(records))
	for _, r := range records {
		out = append(out, Message{
			User:      r.User,
			Text:      r.Text,
			Time:      r.Time,
			CreatedAt: r.CreatedAt,
		})
	}
	return out
}
