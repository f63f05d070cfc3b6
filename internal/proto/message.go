package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	InboundTypeSend = "send"

	OutboundTypeEvent = "event"

	EventHistory = "history"
	EventMessage = "message"
)

// SendData is a chat message from the client. Both fields are optional on the wire.
type SendData struct {
	User string `json:"user,omitempty"`
	Text string `json:"text"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data"`
}

// Message is a stored chat message as clients see it.
type Message struct {
	User string `json:"user"`
	Text string `json:"text"`
	Time string `json:"time"`
}
