package core

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventHistory delivers the full message history to a newly registered client.
	EventHistory EventKind = iota
	// EventMessage carries one newly posted message to every connected client.
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventHistory:
		return "history"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Event is sent to clients to describe what happened in the system.
type Event struct {
	Kind     EventKind
	Message  Message   // EventMessage
	Messages []Message // EventHistory, oldest first
}
