package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage posts a chat message to everyone connected.
	CommandSendMessage CommandKind = iota
)

// Command represents an action requested by a client.
// For CommandSendMessage only Message.User and Message.Text are read;
// the relay assigns the time.
type Command struct {
	Kind    CommandKind
	Message Message
}
