package core

import "context"

// Hub coordinates connected clients. Transports depend on this interface.
type Hub interface {
	// Run processes hub traffic until ctx is cancelled.
	Run(ctx context.Context)
	// RegisterClient connects c; c receives the history before anything else.
	RegisterClient(c *Client)
	// UnregisterClient disconnects c. Safe to call more than once.
	UnregisterClient(c *Client)
}
