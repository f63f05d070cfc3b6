package core

import "sync"

const defaultClientBuffer = 64

// Client is a chat participant as seen by the core layer.
type Client struct {
	ID string
	// Name is an identity bound when the connection was authenticated.
	// It is empty on an open relay, where each message names its own sender.
	Name     string
	Commands chan *Command
	Events   chan *Event

	quit      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a client with initialized channels. buffer bounds the
// number of undelivered events before the relay drops the client.
func NewClient(id, name string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Client{
		ID:       id,
		Name:     name,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, buffer),
		quit:     make(chan struct{}),
	}
}

// Done is closed once the relay has let go of the client.
func (c *Client) Done() <-chan struct{} {
	return c.quit
}

func (c *Client) deliver(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.quit)
		close(c.Events)
	})
}
