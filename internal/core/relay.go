package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/hospital-ms/chatrelay/internal/store"
)

const (
	// DefaultUser is the sender name used when a message names none.
	DefaultUser = "Anonymous"
	// DefaultTimeFormat renders receipt time as 24-hour hours:minutes:seconds.
	DefaultTimeFormat = "15:04:05"
)

// Options tune how the relay stamps messages.
type Options struct {
	DefaultUser string
	TimeFormat  string
	Location    *time.Location
	// Clock overrides time.Now, mainly for tests.
	Clock func() time.Time
}

func (o Options) withDefaults() Options {
	if o.DefaultUser == "" {
		o.DefaultUser = DefaultUser
	}
	if o.TimeFormat == "" {
		o.TimeFormat = DefaultTimeFormat
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}

type inbound struct {
	client *Client
	cmd    *Command
}

// Relay is the broadcast relay. A single goroutine (Run) owns the set of
// connected clients and is the only writer of the history log, so messages
// get one total order: the order in which Run receives them.
//
// Every message is echoed back to its sender as well as to everyone else.
type Relay struct {
	history store.MessageLog
	opts    Options
	log     *zerolog.Logger

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound
	done       chan struct{}

	clients map[*Client]struct{}
}

// NewRelay creates a relay that appends to and replays from history.
func NewRelay(history store.MessageLog, opts Options, logger *zerolog.Logger) *Relay {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Relay{
		history:    history,
		opts:       opts.withDefaults(),
		log:        logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		done:       make(chan struct{}),
		clients:    make(map[*Client]struct{}),
	}
}

// Run processes registrations and messages until ctx is cancelled.
// It must be called exactly once.
func (r *Relay) Run(ctx context.Context) {
	defer close(r.done)
	defer r.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-r.register:
			r.handleRegister(ctx, c)
		case c := <-r.unregister:
			r.handleUnregister(c)
		case in := <-r.inbound:
			r.handleCommand(ctx, in.client, in.cmd)
		}
	}
}

// RegisterClient connects c. If the relay has stopped, c is closed immediately.
func (r *Relay) RegisterClient(c *Client) {
	select {
	case r.register <- c:
	case <-r.done:
		c.close()
	}
}

// UnregisterClient disconnects c without notifying anyone.
func (r *Relay) UnregisterClient(c *Client) {
	select {
	case r.unregister <- c:
	case <-r.done:
	}
}

func (r *Relay) clientCount() int {
	return len(r.clients)
}

func (r *Relay) handleRegister(ctx context.Context, c *Client) {
	if c == nil {
		return
	}

	records, err := r.history.Snapshot(ctx)
	if err != nil {
		r.log.Error().Err(err).Str("client_id", c.ID).Msg("snapshot history")
		records = nil
	}

	r.clients[c] = struct{}{}
	if !c.deliver(&Event{Kind: EventHistory, Messages: messagesFromRecords(records)}) {
		r.drop(c, "history not delivered")
		return
	}

	go r.pump(c)

	r.log.Debug().
		Str("client_id", c.ID).
		Int("history", len(records)).
		Int("clients", r.clientCount()).
		Msg("client registered")
}

func (r *Relay) handleUnregister(c *Client) {
	if c == nil {
		return
	}
	if _, ok := r.clients[c]; ok {
		delete(r.clients, c)
		r.log.Debug().Str("client_id", c.ID).Int("clients", r.clientCount()).Msg("client unregistered")
	}
	c.close()
}

func (r *Relay) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	if _, ok := r.clients[c]; !ok || cmd == nil {
		return
	}

	switch cmd.Kind {
	case CommandSendMessage:
		r.handleSend(ctx, c, cmd.Message)
	default:
		r.log.Debug().Int("kind", int(cmd.Kind)).Str("client_id", c.ID).Msg("unknown command")
	}
}

func (r *Relay) handleSend(ctx context.Context, c *Client, draft Message) {
	msg := r.stamp(c, draft)

	if err := r.history.Append(ctx, msg.record()); err != nil {
		r.log.Error().Err(err).Str("client_id", c.ID).Msg("append history")
		return
	}

	ev := &Event{Kind: EventMessage, Message: msg}
	for client := range r.clients {
		if !client.deliver(ev) {
			r.drop(client, "outbound buffer full")
		}
	}
}

// stamp builds the stored message: bound identity, else the sender's name,
// else the placeholder; text verbatim; time from the server clock.
func (r *Relay) stamp(c *Client, draft Message) Message {
	user := c.Name
	if user == "" {
		user = draft.User
	}
	if user == "" {
		user = r.opts.DefaultUser
	}

	now := r.opts.Clock().In(r.opts.Location)
	return Message{
		User:      user,
		Text:      draft.Text,
		Time:      now.Format(r.opts.TimeFormat),
		CreatedAt: now,
	}
}

func (r *Relay) drop(c *Client, reason string) {
	delete(r.clients, c)
	c.close()
	r.log.Warn().Str("client_id", c.ID).Str("reason", reason).Msg("dropping client")
}

// pump forwards a client's commands into the relay loop, keeping their order.
func (r *Relay) pump(c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			select {
			case r.inbound <- inbound{client: c, cmd: cmd}:
			case <-c.quit:
				return
			case <-r.done:
				return
			}
		case <-c.quit:
			return
		case <-r.done:
			return
		}
	}
}

func (r *Relay) shutdown() {
	for c := range r.clients {
		c.close()
	}
	r.clients = make(map[*Client]struct{})
	r.log.Info().Msg("relay stopped")
}
