package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrNotConnected tells callers to fall back to the REST send path.
	ErrNotConnected = errors.New("realtime channel not connected")
	// ErrNoCredentials refuses an anonymous realtime session.
	ErrNoCredentials = errors.New("no valid credentials for realtime session")
)

type Handler func(data json.RawMessage)

type connector interface {
	CanConnect() bool
}

type handlerEntry struct {
	fn Handler
}

// Channel is the single long-lived realtime connection for the session.
// The set of joined conversations is client-side state and is replayed
// after every reconnect; pending outbound messages are not.
type Channel struct {
	transport Transport
	creds     connector

	backoffBase time.Duration
	backoffCap  time.Duration

	mu        sync.Mutex
	connected bool
	joined    map[string]bool
	handlers  map[string][]*handlerEntry
}

func NewChannel(transport Transport, creds connector) *Channel {
	return &Channel{
		transport:   transport,
		creds:       creds,
		backoffBase: time.Second,
		backoffCap:  30 * time.Second,
		joined:      make(map[string]bool),
		handlers:    make(map[string][]*handlerEntry),
	}
}

// Connect starts the connection loop. It returns immediately; the loop
// redials with capped exponential backoff until ctx is cancelled.
func (c *Channel) Connect(ctx context.Context) error {
	if c.creds != nil && !c.creds.CanConnect() {
		return ErrNoCredentials
	}
	go c.run(ctx)
	return nil
}

func (c *Channel) run(ctx context.Context) {
	backoff := c.backoffBase
	for ctx.Err() == nil {
		if err := c.transport.Connect(ctx); err != nil {
			slog.Warn("realtime connect failed", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff = min(backoff*2, c.backoffCap)
			continue
		}

		backoff = c.backoffBase
		c.setConnected(true)
		c.replayJoins()
		c.readLoop(ctx)
		c.setConnected(false)
		_ = c.transport.Close()
	}
}

func (c *Channel) readLoop(ctx context.Context) {
	for {
		env, err := c.transport.Receive()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("realtime receive failed", "error", err)
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env Envelope) {
	c.mu.Lock()
	snapshot := c.handlers[env.Event]
	c.mu.Unlock()

	for _, entry := range snapshot {
		entry.fn(env.Data)
	}
}

// On registers a handler for an inbound event and returns its idempotent
// unregister function. Handlers run on the reader goroutine.
func (c *Channel) On(event string, fn Handler) func() {
	entry := &handlerEntry{fn: fn}

	c.mu.Lock()
	c.handlers[event] = append(c.handlers[event], entry)
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { c.off(event, entry) })
	}
}

// Off removes every handler registered for an event.
func (c *Channel) Off(event string) {
	c.mu.Lock()
	delete(c.handlers, event)
	c.mu.Unlock()
}

func (c *Channel) off(event string, entry *handlerEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	list := c.handlers[event]
	for i, cur := range list {
		if cur == entry {
			next := make([]*handlerEntry, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			c.handlers[event] = next
			return
		}
	}
}

// JoinConversation records the room membership and announces it when the
// link is up. Membership is replayed on every reconnect, so a join while
// disconnected is not an error.
func (c *Channel) JoinConversation(conversationID string) {
	c.mu.Lock()
	c.joined[conversationID] = true
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return
	}
	if err := c.send(EventJoinConversation, joinConversation{ConversationID: conversationID}); err != nil {
		slog.Warn("join-conversation failed", "conversation", conversationID, "error", err)
	}
}

// SendMessage dispatches a message over the live channel. Returns
// ErrNotConnected when the link is down so the caller can fall back to REST.
func (c *Channel) SendMessage(conversationID, text string) error {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return ErrNotConnected
	}
	return c.send(EventSendMessage, sendMessage{ConversationID: conversationID, Content: text})
}

// SetTyping emits the typing indicator. Best effort: a dropped indicator is
// not worth surfacing.
func (c *Channel) SetTyping(conversationID string, isTyping bool) {
	c.mu.Lock()
	connected := c.connected
	c.mu.Unlock()

	if !connected {
		return
	}
	if err := c.send(EventTyping, typing{ConversationID: conversationID, IsTyping: isTyping}); err != nil {
		slog.Debug("typing emit failed", "conversation", conversationID, "error", err)
	}
}

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Channel) Disconnect() error {
	c.setConnected(false)
	return c.transport.Close()
}

func (c *Channel) send(event string, payload any) error {
	env, err := envelope(event, payload)
	if err != nil {
		return err
	}
	return c.transport.Send(env)
}

func (c *Channel) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Channel) replayJoins() {
	c.mu.Lock()
	ids := make([]string, 0, len(c.joined))
	for id := range c.joined {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.send(EventJoinConversation, joinConversation{ConversationID: id}); err != nil {
			slog.Warn("join replay failed", "conversation", id, "error", err)
			return
		}
	}
}
