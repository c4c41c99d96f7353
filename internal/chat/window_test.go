package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"storechat/internal/models"
)

type fakeWindowChannel struct {
	mu      sync.Mutex
	joined  []string
	sent    []string
	sendErr error
	typing  []bool
}

func (c *fakeWindowChannel) JoinConversation(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = append(c.joined, conversationID)
}

func (c *fakeWindowChannel) SendMessage(_, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeWindowChannel) SetTyping(_ string, isTyping bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.typing = append(c.typing, isTyping)
}

func (c *fakeWindowChannel) typingSignals() []bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]bool(nil), c.typing...)
}

func (c *fakeWindowChannel) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type windowFixture struct {
	window  *MessageWindow
	store   *ConversationStore
	api     *fakeBackend
	channel *fakeWindowChannel
	bus     *recordingBus
}

func newWindowFixture(t *testing.T, api *fakeBackend, cfg WindowConfig) *windowFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	bus := &recordingBus{}
	store := NewConversationStore("viewer", api, bus, nil)
	if err := store.Load(ctx); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	channel := &fakeWindowChannel{}
	cfg.Store = store
	cfg.API = api
	cfg.Channel = channel

	return &windowFixture{
		window:  NewMessageWindow(ctx, cfg),
		store:   store,
		api:     api,
		channel: channel,
		bus:     bus,
	}
}

func msgAt(id, sender, text string, at time.Time) models.Message {
	return models.Message{ID: id, ConversationID: "c1", SenderID: sender, Content: text, CreatedAt: at}
}

func TestOpenSortsAndDedups(t *testing.T) {
	now := time.Now()
	api := &fakeBackend{
		conversations: []models.Conversation{conv("c1", 2, now)},
		history: map[string][]models.Message{
			"c1": {
				msgAt("m2", "other", "second", now.Add(2*time.Second)),
				msgAt("m1", "other", "first", now.Add(time.Second)),
				msgAt("m2", "other", "second", now.Add(2*time.Second)),
			},
		},
	}
	f := newWindowFixture(t, api, WindowConfig{})

	if err := f.window.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	messages := f.window.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages after dedup, got %d", len(messages))
	}
	if messages[0].ID != "m1" || messages[1].ID != "m2" {
		t.Errorf("not in createdAt order: %s, %s", messages[0].ID, messages[1].ID)
	}

	if f.store.Active() != "c1" {
		t.Errorf("conversation not marked active: %q", f.store.Active())
	}
	f.channel.mu.Lock()
	joined := append([]string(nil), f.channel.joined...)
	f.channel.mu.Unlock()
	if len(joined) != 1 || joined[0] != "c1" {
		t.Errorf("room not joined: %v", joined)
	}

	// Opening marks the thread read.
	if f.store.TotalUnread() != 0 {
		t.Errorf("unread not cleared on open: %d", f.store.TotalUnread())
	}
}

func TestOpenStaleResponseDiscarded(t *testing.T) {
	now := time.Now()
	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	api := &fakeBackend{
		conversations: []models.Conversation{conv("c1", 0, now), conv("c2", 0, now)},
		history: map[string][]models.Message{
			"c1": {msgAt("a1", "other", "from c1", now)},
			"c2": {{ID: "b1", ConversationID: "c2", SenderID: "other", Content: "from c2", CreatedAt: now}},
		},
		gateID:      "c1",
		historyGate: gate,
		gateEntered: entered,
	}
	f := newWindowFixture(t, api, WindowConfig{})

	done := make(chan error, 1)
	go func() { done <- f.window.Open(context.Background(), "c1") }()
	<-entered

	// The user navigates away before the first history arrives.
	if err := f.window.Open(context.Background(), "c2"); err != nil {
		t.Fatalf("open c2 failed: %v", err)
	}
	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("open c1 failed: %v", err)
	}

	if f.window.ConversationID() != "c2" {
		t.Fatalf("expected c2 open, got %q", f.window.ConversationID())
	}
	messages := f.window.Messages()
	if len(messages) != 1 || messages[0].ID != "b1" {
		t.Errorf("stale history leaked into the thread: %+v", messages)
	}
}

func TestSendValidation(t *testing.T) {
	now := time.Now()
	api := &fakeBackend{
		conversations: []models.Conversation{conv("c1", 0, now)},
		history:       map[string][]models.Message{},
	}
	f := newWindowFixture(t, api, WindowConfig{})

	if err := f.window.Send("hello"); err != ErrNoOpenConversation {
		t.Errorf("expected ErrNoOpenConversation, got %v", err)
	}

	if err := f.window.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if err := f.window.Send(strings.Repeat("a", 501)); err == nil {
		t.Error("oversized message must be rejected")
	}
	if err := f.window.Send("   "); err == nil {
		t.Error("blank message must be rejected")
	}
	if len(f.window.Messages()) != 0 {
		t.Error("rejected input must never appear in the thread")
	}
	if f.channel.sentCount() != 0 {
		t.Error("rejected input must never reach the network")
	}
}

func TestSendEchoReconciliation(t *testing.T) {
	now := time.Now()
	api := &fakeBackend{
		conversations: []models.Conversation{conv("c1", 0, now)},
		history:       map[string][]models.Message{},
	}
	f := newWindowFixture(t, api, WindowConfig{})
	if err := f.window.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if err := f.window.Send("hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	messages := f.window.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected optimistic entry, got %d messages", len(messages))
	}
	if !messages[0].Delivery.IsPending() {
		t.Error("optimistic entry should start pending")
	}
	eventually(t, func() bool { return f.channel.sentCount() == 1 }, "message never dispatched")

	// The server echo confirms the pending entry instead of appending.
	echo := msgAt("srv-1", "viewer", "hello", now.Add(time.Second))
	echo.IsRead = true
	f.window.ApplyInbound(echo)

	messages = f.window.Messages()
	if len(messages) != 1 {
		t.Fatalf("echo duplicated the bubble: %d messages", len(messages))
	}
	if messages[0].ID != "srv-1" {
		t.Errorf("server id not adopted: %q", messages[0].ID)
	}
	if messages[0].Delivery.Tag != models.DeliverySent {
		t.Errorf("expected sent, got %s", messages[0].Delivery.Tag)
	}

	// A redelivered echo is dropped by server id.
	f.window.ApplyInbound(echo)
	if len(f.window.Messages()) != 1 {
		t.Error("redelivered echo duplicated the bubble")
	}
}

func TestSendFallsBackToRestWhenChannelDown(t *testing.T) {
	now := time.Now()
	api := &fakeBackend{
		conversations: []models.Conversation{conv("c1", 0, now)},
		history:       map[string][]models.Message{},
		sendResult:    msgAt("srv-2", "viewer", "hello", now.Add(time.Second)),
	}
	f := newWindowFixture(t, api, WindowConfig{PendingTimeout: time.Second})
	f.channel.sendErr = errors.New("link down") // any error triggers the fallback
	if err := f.window.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if err := f.window.Send("hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	eventually(t, func() bool {
		messages := f.window.Messages()
		return len(messages) == 1 && messages[0].ID == "srv-2" && messages[0].Delivery.Tag == models.DeliverySent
	}, "fallback send never reconciled")

	// Reconnecting later and receiving the echo for the same message must
	// not produce a second bubble.
	f.window.ApplyInbound(msgAt("srv-2", "viewer", "hello", now.Add(time.Second)))
	if len(f.window.Messages()) != 1 {
		t.Error("late echo duplicated the fallback-sent message")
	}
}

func TestSendFailsWhenEverythingIsDown(t *testing.T) {
	now := time.Now()
	api := &fakeBackend{
		conversations: []models.Conversation{conv("c1", 0, now)},
		history:       map[string][]models.Message{},
		sendErr:       errors.New("backend down"),
	}
	f := newWindowFixture(t, api, WindowConfig{PendingTimeout: 50 * time.Millisecond})
	f.channel.sendErr = errors.New("link down")
	if err := f.window.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	if err := f.window.Send("hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	eventually(t, func() bool {
		messages := f.window.Messages()
		return len(messages) == 1 && messages[0].Delivery.Tag == models.DeliveryFailed
	}, "entry never surfaced as failed")

	// Failed entries stay in the thread for the user to see; no retry.
	messages := f.window.Messages()
	if messages[0].Delivery.Reason == "" {
		t.Error("failed entry should carry a reason")
	}
}

func TestPendingTimesOutWithoutEcho(t *testing.T) {
	now := time.Now()
	api := &fakeBackend{
		conversations: []models.Conversation{conv("c1", 0, now)},
		history:       map[string][]models.Message{},
	}
	f := newWindowFixture(t, api, WindowConfig{PendingTimeout: 30 * time.Millisecond})
	if err := f.window.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// Channel accepts the frame but the confirmation echo never arrives.
	if err := f.window.Send("hello"); err != nil {
		t.Fatalf("send failed: %v", err)
	}

	eventually(t, func() bool {
		messages := f.window.Messages()
		return len(messages) == 1 && messages[0].Delivery.Tag == models.DeliveryFailed
	}, "unconfirmed entry never timed out")
}

func TestOutOfOrderInboundSortedForDisplay(t *testing.T) {
	now := time.Now()
	api := &fakeBackend{
		conversations: []models.Conversation{conv("c1", 0, now)},
		history:       map[string][]models.Message{},
	}
	f := newWindowFixture(t, api, WindowConfig{})
	if err := f.window.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	f.window.ApplyInbound(msgAt("m2", "other", "later", now.Add(2*time.Second)))
	f.window.ApplyInbound(msgAt("m1", "other", "earlier", now.Add(time.Second)))

	messages := f.window.Messages()
	if len(messages) != 2 || messages[0].ID != "m1" || messages[1].ID != "m2" {
		t.Errorf("arrival order leaked into display order: %+v", messages)
	}
}

func TestInboundForOtherConversationIgnored(t *testing.T) {
	now := time.Now()
	api := &fakeBackend{
		conversations: []models.Conversation{conv("c1", 0, now)},
		history:       map[string][]models.Message{},
	}
	f := newWindowFixture(t, api, WindowConfig{})
	if err := f.window.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	f.window.ApplyInbound(models.Message{ID: "x1", ConversationID: "c9", SenderID: "other", Content: "hi", CreatedAt: now})
	if len(f.window.Messages()) != 0 {
		t.Error("message for another conversation leaked into the thread")
	}
}

func TestKeystrokeDebounce(t *testing.T) {
	now := time.Now()
	api := &fakeBackend{
		conversations: []models.Conversation{conv("c1", 0, now)},
		history:       map[string][]models.Message{},
	}
	f := newWindowFixture(t, api, WindowConfig{TypingTTL: 40 * time.Millisecond})
	if err := f.window.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// A burst of keystrokes emits the indicator once.
	f.window.Keystroke()
	f.window.Keystroke()
	f.window.Keystroke()
	if got := f.channel.typingSignals(); len(got) != 1 || !got[0] {
		t.Fatalf("expected one typing=true emission, got %v", got)
	}

	// After the debounce window passes quietly it auto-clears.
	eventually(t, func() bool {
		got := f.channel.typingSignals()
		return len(got) == 2 && !got[1]
	}, "typing indicator never auto-cleared")

	// The next burst starts a new cycle.
	f.window.Keystroke()
	if got := f.channel.typingSignals(); len(got) != 3 || !got[2] {
		t.Errorf("expected a fresh typing=true emission, got %v", got)
	}
}

func TestRemoteTyping(t *testing.T) {
	now := time.Now()
	api := &fakeBackend{
		conversations: []models.Conversation{conv("c1", 0, now)},
		history:       map[string][]models.Message{},
	}
	f := newWindowFixture(t, api, WindowConfig{})
	if err := f.window.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	f.window.ApplyTyping("other", "c1", true)
	if !f.window.RemoteTyping() {
		t.Error("remote typing not reported")
	}

	f.window.ApplyTyping("other", "c1", false)
	if f.window.RemoteTyping() {
		t.Error("remote typing not cleared")
	}

	// The viewer's own echoes never count as remote typing.
	f.window.ApplyTyping("viewer", "c1", true)
	if f.window.RemoteTyping() {
		t.Error("viewer's own typing reported as remote")
	}
}

func TestCloseClearsActive(t *testing.T) {
	now := time.Now()
	api := &fakeBackend{
		conversations: []models.Conversation{conv("c1", 0, now)},
		history:       map[string][]models.Message{},
	}
	f := newWindowFixture(t, api, WindowConfig{})
	if err := f.window.Open(context.Background(), "c1"); err != nil {
		t.Fatalf("open failed: %v", err)
	}

	f.window.Close()
	if f.store.Active() != "" {
		t.Errorf("active conversation not cleared: %q", f.store.Active())
	}
	if f.window.ConversationID() != "" {
		t.Error("window still holds a conversation")
	}
	if len(f.window.Messages()) != 0 {
		t.Error("thread not released")
	}
}
