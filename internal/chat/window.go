package chat

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/c-pro/geche"
	"github.com/google/uuid"

	"storechat/internal/content"
	"storechat/internal/models"
)

var ErrNoOpenConversation = errors.New("no open conversation")

// reconcileWindow bounds how far apart in time an optimistic entry and its
// server confirmation may be and still be considered the same message.
// There is no correlation id on the wire.
const reconcileWindow = 30 * time.Second

// remoteTypingTTL clears the remote typing flag when no further signal
// arrives; slightly longer than the producer's 3s debounce.
const remoteTypingTTL = 5 * time.Second

type historyAPI interface {
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, conversationID, text string) (models.Message, error)
}

type channelAPI interface {
	JoinConversation(conversationID string)
	SendMessage(conversationID, text string) error
	SetTyping(conversationID string, isTyping bool)
}

type WindowConfig struct {
	Store    *ConversationStore
	API      historyAPI
	Channel  channelAPI
	Presence *PresenceTracker

	// PendingTimeout bounds how long a pending entry waits for confirmation
	// before surfacing as failed. Defaults to 15s.
	PendingTimeout time.Duration
	// TypingTTL is the producer-side debounce: a local typing emission
	// auto-clears this long after the last keystroke. Defaults to 3s.
	TypingTTL time.Duration
	// OnChange is invoked after every visible mutation so the surface can
	// re-render. Optional.
	OnChange func()
}

// MessageWindow owns the message thread of exactly one open conversation:
// history fetch, optimistic send, reconciliation and read-marking.
type MessageWindow struct {
	store    *ConversationStore
	api      historyAPI
	channel  channelAPI
	presence *PresenceTracker

	pendingTimeout time.Duration
	typingTTL      time.Duration
	onChange       func()
	now            func() time.Time
	baseCtx        context.Context

	mu             sync.Mutex
	conversationID string
	messages       []models.Message
	typingActive   bool
	typingTimer    *time.Timer

	remoteTyping geche.Geche[string, bool]
}

func NewMessageWindow(ctx context.Context, cfg WindowConfig) *MessageWindow {
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = 15 * time.Second
	}
	if cfg.TypingTTL <= 0 {
		cfg.TypingTTL = 3 * time.Second
	}
	return &MessageWindow{
		store:          cfg.Store,
		api:            cfg.API,
		channel:        cfg.Channel,
		presence:       cfg.Presence,
		pendingTimeout: cfg.PendingTimeout,
		typingTTL:      cfg.TypingTTL,
		onChange:       cfg.OnChange,
		now:            time.Now,
		baseCtx:        context.WithoutCancel(ctx),
		remoteTyping:   geche.NewMapTTLCache[string, bool](ctx, remoteTypingTTL, time.Second),
	}
}

// Open selects a conversation: fetch history, join the room on the channel
// and mark the thread read. A late history response for a conversation that
// is no longer the open one is discarded.
func (w *MessageWindow) Open(ctx context.Context, conversationID string) error {
	w.mu.Lock()
	w.conversationID = conversationID
	w.messages = nil
	w.mu.Unlock()

	w.store.SetActive(conversationID)
	w.channel.JoinConversation(conversationID)

	history, err := w.api.GetMessages(ctx, conversationID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	if w.conversationID != conversationID {
		w.mu.Unlock()
		return nil
	}
	w.messages = dedupByID(history)
	sortByCreatedAt(w.messages)
	w.mu.Unlock()

	w.store.MarkRead(ctx, conversationID)
	w.fetchPresenceBaseline(ctx, conversationID)
	w.notify()
	return nil
}

// Close releases the conversation. In-flight fetches are not cancelled;
// their late responses are discarded against the active id.
func (w *MessageWindow) Close() {
	w.mu.Lock()
	id := w.conversationID
	w.conversationID = ""
	w.messages = nil
	if w.typingTimer != nil {
		w.typingTimer.Stop()
		w.typingTimer = nil
	}
	w.typingActive = false
	w.mu.Unlock()

	if id != "" {
		w.store.ClearActive(id)
	}
}

func (w *MessageWindow) ConversationID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conversationID
}

// Messages returns the thread in display order: sorted by creation time,
// regardless of the order events arrived on the channel.
func (w *MessageWindow) Messages() []models.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]models.Message, len(w.messages))
	copy(out, w.messages)
	return out
}

// Send validates and appends an optimistic pending entry, then dispatches in
// the background so the input never blocks on network latency. The live
// channel is preferred; on failure the REST path takes over and its response
// is authoritative for reconciliation.
func (w *MessageWindow) Send(text string) error {
	if err := content.ValidateMessage(text); err != nil {
		return err
	}

	w.mu.Lock()
	conversationID := w.conversationID
	if conversationID == "" {
		w.mu.Unlock()
		return ErrNoOpenConversation
	}
	localID := uuid.NewString()
	msg := models.Message{
		ID:             localID,
		ConversationID: conversationID,
		SenderID:       w.store.viewerID,
		Content:        text,
		CreatedAt:      w.now(),
		IsRead:         true,
		Delivery:       models.Pending(localID),
	}
	w.messages = append(w.messages, msg)
	w.mu.Unlock()

	w.notify()
	go w.dispatch(msg)
	return nil
}

func (w *MessageWindow) dispatch(msg models.Message) {
	if err := w.channel.SendMessage(msg.ConversationID, msg.Content); err == nil {
		// Confirmation arrives as the new-message echo; if it never does,
		// the entry surfaces as failed. No automatic retry.
		time.AfterFunc(w.pendingTimeout, func() {
			w.failPending(msg.ID, "delivery confirmation timed out")
		})
		return
	}

	ctx, cancel := context.WithTimeout(w.baseCtx, w.pendingTimeout)
	defer cancel()

	confirmed, err := w.api.SendMessage(ctx, msg.ConversationID, msg.Content)
	if err != nil {
		slog.Warn("send fallback failed", "conversation", msg.ConversationID, "error", err)
		w.failPending(msg.ID, err.Error())
		return
	}
	// The REST response is authoritative; no channel echo is assumed for
	// the fallback path.
	w.ApplyInbound(confirmed)
}

// ApplyInbound folds a server message into the thread: duplicates by server
// id are dropped, the viewer's own messages reconcile the oldest matching
// pending entry instead of appending a second bubble, and everything else
// is inserted in createdAt order.
func (w *MessageWindow) ApplyInbound(msg models.Message) {
	w.mu.Lock()
	if msg.ConversationID != w.conversationID {
		w.mu.Unlock()
		return
	}
	for i := range w.messages {
		if w.messages[i].ID == msg.ID {
			w.mu.Unlock()
			return
		}
	}
	if msg.SenderID != w.store.viewerID || !w.reconcileLocked(msg) {
		w.messages = append(w.messages, msg)
	}
	sortByCreatedAt(w.messages)
	w.mu.Unlock()
	w.notify()
}

func (w *MessageWindow) reconcileLocked(confirmed models.Message) bool {
	for i := range w.messages {
		m := &w.messages[i]
		if !m.Delivery.IsPending() || m.Content != confirmed.Content {
			continue
		}
		if !confirmed.CreatedAt.IsZero() && absDuration(confirmed.CreatedAt.Sub(m.CreatedAt)) > reconcileWindow {
			continue
		}

		next, _ := m.Delivery.Confirm()
		m.Delivery = next
		m.ID = confirmed.ID
		m.IsRead = confirmed.IsRead
		if !confirmed.CreatedAt.IsZero() {
			m.CreatedAt = confirmed.CreatedAt
		}
		return true
	}
	return false
}

func (w *MessageWindow) failPending(localID, reason string) {
	w.mu.Lock()
	changed := false
	for i := range w.messages {
		m := &w.messages[i]
		if m.ID == localID {
			if next, ok := m.Delivery.Fail(reason); ok {
				m.Delivery = next
				changed = true
			}
			break
		}
	}
	w.mu.Unlock()

	if changed {
		w.notify()
	}
}

// Keystroke emits the typing indicator at most once per burst and auto-
// clears it after the debounce window passes with no further keystroke.
func (w *MessageWindow) Keystroke() {
	w.mu.Lock()
	conversationID := w.conversationID
	if conversationID == "" {
		w.mu.Unlock()
		return
	}
	emit := !w.typingActive
	w.typingActive = true
	if w.typingTimer != nil {
		w.typingTimer.Stop()
	}
	w.typingTimer = time.AfterFunc(w.typingTTL, w.stopTyping)
	w.mu.Unlock()

	if emit {
		w.channel.SetTyping(conversationID, true)
	}
}

func (w *MessageWindow) stopTyping() {
	w.mu.Lock()
	if !w.typingActive {
		w.mu.Unlock()
		return
	}
	w.typingActive = false
	conversationID := w.conversationID
	w.mu.Unlock()

	if conversationID != "" {
		w.channel.SetTyping(conversationID, false)
	}
}

// ApplyTyping records the remote participant's typing state. The flag is
// ephemeral and expires on its own when no further signal arrives.
func (w *MessageWindow) ApplyTyping(userID, conversationID string, isTyping bool) {
	if userID == w.store.viewerID {
		return
	}
	if isTyping {
		w.remoteTyping.Set(conversationID, true)
	} else {
		_ = w.remoteTyping.Del(conversationID)
	}
	w.notify()
}

// RemoteTyping reports whether the other participant of the open
// conversation is currently typing.
func (w *MessageWindow) RemoteTyping() bool {
	w.mu.Lock()
	conversationID := w.conversationID
	w.mu.Unlock()
	if conversationID == "" {
		return false
	}
	_, err := w.remoteTyping.Get(conversationID)
	return err == nil
}

func (w *MessageWindow) fetchPresenceBaseline(ctx context.Context, conversationID string) {
	if w.presence == nil {
		return
	}
	conv, ok := w.store.Conversation(conversationID)
	if !ok {
		return
	}
	other := conv.OtherParticipant(w.store.viewerID)
	if other == nil {
		return
	}
	w.presence.Baseline(ctx, other.ID)
}

func (w *MessageWindow) notify() {
	if w.onChange != nil {
		w.onChange()
	}
}

func sortByCreatedAt(messages []models.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

func dedupByID(messages []models.Message) []models.Message {
	seen := make(map[string]bool, len(messages))
	out := messages[:0]
	for _, m := range messages {
		if m.ID != "" && seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		out = append(out, m)
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
