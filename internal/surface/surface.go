// Package surface holds the two thin UI shells: the full messaging page and
// the floating chat bubble. Each owns its own conversation store and message
// window against the same backend data; the only thing they share is the
// event bus, which is what keeps their badges in agreement.
package surface

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"storechat/internal/bus"
	"storechat/internal/chat"
	"storechat/internal/models"
	"storechat/internal/realtime"
)

type backendAPI interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	GetMessages(ctx context.Context, conversationID string) ([]models.Message, error)
	SendMessage(ctx context.Context, conversationID, text string) (models.Message, error)
	MarkRead(ctx context.Context, conversationID string) error
	GetUserStatus(ctx context.Context, participantID string) (models.Status, error)
}

type eventChannel interface {
	On(event string, fn realtime.Handler) func()
	JoinConversation(conversationID string)
	SendMessage(conversationID, text string) error
	SetTyping(conversationID string, isTyping bool)
}

type Deps struct {
	ViewerID string
	Bus      *bus.Bus
	API      backendAPI
	Channel  eventChannel
	Snapshot chat.Snapshotter

	PendingTimeout time.Duration
	TypingTTL      time.Duration

	// OnBadge receives the unread total every time it changes. Optional.
	OnBadge func(total int)
	// OnChange fires after any visible thread mutation. Optional.
	OnChange func()
}

// Surface is the shared shell under both consumers.
type Surface struct {
	name string
	deps Deps

	store    *chat.ConversationStore
	presence *chat.PresenceTracker
	window   *chat.MessageWindow

	mu      sync.Mutex
	badge   int
	mounted bool
	unsubs  []func()
}

// NewMessagingPage builds the full messaging page shell.
func NewMessagingPage(deps Deps) *Surface {
	return newSurface("messaging-page", deps)
}

// NewChatBubbleWidget builds the floating bubble shell.
func NewChatBubbleWidget(deps Deps) *Surface {
	return newSurface("chat-bubble", deps)
}

func newSurface(name string, deps Deps) *Surface {
	presence := chat.NewPresenceTracker(deps.API)
	return &Surface{
		name:     name,
		deps:     deps,
		store:    chat.NewConversationStore(deps.ViewerID, deps.API, deps.Bus, deps.Snapshot),
		presence: presence,
	}
}

// Mount wires the surface up: badge subscription, realtime event routing,
// warm start from the snapshot and a fresh REST load. The load on every
// mount is what saves a surface that subscribed after a publish from
// permanent drift.
func (s *Surface) Mount(ctx context.Context) error {
	s.mu.Lock()
	if s.mounted {
		s.mu.Unlock()
		return nil
	}
	s.mounted = true
	s.mu.Unlock()

	s.window = chat.NewMessageWindow(ctx, chat.WindowConfig{
		Store:          s.store,
		API:            s.deps.API,
		Channel:        s.deps.Channel,
		Presence:       s.presence,
		PendingTimeout: s.deps.PendingTimeout,
		TypingTTL:      s.deps.TypingTTL,
		OnChange:       s.deps.OnChange,
	})

	s.addUnsub(s.deps.Bus.Subscribe(chat.EventUnreadCountChanged, func(payload any) {
		total, ok := payload.(int)
		if !ok {
			return
		}
		s.mu.Lock()
		s.badge = total
		s.mu.Unlock()
		if s.deps.OnBadge != nil {
			s.deps.OnBadge(total)
		}
	}))

	s.addUnsub(s.deps.Channel.On(realtime.EventNewMessage, func(data json.RawMessage) {
		var ev realtime.NewMessage
		if err := json.Unmarshal(data, &ev); err != nil {
			slog.Debug("malformed new-message event", "surface", s.name, "error", err)
			return
		}
		msg := models.Message{
			ID:             ev.ID,
			ConversationID: ev.ConversationID,
			SenderID:       ev.SenderID,
			Content:        ev.Content,
			CreatedAt:      parseTime(ev.CreatedAt),
			IsRead:         ev.IsRead,
		}
		s.store.ApplyInbound(msg)
		s.window.ApplyInbound(msg)
	}))

	s.addUnsub(s.deps.Channel.On(realtime.EventUserTyping, func(data json.RawMessage) {
		var ev realtime.UserTyping
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		s.window.ApplyTyping(ev.UserID, ev.ConversationID, ev.IsTyping)
	}))

	s.addUnsub(s.deps.Channel.On(realtime.EventUserStatusChanged, func(data json.RawMessage) {
		var ev realtime.UserStatusChanged
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		s.presence.ApplyPush(ev.UserID, models.ParseStatus(ev.Status))
	}))

	s.store.WarmStart()
	return s.store.Load(ctx)
}

// Unmount drops all subscriptions and closes the open conversation. Safe to
// call more than once.
func (s *Surface) Unmount() {
	s.mu.Lock()
	if !s.mounted {
		s.mu.Unlock()
		return
	}
	s.mounted = false
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if s.window != nil {
		s.window.Close()
	}
}

func (s *Surface) Name() string {
	return s.name
}

// Badge is the unread total this surface currently displays.
func (s *Surface) Badge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.badge
}

func (s *Surface) Conversations() []chat.ConversationView {
	return s.store.Conversations()
}

func (s *Surface) OpenConversation(ctx context.Context, conversationID string) error {
	return s.window.Open(ctx, conversationID)
}

func (s *Surface) Send(text string) error {
	return s.window.Send(text)
}

func (s *Surface) Keystroke() {
	s.window.Keystroke()
}

func (s *Surface) Window() *chat.MessageWindow {
	return s.window
}

func (s *Surface) Store() *chat.ConversationStore {
	return s.store
}

func (s *Surface) PresenceOf(participantID string) models.Status {
	return s.presence.Status(participantID)
}

func (s *Surface) addUnsub(fn func()) {
	s.mu.Lock()
	s.unsubs = append(s.unsubs, fn)
	s.mu.Unlock()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
