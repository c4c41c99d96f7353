// Package chat owns the client-side conversation state: the conversation
// list, the message window of the open conversation, presence and the
// unread aggregation shared across surfaces through the event bus.
package chat

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"storechat/internal/models"
)

// EventUnreadCountChanged is the bus event carrying the integer unread
// total. Any consumer anywhere in the process may subscribe to it.
const EventUnreadCountChanged = "unreadCountChanged"

type publisher interface {
	Publish(event string, payload any)
}

type listAPI interface {
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	MarkRead(ctx context.Context, conversationID string) error
}

// Snapshotter is the optional local cache behind WarmStart. A surface that
// mounts after an unread publish re-renders from the snapshot and then
// re-fetches, so it never drifts permanently.
type Snapshotter interface {
	SaveConversations(conversations []models.Conversation) error
	LoadConversations() ([]models.Conversation, error)
}

// ConversationView is a conversation plus its derived, never-persisted
// display fields, recomputed on every Conversations call.
type ConversationView struct {
	models.Conversation
	DisplayName string
	IsShopOwner bool
}

// ConversationStore maintains the ordered conversation list for one viewer.
// Each mounted surface owns its own store; cross-surface consistency comes
// from the shared bus, not from shared instances.
type ConversationStore struct {
	viewerID string
	api      listAPI
	bus      publisher
	snap     Snapshotter

	mu            sync.Mutex
	conversations []models.Conversation
	active        string
	loaded        bool
}

func NewConversationStore(viewerID string, api listAPI, bus publisher, snap Snapshotter) *ConversationStore {
	return &ConversationStore{
		viewerID: viewerID,
		api:      api,
		bus:      bus,
		snap:     snap,
	}
}

// WarmStart hydrates the list from the local snapshot so the surface renders
// instantly. A REST Load must still follow; the snapshot is display cache,
// never truth.
func (s *ConversationStore) WarmStart() {
	if s.snap == nil {
		return
	}
	conversations, err := s.snap.LoadConversations()
	if err != nil {
		slog.Debug("snapshot load failed", "error", err)
		return
	}
	if len(conversations) == 0 {
		return
	}

	s.mu.Lock()
	if s.loaded {
		s.mu.Unlock()
		return
	}
	s.conversations = conversations
	sortByRecency(s.conversations)
	total := totalLocked(s.conversations)
	s.mu.Unlock()

	s.bus.Publish(EventUnreadCountChanged, total)
}

// Load fetches the full conversation list and publishes the unread total
// immediately after it completes. Errors are retryable; existing state is
// kept so the surface degrades instead of blanking.
func (s *ConversationStore) Load(ctx context.Context) error {
	conversations, err := s.api.ListConversations(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conversations = conversations
	sortByRecency(s.conversations)
	s.loaded = true
	total := totalLocked(s.conversations)
	s.mu.Unlock()

	s.bus.Publish(EventUnreadCountChanged, total)
	s.persist()
	return nil
}

// Conversations returns the ordered list with display names resolved at
// call time.
func (s *ConversationStore) Conversations() []ConversationView {
	s.mu.Lock()
	defer s.mu.Unlock()

	views := make([]ConversationView, 0, len(s.conversations))
	for i := range s.conversations {
		c := s.conversations[i]
		views = append(views, ConversationView{
			Conversation: c,
			DisplayName:  models.ResolveDisplayName(s.viewerID, &c),
			IsShopOwner:  c.IsShopOwner(s.viewerID),
		})
	}
	return views
}

func (s *ConversationStore) Conversation(id string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := findLocked(s.conversations, id); c != nil {
		return *c, true
	}
	return models.Conversation{}, false
}

// SetActive marks a conversation as currently open so inbound messages for
// it do not count as unread.
func (s *ConversationStore) SetActive(conversationID string) {
	s.mu.Lock()
	s.active = conversationID
	s.mu.Unlock()
}

// ClearActive closes the conversation only if it is still the active one;
// a stale close from a navigated-away window is a no-op.
func (s *ConversationStore) ClearActive(conversationID string) {
	s.mu.Lock()
	if s.active == conversationID {
		s.active = ""
	}
	s.mu.Unlock()
}

func (s *ConversationStore) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ApplyInbound updates the owning conversation's preview and recency. The
// unread count only increases when the message was authored by someone else
// and the conversation is not the open one; an open conversation's message
// is considered read immediately and MarkRead settles it with the server.
func (s *ConversationStore) ApplyInbound(msg models.Message) {
	s.mu.Lock()
	c := findLocked(s.conversations, msg.ConversationID)
	if c == nil {
		s.conversations = append(s.conversations, models.Conversation{
			ID: msg.ConversationID,
		})
		c = &s.conversations[len(s.conversations)-1]
	}

	c.LastMessagePreview = msg.Content
	if msg.CreatedAt.After(c.LastMessageAt) {
		c.LastMessageAt = msg.CreatedAt
	}

	counted := msg.SenderID != s.viewerID && s.active != msg.ConversationID
	if counted {
		c.UnreadCount++
	}
	sortByRecency(s.conversations)
	total := totalLocked(s.conversations)
	s.mu.Unlock()

	if counted {
		s.bus.Publish(EventUnreadCountChanged, total)
	}
	s.persist()
}

// MarkRead zeroes the local count and republishes synchronously, then
// confirms with the server in the background. A failed confirmation is
// logged and never rolled back; the next Load reconciles. Idempotent.
func (s *ConversationStore) MarkRead(ctx context.Context, conversationID string) {
	s.mu.Lock()
	c := findLocked(s.conversations, conversationID)
	if c == nil {
		s.mu.Unlock()
		return
	}
	c.UnreadCount = 0
	total := totalLocked(s.conversations)
	s.mu.Unlock()

	s.bus.Publish(EventUnreadCountChanged, total)
	s.persist()

	confirmCtx := context.WithoutCancel(ctx)
	go func() {
		if err := s.api.MarkRead(confirmCtx, conversationID); err != nil {
			slog.Warn("read-marking failed", "conversation", conversationID, "error", err)
		}
	}()
}

// TotalUnread is the current aggregate as the badge consumers see it.
func (s *ConversationStore) TotalUnread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalLocked(s.conversations)
}

func (s *ConversationStore) persist() {
	if s.snap == nil {
		return
	}
	s.mu.Lock()
	snapshot := make([]models.Conversation, len(s.conversations))
	copy(snapshot, s.conversations)
	s.mu.Unlock()

	if err := s.snap.SaveConversations(snapshot); err != nil {
		slog.Debug("snapshot save failed", "error", err)
	}
}

func findLocked(conversations []models.Conversation, id string) *models.Conversation {
	for i := range conversations {
		if conversations[i].ID == id {
			return &conversations[i]
		}
	}
	return nil
}

func sortByRecency(conversations []models.Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
	})
}
