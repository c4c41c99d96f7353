package models

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

type Status string

const (
	StatusOnline   Status = "online"
	StatusRecently Status = "recently"
	StatusOffline  Status = "offline"
)

// ParseStatus coerces an arbitrary wire value to a known status.
// Anything unrecognized counts as offline.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusOnline, StatusRecently, StatusOffline:
		return Status(s)
	}
	return StatusOffline
}

// Participant is one member of a conversation as resolved from the backend.
type Participant struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	AvatarURL string `json:"avatarUrl"`
}

func (p Participant) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// Shop is the shop reference embedded in shop-scoped conversations.
// OwnerID is the user account acting on behalf of the shop.
type Shop struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
}

// Conversation is a two-party thread between the viewer and either another
// user or a shop (acting through its owning user).
type Conversation struct {
	ID                 string        `json:"id"`
	Participants       []Participant `json:"participants"`
	ShopID             string        `json:"shop_id"`
	Shop               *Shop         `json:"shop"`
	LastMessagePreview string        `json:"lastMessagePreview"`
	LastMessageAt      time.Time     `json:"lastMessageAt"`
	UnreadCount        int           `json:"unread_count"`
}

// OtherParticipant returns the unique member whose id differs from the
// viewer's, or nil when none can be resolved (e.g. deleted account).
func (c *Conversation) OtherParticipant(viewerID string) *Participant {
	for i := range c.Participants {
		if c.Participants[i].ID != viewerID {
			return &c.Participants[i]
		}
	}
	return nil
}

// IsShopOwner reports whether the viewer is looking at this conversation
// from the shop's side of the counter.
func (c *Conversation) IsShopOwner(viewerID string) bool {
	return c.ShopID != "" && c.Shop != nil && c.Shop.OwnerID == viewerID
}

// Message is a single chat message. ID holds a client-generated placeholder
// until the server confirms persistence, after which it is replaced by the
// server id and the message becomes immutable.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"senderId"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"createdAt"`
	IsRead         bool      `json:"isRead"`
	Delivery       Delivery  `json:"-"`
}
