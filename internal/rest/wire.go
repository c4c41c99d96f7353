package rest

import (
	"encoding/json"
	"time"

	"storechat/internal/models"
)

// Wire shapes as the backend serializes them. Field names are part of the
// contract with an unmodified backend and must not change.

type wireParticipant struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	AvatarURL string `json:"avatarUrl"`
}

type wireShop struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OwnerID string `json:"ownerId"`
}

type wireMessage struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt"`
	IsRead         bool   `json:"isRead"`
}

type wireConversation struct {
	ID           string            `json:"id"`
	Participants []wireParticipant `json:"participants"`
	ShopID       string            `json:"shop_id"`
	Shop         *wireShop         `json:"shop"`
	LastMessage  *wireMessage      `json:"lastMessage"`
	UnreadCount  int               `json:"unread_count"`
}

type wireStatus struct {
	Status string `json:"status"`
}

func (wm wireMessage) toModel() models.Message {
	return models.Message{
		ID:             wm.ID,
		ConversationID: wm.ConversationID,
		SenderID:       wm.SenderID,
		Content:        wm.Content,
		CreatedAt:      parseTime(wm.CreatedAt),
		IsRead:         wm.IsRead,
	}
}

func (wc wireConversation) toModel() models.Conversation {
	conv := models.Conversation{
		ID:          wc.ID,
		ShopID:      wc.ShopID,
		UnreadCount: wc.UnreadCount,
	}
	if conv.UnreadCount < 0 {
		conv.UnreadCount = 0
	}
	for _, wp := range wc.Participants {
		conv.Participants = append(conv.Participants, models.Participant(wp))
	}
	if wc.Shop != nil {
		shop := models.Shop(*wc.Shop)
		conv.Shop = &shop
	}
	if wc.LastMessage != nil {
		conv.LastMessagePreview = wc.LastMessage.Content
		conv.LastMessageAt = parseTime(wc.LastMessage.CreatedAt)
	}
	return conv
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// unwrap peels an optional {"data": ...} envelope off a response body.
func unwrap(body []byte) json.RawMessage {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Data) > 0 {
		return envelope.Data
	}
	return body
}

// decodeList decodes a response into a slice, tolerating an envelope and
// coercing missing or malformed arrays to empty. Individually broken
// elements drop the whole decode to empty rather than crashing the caller.
func decodeList[T any](body []byte) []T {
	var items []T
	if err := json.Unmarshal(unwrap(body), &items); err != nil {
		return nil
	}
	return items
}
