package realtime

import "encoding/json"

// Envelope is the JSON frame exchanged on the realtime channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Event names and payload keys below are a wire contract with an unmodified
// backend and must be preserved bit-for-bit.

// Inbound events.
const (
	EventNewMessage        = "new-message"
	EventUserTyping        = "user-typing"
	EventUserStatusChanged = "user-status-changed"
)

// Outbound events.
const (
	EventJoinConversation = "join-conversation"
	EventSendMessage      = "send-message"
	EventTyping           = "typing"
)

type NewMessage struct {
	ConversationID string `json:"conversationId"`
	ID             string `json:"id"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
	CreatedAt      string `json:"createdAt"`
	IsRead         bool   `json:"isRead"`
}

type UserTyping struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type UserStatusChanged struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type joinConversation struct {
	ConversationID string `json:"conversationId"`
}

type sendMessage struct {
	ConversationID string `json:"conversationId"`
	Content        string `json:"content"`
}

type typing struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

func envelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: data}, nil
}
