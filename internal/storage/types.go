package storage

import (
	"encoding"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"storechat/internal/models"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

type DBParticipant struct {
	ID        string `msgpack:"id"`
	FirstName string `msgpack:"firstName"`
	LastName  string `msgpack:"lastName"`
	AvatarURL string `msgpack:"avatarUrl"`
}

type DBShop struct {
	ID      string `msgpack:"id"`
	Name    string `msgpack:"name"`
	OwnerID string `msgpack:"ownerId"`
}

type DBConversation struct {
	ID                 string          `msgpack:"id"`
	Participants       []DBParticipant `msgpack:"participants"`
	ShopID             string          `msgpack:"shopId"`
	Shop               *DBShop         `msgpack:"shop"`
	LastMessagePreview string          `msgpack:"lastMessagePreview"`
	LastMessageAt      int64           `msgpack:"lastMessageAt"`
	UnreadCount        int             `msgpack:"unreadCount"`
}

func (c *DBConversation) Key() []byte {
	return []byte(c.ID)
}

func (c *DBConversation) MarshalBinary() (data []byte, err error) {
	type alias DBConversation
	return msgpack.Marshal((*alias)(c))
}

func (c *DBConversation) UnmarshalBinary(data []byte) error {
	type alias DBConversation
	return msgpack.Unmarshal(data, (*alias)(c))
}

func toDBConversation(c models.Conversation) DBConversation {
	db := DBConversation{
		ID:                 c.ID,
		ShopID:             c.ShopID,
		LastMessagePreview: c.LastMessagePreview,
		LastMessageAt:      c.LastMessageAt.Unix(),
		UnreadCount:        c.UnreadCount,
	}
	for _, p := range c.Participants {
		db.Participants = append(db.Participants, DBParticipant(p))
	}
	if c.Shop != nil {
		shop := DBShop(*c.Shop)
		db.Shop = &shop
	}
	return db
}

func (c *DBConversation) toModel() models.Conversation {
	conv := models.Conversation{
		ID:                 c.ID,
		ShopID:             c.ShopID,
		LastMessagePreview: c.LastMessagePreview,
		UnreadCount:        c.UnreadCount,
	}
	if c.LastMessageAt > 0 {
		conv.LastMessageAt = time.Unix(c.LastMessageAt, 0)
	}
	for _, p := range c.Participants {
		conv.Participants = append(conv.Participants, models.Participant(p))
	}
	if c.Shop != nil {
		shop := models.Shop(*c.Shop)
		conv.Shop = &shop
	}
	return conv
}
