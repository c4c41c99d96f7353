// Package storage is the local snapshot cache behind the conversation list.
// It exists so a freshly mounted surface can render the last known list and
// badge immediately and then re-sync over REST; the backend remains the sole
// source of truth and messages themselves are never persisted here.
package storage

import (
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"storechat/internal/models"
)

var bucketConversations = []byte("conversations")

type SnapshotStore struct {
	db *bbolt.DB
}

func NewSnapshotStore(path string) (*SnapshotStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketConversations)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &SnapshotStore{db: db}, nil
}

func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// SaveConversations replaces the stored snapshot with the given list.
func (s *SnapshotStore) SaveConversations(conversations []models.Conversation) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(bucketConversations); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketConversations)
		if err != nil {
			return err
		}

		for _, conv := range conversations {
			dbc := toDBConversation(conv)
			data, err := dbc.MarshalBinary()
			if err != nil {
				return fmt.Errorf("failed to marshal conversation %s: %w", conv.ID, err)
			}
			if err := b.Put(dbc.Key(), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// LoadConversations returns the stored snapshot ordered by recency. A
// corrupt entry is skipped rather than failing the whole load.
func (s *SnapshotStore) LoadConversations() ([]models.Conversation, error) {
	var conversations []models.Conversation

	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketConversations)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var dbc DBConversation
			if err := dbc.UnmarshalBinary(v); err != nil {
				return nil
			}
			conversations = append(conversations, dbc.toModel())
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].LastMessageAt.After(conversations[j].LastMessageAt)
	})
	return conversations, nil
}
