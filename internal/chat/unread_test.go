package chat

import (
	"testing"
	"time"

	"storechat/internal/models"
)

func TestTotalUnread(t *testing.T) {
	now := time.Now()
	conversations := []models.Conversation{
		conv("c1", 2, now),
		conv("c2", 0, now),
		conv("c3", 5, now),
	}
	if got := TotalUnread(conversations); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	if got := TotalUnread(nil); got != 0 {
		t.Errorf("expected 0 for empty list, got %d", got)
	}
}

func TestUnreadCounts(t *testing.T) {
	now := time.Now()
	counts := UnreadCounts([]models.Conversation{
		conv("c1", 2, now),
		conv("c2", 0, now),
	})

	if len(counts) != 1 {
		t.Fatalf("zero-count conversations must be absent, got %v", counts)
	}
	if counts["c1"] != 2 {
		t.Errorf("expected c1=2, got %v", counts)
	}
}
