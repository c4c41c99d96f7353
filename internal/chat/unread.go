package chat

import "storechat/internal/models"

// UnreadCounts maps conversation id to its unread count, with keys present
// only when the count is positive.
func UnreadCounts(conversations []models.Conversation) map[string]int {
	counts := make(map[string]int)
	for _, c := range conversations {
		if c.UnreadCount > 0 {
			counts[c.ID] = c.UnreadCount
		}
	}
	return counts
}

// TotalUnread is the badge value: the sum of all per-conversation counts.
// Invariant: after any store mutation settles, the published total equals
// this sum.
func TotalUnread(conversations []models.Conversation) int {
	total := 0
	for _, c := range conversations {
		total += c.UnreadCount
	}
	return total
}

func totalLocked(conversations []models.Conversation) int {
	return TotalUnread(conversations)
}
