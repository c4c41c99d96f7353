package chat

import (
	"context"
	"log/slog"

	"github.com/c-pro/geche"

	"storechat/internal/models"
)

type statusAPI interface {
	GetUserStatus(ctx context.Context, participantID string) (models.Status, error)
}

// PresenceTracker answers "is participant P currently reachable" for the
// participant of the open conversation. A REST fetch establishes the
// baseline; pushed status changes overwrite it unconditionally. No history
// is kept.
type PresenceTracker struct {
	api      statusAPI
	statuses geche.Geche[string, models.Status]
}

func NewPresenceTracker(api statusAPI) *PresenceTracker {
	return &PresenceTracker{
		api:      api,
		statuses: geche.NewMapCache[string, models.Status](),
	}
}

// Baseline fetches the current status once. Failure is non-fatal: the
// conversation renders with the offline fallback.
func (p *PresenceTracker) Baseline(ctx context.Context, participantID string) {
	if participantID == "" {
		return
	}
	status, err := p.api.GetUserStatus(ctx, participantID)
	if err != nil {
		slog.Debug("presence baseline failed", "participant", participantID, "error", err)
		return
	}
	p.statuses.Set(participantID, status)
}

// ApplyPush applies a pushed status change. Last write wins; status is too
// coarse-grained for timestamp comparison to matter.
func (p *PresenceTracker) ApplyPush(userID string, status models.Status) {
	p.statuses.Set(userID, status)
}

func (p *PresenceTracker) Status(participantID string) models.Status {
	status, err := p.statuses.Get(participantID)
	if err != nil {
		return models.StatusOffline
	}
	return status
}
