package auth

import (
	"context"
	"time"

	"github.com/solumlabs/authcore/internal/ids"
	"github.com/solumlabs/authcore/internal/obs"
)

// Trail is the append-only sink for security events. Record never returns
// an error: an audit write failure is logged locally and must not abort the
// operation that triggered it.
type Trail struct {
	store AuditStore
	now   func() time.Time
}

// NewTrail wires the trail to its store. A nil store degrades to log-only.
func NewTrail(store AuditStore) *Trail {
	return &Trail{store: store, now: time.Now}
}

// Record persists the entry and mirrors it to the structured log.
func (t *Trail) Record(ctx context.Context, entry AuditEntry) {
	if t == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = t.now().UTC()
	}

	line := map[string]any{
		"level":  "info",
		"msg":    "audit",
		"action": entry.Action,
		"status": entry.Status,
	}
	if entry.UserID != "" {
		line["user_id"] = entry.UserID
	}
	if entry.Resource != "" {
		line["resource"] = entry.Resource
	}
	if entry.IPAddress != "" {
		line["ip"] = entry.IPAddress
	}
	obs.LogJSON(line)

	if t.store == nil {
		return
	}
	if err := t.store.Append(ctx, &entry); err != nil {
		obs.LogJSON(map[string]any{
			"level":  "error",
			"msg":    "audit append failed",
			"action": entry.Action,
			"error":  err.Error(),
		})
	}
}
