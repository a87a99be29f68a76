package pg

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/solumlabs/authcore/internal/auth"
	"github.com/solumlabs/authcore/internal/ids"
)

type auditStore struct{ db *sql.DB }

func (s *auditStore) Append(ctx context.Context, entry *auth.AuditEntry) error {
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	details, _ := json.Marshal(entry.Details)
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log (id, user_id, action, resource, resource_id,
			status, ip_address, user_agent, details, occurred_at)
		values ($1, nullif($2, ''), $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID, entry.UserID, entry.Action, entry.Resource, entry.ResourceID,
		entry.Status, entry.IPAddress, entry.UserAgent, details, entry.OccurredAt,
	)
	return err
}
