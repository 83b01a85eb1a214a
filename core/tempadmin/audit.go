package tempadmin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Audit actions
const (
	ActionCreate = "CREATE_TEMP_ADMIN"
	ActionRevoke = "REVOKE_TEMP_ADMIN"
)

// AuditEvent is an immutable record of a Grant lifecycle transition.
type AuditEvent struct {
	ID          string                 `json:"id"`
	Action      string                 `json:"action"`
	TempAdminID string                 `json:"tempAdminId"`
	PerformedBy string                 `json:"performedBy"`
	Details     map[string]interface{} `json:"details"`
	Timestamp   time.Time              `json:"timestamp"`
}

// AuditRepository is an append-only sink: events are never updated nor deleted.
type AuditRepository interface {
	InsertAuditEvent(ctx context.Context, evt AuditEvent) error
	// QueryAuditEvents returns the events of a grant, oldest first.
	QueryAuditEvents(ctx context.Context, tempAdminID string) ([]AuditEvent, error)
}

// recordAudit appends an audit event. Failures are logged and counted, never returned.
func (m *Manager) recordAudit(ctx context.Context, action, grantID, performedBy string, details map[string]interface{}) {
	evt := AuditEvent{
		ID:          uuid.NewString(),
		Action:      action,
		TempAdminID: grantID,
		PerformedBy: performedBy,
		Details:     details,
		Timestamp:   m.now(),
	}

	ctx, cancel := m.opContext(ctx)
	defer cancel()
	if err := m.audit.InsertAuditEvent(ctx, evt); err != nil {
		auditWriteFailures.Inc()
		m.logger.Error(
			fmt.Sprintf("tempadmin: writing %s audit event for %s: %v", action, grantID, err),
			err,
			map[string]interface{}{"action": action, "tempAdminId": grantID, "performedBy": performedBy},
		)
	}
}
