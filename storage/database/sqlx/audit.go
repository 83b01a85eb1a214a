package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/tempadmin"
)

var auditColumns = columns("id", "action", "temp_admin_id", "performed_by", "details", "timestamp")

type auditRow struct {
	ID          string    `db:"id"`
	Action      string    `db:"action"`
	TempAdminID string    `db:"temp_admin_id"`
	PerformedBy string    `db:"performed_by"`
	Details     null.JSON `db:"details"`
	Timestamp   time.Time `db:"timestamp"`
}

// auditRepository only ever inserts: the table rejects updates and deletes.
type auditRepository struct {
	db core.DBExecutor
}

var _ tempadmin.AuditRepository = (*auditRepository)(nil)

func NewAuditRepository(db core.DBExecutor) tempadmin.AuditRepository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) InsertAuditEvent(ctx context.Context, evt tempadmin.AuditEvent) error {
	details := evt.Details
	if details == nil {
		details = map[string]interface{}{}
	}
	data, err := json.Marshal(details)
	if err != nil {
		return errors.Wrap(err, "encoding audit details")
	}
	row := auditRow{
		ID:          evt.ID,
		Action:      evt.Action,
		TempAdminID: evt.TempAdminID,
		PerformedBy: evt.PerformedBy,
		Details:     null.JSONFrom(data),
		Timestamp:   evt.Timestamp,
	}

	_, err = sqlx.NamedExecContext(ctx, repo.db, `
		INSERT INTO temp_admin_audit_log (`+auditColumns+`)
		VALUES (:id, :action, :temp_admin_id, :performed_by, :details, :timestamp)`,
		row,
	)
	return errors.Wrap(err, "inserting audit event")
}

func (repo *auditRepository) QueryAuditEvents(ctx context.Context, tempAdminID string) ([]tempadmin.AuditEvent, error) {
	if !isID(tempAdminID) {
		return []tempadmin.AuditEvent{}, nil
	}
	var rows []auditRow
	err := repo.db.SelectContext(ctx, &rows, `
		SELECT `+auditColumns+` FROM temp_admin_audit_log
		WHERE temp_admin_id = $1
		ORDER BY timestamp, id`,
		tempAdminID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "selecting audit events")
	}

	events := make([]tempadmin.AuditEvent, 0, len(rows))
	for _, row := range rows {
		evt := tempadmin.AuditEvent{
			ID:          row.ID,
			Action:      row.Action,
			TempAdminID: row.TempAdminID,
			PerformedBy: row.PerformedBy,
			Timestamp:   row.Timestamp.UTC(),
		}
		if row.Details.Valid {
			if err = json.Unmarshal(row.Details.JSON, &evt.Details); err != nil {
				return nil, errors.Wrap(err, "decoding audit details")
			}
		}
		events = append(events, evt)
	}
	return events, nil
}
