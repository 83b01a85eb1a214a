package inmemdb

import (
	"context"

	"github.com/trezcool/shule/core/tempadmin"
)

type auditRepository struct {
	db *auditTable
}

var _ tempadmin.AuditRepository = (*auditRepository)(nil)

func NewAuditRepository(db *DB) tempadmin.AuditRepository {
	return &auditRepository{db: db.audit}
}

func (repo *auditRepository) InsertAuditEvent(_ context.Context, evt tempadmin.AuditEvent) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.rows = append(repo.db.rows, evt)
	return nil
}

func (repo *auditRepository) QueryAuditEvents(_ context.Context, tempAdminID string) ([]tempadmin.AuditEvent, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	events := make([]tempadmin.AuditEvent, 0)
	for _, evt := range repo.db.rows {
		if evt.TempAdminID == tempAdminID {
			events = append(events, evt)
		}
	}
	return events, nil
}
