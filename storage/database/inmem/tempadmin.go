package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/shule/core/tempadmin"
)

type tempAdminRepository struct {
	db *tempAdminTable
}

var _ tempadmin.Repository = (*tempAdminRepository)(nil)

func NewTempAdminRepository(db *DB) tempadmin.Repository {
	return &tempAdminRepository{db: db.tempAdmin}
}

func (repo *tempAdminRepository) InsertGrant(_ context.Context, g tempadmin.Grant) (tempadmin.Grant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if g.IsActive {
		if _, ok := repo.activeByEmail(g.Email); ok {
			return tempadmin.Grant{}, tempadmin.ErrActiveGrantExists
		}
	}
	g = copyGrant(g)
	repo.db.table[g.ID] = &g
	return copyGrant(g), nil
}

func (repo *tempAdminRepository) activeByEmail(email string) (*tempadmin.Grant, bool) {
	for _, g := range repo.db.table {
		if g.IsActive && g.Email == email {
			return g, true
		}
	}
	return nil, false
}

func (repo *tempAdminRepository) GetGrantByID(_ context.Context, id string) (tempadmin.Grant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if g, ok := repo.db.table[id]; ok {
		return copyGrant(*g), nil
	}
	return tempadmin.Grant{}, tempadmin.ErrNotFound
}

func (repo *tempAdminRepository) GetActiveGrantByEmail(_ context.Context, email string) (tempadmin.Grant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if g, ok := repo.activeByEmail(email); ok {
		return copyGrant(*g), nil
	}
	return tempadmin.Grant{}, tempadmin.ErrNotFound
}

func (repo *tempAdminRepository) QueryGrants(_ context.Context, filter tempadmin.QueryFilter) ([]tempadmin.Grant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	grants := make([]tempadmin.Grant, 0, len(repo.db.table))
	for _, g := range repo.db.table {
		if filter.ActiveOnly && !g.IsActive {
			continue
		}
		if !filter.ExpiredBefore.IsZero() && !g.ExpiresAt.Before(filter.ExpiredBefore) {
			continue
		}
		grants = append(grants, copyGrant(*g))
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].CreatedAt.After(grants[j].CreatedAt) })
	return grants, nil
}

func (repo *tempAdminRepository) RevokeGrant(
	_ context.Context,
	id string,
	revokedAt time.Time,
	revokedBy, reason string,
) (tempadmin.Grant, bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	g, ok := repo.db.table[id]
	if !ok {
		return tempadmin.Grant{}, false, tempadmin.ErrNotFound
	}
	if !g.IsActive {
		return copyGrant(*g), false, nil
	}
	g.IsActive = false
	g.RevokedAt = &revokedAt
	g.RevokedBy = revokedBy
	g.RevokeReason = reason
	return copyGrant(*g), true, nil
}

func (repo *tempAdminRepository) TouchGrant(_ context.Context, id string, lastUsed time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	g, ok := repo.db.table[id]
	if !ok {
		return tempadmin.ErrNotFound
	}
	g.LastUsed = &lastUsed
	return nil
}

func copyGrant(g tempadmin.Grant) tempadmin.Grant {
	g.Permissions = append([]string(nil), g.Permissions...)
	if g.LastUsed != nil {
		t := *g.LastUsed
		g.LastUsed = &t
	}
	if g.RevokedAt != nil {
		t := *g.RevokedAt
		g.RevokedAt = &t
	}
	return g
}
