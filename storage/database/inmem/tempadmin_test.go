package inmemdb

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/tempadmin"
)

func TestTempAdminRepository(t *testing.T) {
	repo := NewTempAdminRepository(Open())
	ctx := context.Background()
	now := time.Now().UTC()
	grant := tempadmin.Grant{
		ID: "g1", Email: "a@x.com", ExpiresAt: now.Add(time.Hour), Permissions: []string{"admin"},
		CreatedBy: "admin-id", Reason: "exams", IsActive: true, CreatedAt: now,
	}

	_, err := repo.InsertGrant(ctx, grant)
	require.NoError(t, err)

	dup := grant
	dup.ID = "g2"
	_, err = repo.InsertGrant(ctx, dup)
	assert.Equal(t, tempadmin.ErrActiveGrantExists, err, "one active grant per email")

	t.Run("stored rows are detached", func(t *testing.T) {
		got, err := repo.GetGrantByID(ctx, "g1")
		require.NoError(t, err)
		got.Permissions[0] = "parent"

		got, err = repo.GetGrantByID(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, []string{"admin"}, got.Permissions)
	})

	t.Run("revocation happens once", func(t *testing.T) {
		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := repo.RevokeGrant(ctx, "g1", time.Now().UTC(), "admin-id", "done")
				assert.NoError(t, err)
				if ok {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, wins)

		_, err := repo.GetActiveGrantByEmail(ctx, "a@x.com")
		assert.Equal(t, tempadmin.ErrNotFound, err)
		_, _, err = repo.RevokeGrant(ctx, "lol", now, "admin-id", "done")
		assert.Equal(t, tempadmin.ErrNotFound, err)
	})

	t.Run("email released once revoked", func(t *testing.T) {
		_, err := repo.InsertGrant(ctx, dup)
		assert.NoError(t, err)
	})

	t.Run("query", func(t *testing.T) {
		all, err := repo.QueryGrants(ctx, tempadmin.QueryFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		expired, err := repo.QueryGrants(ctx, tempadmin.QueryFilter{ActiveOnly: true, ExpiredBefore: now.Add(2 * time.Hour)})
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, "g2", expired[0].ID)

		none, err := repo.QueryGrants(ctx, tempadmin.QueryFilter{ActiveOnly: true, ExpiredBefore: now.Add(time.Hour)})
		require.NoError(t, err)
		assert.Empty(t, none, "expiry must be strictly before")
	})
}
