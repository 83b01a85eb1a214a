package sqlxrepos

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core/tempadmin"
)

var grantCols = []string{
	"id", "email", "expires_at", "permissions", "created_by", "reason", "is_active",
	"created_at", "last_used", "revoked_at", "revoked_by", "revoke_reason",
}

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = mockDB.Close()
	})
	return sqlx.NewDb(mockDB, "postgres"), mock
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

const unknownID = "0f9e8d7c-6b5a-4f3e-9d2c-1b0a9f8e7d6c"

func testGrant() tempadmin.Grant {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return tempadmin.Grant{
		ID:          "7d3c5e1a-2f4b-4c6d-8e9f-0a1b2c3d4e5f",
		Email:       "a@x.com",
		ExpiresAt:   now.Add(time.Hour),
		Permissions: []string{"admin", "teacher"},
		CreatedBy:   "admin-id",
		Reason:      "exams",
		IsActive:    true,
		CreatedAt:   now,
	}
}

func grantRows(grants ...tempadmin.Grant) *sqlmock.Rows {
	rows := sqlmock.NewRows(grantCols)
	for _, g := range grants {
		row := newGrantRow(g)
		perms, _ := row.Permissions.Value()
		rows.AddRow(
			row.ID, row.Email, row.ExpiresAt, perms, row.CreatedBy, row.Reason, row.IsActive,
			row.CreatedAt, nullValue(row.LastUsed.Valid, row.LastUsed.Time), nullValue(row.RevokedAt.Valid, row.RevokedAt.Time),
			nullValue(row.RevokedBy.Valid, row.RevokedBy.String), nullValue(row.RevokeReason.Valid, row.RevokeReason.String),
		)
	}
	return rows
}

func nullValue(valid bool, v driver.Value) driver.Value {
	if !valid {
		return nil
	}
	return v
}

func TestTempAdminRepository_InsertGrant(t *testing.T) {
	insert := regexp.QuoteMeta("INSERT INTO temp_admins (" + grantColumns + ")")

	tests := []struct {
		name    string
		dbErr   error
		wantErr error
	}{
		{name: "ok"},
		{
			name:    "active grant exists",
			dbErr:   &pq.Error{Code: uniqueViolation, Constraint: activeEmailKey},
			wantErr: tempadmin.ErrActiveGrantExists,
		},
		{
			name:    "other unique violation",
			dbErr:   &pq.Error{Code: uniqueViolation, Constraint: "temp_admins_pkey", Message: "duplicate key"},
			wantErr: errors.New("inserting temp admin: pq: duplicate key"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewTempAdminRepository(db)
			exp := mock.ExpectExec(insert).WithArgs(anyArgs(12)...)
			if tt.dbErr != nil {
				exp.WillReturnError(tt.dbErr)
			} else {
				exp.WillReturnResult(sqlmock.NewResult(0, 1))
			}

			g, err := repo.InsertGrant(context.Background(), testGrant())
			switch {
			case tt.wantErr == nil:
				require.NoError(t, err)
				assert.Equal(t, testGrant(), g)
			case tt.wantErr == tempadmin.ErrActiveGrantExists:
				assert.Equal(t, tempadmin.ErrActiveGrantExists, err)
			default:
				assert.EqualError(t, err, tt.wantErr.Error())
			}
		})
	}
}

func TestTempAdminRepository_GetGrantByID(t *testing.T) {
	query := regexp.QuoteMeta("SELECT " + grantColumns + " FROM temp_admins WHERE id = $1")
	ctx := context.Background()

	t.Run("found", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTempAdminRepository(db)
		want := testGrant()
		revokedAt := want.CreatedAt.Add(time.Minute)
		want.IsActive = false
		want.RevokedAt = &revokedAt
		want.RevokedBy = tempadmin.SystemActor
		want.RevokeReason = "Expired"
		mock.ExpectQuery(query).WithArgs(want.ID).WillReturnRows(grantRows(want))

		got, err := repo.GetGrantByID(ctx, want.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})

	t.Run("not found", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTempAdminRepository(db)
		mock.ExpectQuery(query).WithArgs(unknownID).WillReturnRows(sqlmock.NewRows(grantCols))

		_, err := repo.GetGrantByID(ctx, unknownID)
		assert.Equal(t, tempadmin.ErrNotFound, err)
	})

	t.Run("malformed id", func(t *testing.T) {
		db, _ := newMock(t) // no query expected
		repo := NewTempAdminRepository(db)

		_, err := repo.GetGrantByID(ctx, "lol")
		assert.Equal(t, tempadmin.ErrNotFound, err)
	})

	t.Run("db error", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTempAdminRepository(db)
		mock.ExpectQuery(query).WithArgs(unknownID).WillReturnError(errors.New("conn reset"))

		_, err := repo.GetGrantByID(ctx, unknownID)
		assert.EqualError(t, err, "selecting temp admin: conn reset")
	})
}

func TestTempAdminRepository_QueryGrants(t *testing.T) {
	base := "SELECT " + grantColumns + " FROM temp_admins"
	now := time.Now().UTC()

	tests := []struct {
		name      string
		filter    tempadmin.QueryFilter
		wantQuery string
		wantArgs  []driver.Value
	}{
		{name: "all", wantQuery: base + " ORDER BY created_at DESC"},
		{
			name:      "active",
			filter:    tempadmin.QueryFilter{ActiveOnly: true},
			wantQuery: base + " WHERE is_active ORDER BY created_at DESC",
		},
		{
			name:      "expired",
			filter:    tempadmin.QueryFilter{ActiveOnly: true, ExpiredBefore: now},
			wantQuery: base + " WHERE is_active AND expires_at < $1 ORDER BY created_at DESC",
			wantArgs:  []driver.Value{now},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewTempAdminRepository(db)
			g := testGrant()
			exp := mock.ExpectQuery("^" + regexp.QuoteMeta(tt.wantQuery) + "$")
			if tt.wantArgs != nil {
				exp.WithArgs(tt.wantArgs...)
			}
			exp.WillReturnRows(grantRows(g))

			grants, err := repo.QueryGrants(context.Background(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, []tempadmin.Grant{g}, grants)
		})
	}
}

func TestTempAdminRepository_RevokeGrant(t *testing.T) {
	update := regexp.QuoteMeta("UPDATE temp_admins")
	get := regexp.QuoteMeta("SELECT " + grantColumns + " FROM temp_admins WHERE id = $1")
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	revoked := testGrant()
	revoked.IsActive = false
	revoked.RevokedAt = &at
	revoked.RevokedBy = "admin-id"
	revoked.RevokeReason = "done"

	t.Run("winner", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTempAdminRepository(db)
		mock.ExpectQuery(update).WithArgs(revoked.ID, at, "admin-id", "done").WillReturnRows(grantRows(revoked))

		g, ok, err := repo.RevokeGrant(ctx, revoked.ID, at, "admin-id", "done")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, revoked, g)
	})

	t.Run("already revoked", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTempAdminRepository(db)
		mock.ExpectQuery(update).WillReturnRows(sqlmock.NewRows(grantCols))
		mock.ExpectQuery(get).WithArgs(revoked.ID).WillReturnRows(grantRows(revoked))

		g, ok, err := repo.RevokeGrant(ctx, revoked.ID, at.Add(time.Hour), "someone-else", "again")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, revoked, g)
	})

	t.Run("unknown", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTempAdminRepository(db)
		mock.ExpectQuery(update).WillReturnRows(sqlmock.NewRows(grantCols))
		mock.ExpectQuery(get).WithArgs(unknownID).WillReturnRows(sqlmock.NewRows(grantCols))

		_, ok, err := repo.RevokeGrant(ctx, unknownID, at, "admin-id", "done")
		assert.False(t, ok)
		assert.Equal(t, tempadmin.ErrNotFound, err)
	})

	t.Run("malformed id", func(t *testing.T) {
		db, _ := newMock(t) // no query expected
		repo := NewTempAdminRepository(db)

		_, ok, err := repo.RevokeGrant(ctx, "x", at, "admin-id", "done")
		assert.False(t, ok)
		assert.Equal(t, tempadmin.ErrNotFound, err)
	})
}

func TestTempAdminRepository_TouchGrant(t *testing.T) {
	at := time.Now().UTC()

	t.Run("touched", func(t *testing.T) {
		db, mock := newMock(t)
		repo := NewTempAdminRepository(db)
		id := testGrant().ID
		mock.ExpectExec(regexp.QuoteMeta("UPDATE temp_admins SET last_used = $2 WHERE id = $1 AND is_active")).
			WithArgs(id, at).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.TouchGrant(context.Background(), id, at))
	})

	t.Run("malformed id", func(t *testing.T) {
		db, _ := newMock(t) // no query expected
		repo := NewTempAdminRepository(db)

		assert.Equal(t, tempadmin.ErrNotFound, repo.TouchGrant(context.Background(), "id", at))
	})
}
