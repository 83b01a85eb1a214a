package sqlxrepos

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/tempadmin"
)

const activeEmailKey = "temp_admins_active_email_key"

var grantColumns = columns(
	"id", "email", "expires_at", "permissions", "created_by", "reason", "is_active",
	"created_at", "last_used", "revoked_at", "revoked_by", "revoke_reason",
)

type grantRow struct {
	ID           string         `db:"id"`
	Email        string         `db:"email"`
	ExpiresAt    time.Time      `db:"expires_at"`
	Permissions  pq.StringArray `db:"permissions"`
	CreatedBy    string         `db:"created_by"`
	Reason       string         `db:"reason"`
	IsActive     bool           `db:"is_active"`
	CreatedAt    time.Time      `db:"created_at"`
	LastUsed     null.Time      `db:"last_used"`
	RevokedAt    null.Time      `db:"revoked_at"`
	RevokedBy    null.String    `db:"revoked_by"`
	RevokeReason null.String    `db:"revoke_reason"`
}

func newGrantRow(g tempadmin.Grant) grantRow {
	return grantRow{
		ID:           g.ID,
		Email:        g.Email,
		ExpiresAt:    g.ExpiresAt,
		Permissions:  g.Permissions,
		CreatedBy:    g.CreatedBy,
		Reason:       g.Reason,
		IsActive:     g.IsActive,
		CreatedAt:    g.CreatedAt,
		LastUsed:     null.TimeFromPtr(g.LastUsed),
		RevokedAt:    null.TimeFromPtr(g.RevokedAt),
		RevokedBy:    null.NewString(g.RevokedBy, g.RevokedBy != ""),
		RevokeReason: null.NewString(g.RevokeReason, g.RevokeReason != ""),
	}
}

func (row grantRow) toGrant() tempadmin.Grant {
	return tempadmin.Grant{
		ID:           row.ID,
		Email:        row.Email,
		ExpiresAt:    row.ExpiresAt.UTC(),
		Permissions:  row.Permissions,
		CreatedBy:    row.CreatedBy,
		Reason:       row.Reason,
		IsActive:     row.IsActive,
		CreatedAt:    row.CreatedAt.UTC(),
		LastUsed:     utcPtr(row.LastUsed),
		RevokedAt:    utcPtr(row.RevokedAt),
		RevokedBy:    row.RevokedBy.String,
		RevokeReason: row.RevokeReason.String,
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

type tempAdminRepository struct {
	db core.DBExecutor
}

var _ tempadmin.Repository = (*tempAdminRepository)(nil)

func NewTempAdminRepository(db core.DBExecutor) tempadmin.Repository {
	return &tempAdminRepository{db: db}
}

func (repo *tempAdminRepository) InsertGrant(ctx context.Context, g tempadmin.Grant) (tempadmin.Grant, error) {
	_, err := sqlx.NamedExecContext(ctx, repo.db, `
		INSERT INTO temp_admins (`+grantColumns+`)
		VALUES (:id, :email, :expires_at, :permissions, :created_by, :reason, :is_active,
		        :created_at, :last_used, :revoked_at, :revoked_by, :revoke_reason)`,
		newGrantRow(g),
	)
	if err != nil {
		if isUniqueViolation(err, activeEmailKey) {
			return tempadmin.Grant{}, tempadmin.ErrActiveGrantExists
		}
		return tempadmin.Grant{}, errors.Wrap(err, "inserting temp admin")
	}
	return g, nil
}

func (repo *tempAdminRepository) getOne(ctx context.Context, query string, args ...interface{}) (tempadmin.Grant, error) {
	var row grantRow
	if err := repo.db.GetContext(ctx, &row, query, args...); err != nil {
		if isNoRows(err) {
			return tempadmin.Grant{}, tempadmin.ErrNotFound
		}
		return tempadmin.Grant{}, errors.Wrap(err, "selecting temp admin")
	}
	return row.toGrant(), nil
}

func (repo *tempAdminRepository) GetGrantByID(ctx context.Context, id string) (tempadmin.Grant, error) {
	if !isID(id) {
		return tempadmin.Grant{}, tempadmin.ErrNotFound
	}
	return repo.getOne(ctx, `SELECT `+grantColumns+` FROM temp_admins WHERE id = $1`, id)
}

func (repo *tempAdminRepository) GetActiveGrantByEmail(ctx context.Context, email string) (tempadmin.Grant, error) {
	return repo.getOne(ctx, `SELECT `+grantColumns+` FROM temp_admins WHERE email = $1 AND is_active`, email)
}

func (repo *tempAdminRepository) QueryGrants(ctx context.Context, filter tempadmin.QueryFilter) ([]tempadmin.Grant, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.ActiveOnly {
		conds = append(conds, "is_active")
	}
	if !filter.ExpiredBefore.IsZero() {
		args = append(args, filter.ExpiredBefore)
		conds = append(conds, "expires_at < $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + grantColumns + ` FROM temp_admins`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	var rows []grantRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "selecting temp admins")
	}
	grants := make([]tempadmin.Grant, 0, len(rows))
	for _, row := range rows {
		grants = append(grants, row.toGrant())
	}
	return grants, nil
}

func (repo *tempAdminRepository) RevokeGrant(
	ctx context.Context,
	id string,
	revokedAt time.Time,
	revokedBy, reason string,
) (tempadmin.Grant, bool, error) {
	if !isID(id) {
		return tempadmin.Grant{}, false, tempadmin.ErrNotFound
	}
	var row grantRow
	err := repo.db.GetContext(ctx, &row, `
		UPDATE temp_admins
		SET is_active = false, revoked_at = $2, revoked_by = $3, revoke_reason = $4
		WHERE id = $1 AND is_active
		RETURNING `+grantColumns,
		id, revokedAt, revokedBy, reason,
	)
	if err == nil {
		return row.toGrant(), true, nil
	}
	if !isNoRows(err) {
		return tempadmin.Grant{}, false, errors.Wrap(err, "revoking temp admin")
	}

	// unknown or already revoked
	g, err := repo.GetGrantByID(ctx, id)
	if err != nil {
		return tempadmin.Grant{}, false, err
	}
	return g, false, nil
}

func (repo *tempAdminRepository) TouchGrant(ctx context.Context, id string, lastUsed time.Time) error {
	if !isID(id) {
		return tempadmin.ErrNotFound
	}
	_, err := repo.db.ExecContext(ctx, `UPDATE temp_admins SET last_used = $2 WHERE id = $1 AND is_active`, id, lastUsed)
	return errors.Wrap(err, "touching temp admin")
}
