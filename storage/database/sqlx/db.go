// Package sqlxrepos implements the repositories on PostgreSQL with jmoiron/sqlx.
package sqlxrepos

import (
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

// isUniqueViolation reports whether err was raised by the unique index or constraint `constraint`.
func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation && pqErr.Constraint == constraint
	}
	return false
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isID reports whether id fits a uuid column. PostgreSQL rejects anything else with an error
// instead of matching no rows.
func isID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// columns joins column names for a SELECT or RETURNING clause.
func columns(cols ...string) string {
	return strings.Join(cols, ", ")
}
