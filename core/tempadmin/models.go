package tempadmin

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

// Permissions a temporary admin can be granted.
const (
	PermissionAdmin   = "admin"
	PermissionTeacher = "teacher"
	PermissionStudent = "student"
	PermissionParent  = "parent"
)

// Grant statuses, see Grant.Status.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusRevoked = "revoked"
)

// SystemActor is recorded as the revoker when a grant is revoked automatically.
const SystemActor = "SYSTEM"

const (
	reasonExpired       = "Expired"
	reasonAutoCleanup   = "Expired - Auto cleanup"
	defaultRevokeReason = "Manually revoked"
)

var (
	AllPermissions = []string{PermissionAdmin, PermissionTeacher, PermissionStudent, PermissionParent}

	// errors
	ErrNotFound          = errors.New("temporary admin not found")
	ErrActiveGrantExists = errors.New("an active temporary admin already exists for this email")
	ErrExpiryNotInFuture = errors.New("expiration date must be in the future")
)

// Grant is a time-boxed elevated-privilege account. Its ID is the ID of the identity created for it.
type Grant struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	Permissions  []string   `json:"permissions"`
	CreatedBy    string     `json:"createdBy"`
	Reason       string     `json:"reason"`
	IsActive     bool       `json:"isActive"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastUsed     *time.Time `json:"lastUsed,omitempty"`
	RevokedAt    *time.Time `json:"revokedAt,omitempty"`
	RevokedBy    string     `json:"revokedBy,omitempty"`
	RevokeReason string     `json:"revokeReason,omitempty"`
}

// IsExpired reports whether the grant's expiry is strictly before `now`.
func (g Grant) IsExpired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

// Status returns StatusRevoked, StatusExpired (still active but past its expiry) or StatusActive.
func (g Grant) Status(now time.Time) string {
	switch {
	case !g.IsActive:
		return StatusRevoked
	case g.IsExpired(now):
		return StatusExpired
	default:
		return StatusActive
	}
}

// NewGrant contains the information needed to create a Grant.
// Password is optional: one is generated when empty.
type NewGrant struct {
	Email       string    `json:"email" validate:"required,email"`
	Password    string    `json:"password,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt" validate:"required"`
	Permissions []string  `json:"permissions" validate:"required,min=1,permissions"`
	CreatedBy   string    `json:"createdBy" validate:"required"`
	Reason      string    `json:"reason" validate:"required"`
}

func (ng *NewGrant) Clean() {
	ng.Email = core.CleanString(ng.Email, true /* lower */)
	ng.Permissions = core.CleanStrings(ng.Permissions, true /* lower */)
	ng.CreatedBy = core.CleanString(ng.CreatedBy)
	ng.Reason = core.CleanString(ng.Reason)
}

// Revocation contains the information needed to revoke a Grant.
type Revocation struct {
	GrantID   string `json:"tempAdminId" validate:"required"`
	RevokedBy string `json:"revokedBy" validate:"required"`
	Reason    string `json:"reason"`
}

func (r *Revocation) Clean() {
	r.GrantID = core.CleanString(r.GrantID)
	r.RevokedBy = core.CleanString(r.RevokedBy)
	r.Reason = core.CleanString(r.Reason)
	if r.Reason == "" {
		r.Reason = defaultRevokeReason
	}
}

// Validation is the outcome of Manager.Validate. Grant is only set when the grant exists.
type Validation struct {
	IsValid bool
	Grant   *Grant
}

// QueryFilter selects grants. Zero value matches everything.
type QueryFilter struct {
	ActiveOnly    bool
	ExpiredBefore time.Time // only grants expiring strictly before this instant
}
