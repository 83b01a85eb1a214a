// Package tempadmin manages temporary admin grants: time-boxed elevated-privilege accounts that are validated on
// every authenticated request, revoked on expiry and audited on every lifecycle transition.
package tempadmin

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

const readRetryBackoff = 50 * time.Millisecond

var NowFunc = time.Now // mockable

type (
	// Repository persists grants.
	Repository interface {
		// InsertGrant returns ErrActiveGrantExists when an active grant already exists for the email.
		InsertGrant(ctx context.Context, g Grant) (Grant, error)
		GetGrantByID(ctx context.Context, id string) (Grant, error)
		GetActiveGrantByEmail(ctx context.Context, email string) (Grant, error)
		// QueryGrants returns the grants matching filter, newest created first.
		QueryGrants(ctx context.Context, filter QueryFilter) ([]Grant, error)
		// RevokeGrant deactivates the grant only if it is still active, and reports whether this call did it.
		// The returned Grant is the stored grant after the call.
		RevokeGrant(ctx context.Context, id string, revokedAt time.Time, revokedBy, reason string) (Grant, bool, error)
		TouchGrant(ctx context.Context, id string, lastUsed time.Time) error
	}

	// IdentityProvider manages the logins backing grants. It is implemented by user.Service.
	IdentityProvider interface {
		CreateIdentity(ctx context.Context, ni user.NewIdentity) (string, error)
		DisableIdentity(ctx context.Context, id string) error
		DeleteIdentity(ctx context.Context, id string) error
	}

	Deps struct {
		Repo       Repository
		Audit      AuditRepository
		Identity   IdentityProvider
		Mailer     core.EmailService // optional
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
	}

	// Manager holds no per-grant state: every transition is decided by the Repository.
	Manager struct {
		conf       core.TempAdminConfig
		repo       Repository
		audit      AuditRepository
		identity   IdentityProvider
		mailer     core.EmailService
		logger     core.Logger
		validate   *validator.Validate
		translator ut.Translator
	}
)

func NewManager(conf core.TempAdminConfig, deps Deps) (*Manager, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Repo, "Repo"),
		vala.IsNotNil(deps.Audit, "Audit"),
		vala.IsNotNil(deps.Identity, "Identity"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "tempadmin.NewManager")
	}

	return &Manager{
		conf:       conf,
		repo:       deps.Repo,
		audit:      deps.Audit,
		identity:   deps.Identity,
		mailer:     deps.Mailer,
		logger:     deps.Logger,
		validate:   deps.Validate,
		translator: deps.Translator,
	}, nil
}

func (m *Manager) now() time.Time {
	return NowFunc().UTC()
}

func (m *Manager) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.conf.OpTimeout > 0 {
		return context.WithTimeout(ctx, m.conf.OpTimeout)
	}
	return context.WithCancel(ctx)
}

// read runs a store read under the operation timeout, retrying transient failures.
// ErrNotFound is a result, not a failure, and is never retried.
func (m *Manager) read(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 0; attempt <= m.conf.ReadRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return err
			case <-time.After(time.Duration(attempt) * readRetryBackoff):
			}
		}

		opCtx, cancel := m.opContext(ctx)
		err = fn(opCtx)
		cancel()
		if err == nil || errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return err
}

// Create issues a new grant and the identity behind it.
// The returned password is only set when it was generated; it is never stored in clear.
func (m *Manager) Create(ctx context.Context, ng NewGrant) (Grant, string, error) {
	ng.Clean()
	if err := m.validate.Struct(ng); err != nil {
		return Grant{}, "", core.NewStructValidationError(err, m.translator)
	}
	now := m.now()
	if !ng.ExpiresAt.After(now) {
		return Grant{}, "", core.NewValidationError(
			ErrExpiryNotInFuture,
			core.FieldError{Field: "expiresAt", Error: ErrExpiryNotInFuture.Error()},
		)
	}
	if ng.Password != "" && m.conf.EnforcePasswordPolicy {
		if err := user.ValidatePassword(ng.Password, ng.Email); err != nil {
			return Grant{}, "", err
		}
	}

	err := m.read(ctx, func(ctx context.Context) error {
		_, err := m.repo.GetActiveGrantByEmail(ctx, ng.Email)
		return err
	})
	switch {
	case err == nil:
		return Grant{}, "", core.NewConflictError(ErrActiveGrantExists)
	case !errors.Is(err, ErrNotFound):
		return Grant{}, "", core.NewDependencyError("checking active grant", err)
	}

	var generatedPwd string
	pwd := ng.Password
	if pwd == "" {
		generatedPwd = GeneratePassword()
		pwd = generatedPwd
	}
	expiresAt := ng.ExpiresAt.UTC()

	opCtx, cancel := m.opContext(ctx)
	id, err := m.identity.CreateIdentity(opCtx, user.NewIdentity{
		Email:    ng.Email,
		Password: pwd,
		Roles:    []string{user.RoleAdminTemp},
		Metadata: user.Metadata{
			TempAdmin:   true,
			Permissions: ng.Permissions,
			ExpiresAt:   &expiresAt,
		},
	})
	cancel()
	if err != nil {
		if core.IsConflict(err) {
			return Grant{}, "", err
		}
		return Grant{}, "", core.NewDependencyError("creating identity", err)
	}

	grant := Grant{
		ID:          id,
		Email:       ng.Email,
		ExpiresAt:   expiresAt,
		Permissions: ng.Permissions,
		CreatedBy:   ng.CreatedBy,
		Reason:      ng.Reason,
		IsActive:    true,
		CreatedAt:   now,
	}
	opCtx, cancel = m.opContext(ctx)
	grant, err = m.repo.InsertGrant(opCtx, grant)
	cancel()
	if err != nil {
		m.rollbackIdentity(ctx, id)
		if errors.Is(err, ErrActiveGrantExists) {
			return Grant{}, "", core.NewConflictError(ErrActiveGrantExists)
		}
		return Grant{}, "", core.NewDependencyError("storing grant", err)
	}

	grantsCreated.Inc()
	m.recordAudit(ctx, ActionCreate, grant.ID, grant.CreatedBy, map[string]interface{}{
		"email":       grant.Email,
		"expires_at":  grant.ExpiresAt.Format(time.RFC3339),
		"permissions": grant.Permissions,
		"reason":      grant.Reason,
	})
	m.notifyCreated(grant)
	return grant, generatedPwd, nil
}

// rollbackIdentity deletes an identity whose grant could not be stored.
// It runs even if ctx was cancelled, under its own timeout.
func (m *Manager) rollbackIdentity(ctx context.Context, id string) {
	ctx, cancel := m.opContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := m.identity.DeleteIdentity(ctx, id); err != nil {
		identityRollbackFailures.Inc()
		m.logger.Error(fmt.Sprintf("tempadmin: deleting orphaned identity %s: %v", id, err), err)
	}
}

// Validate checks that the grant is still usable and records its use.
// An expired grant is revoked on the spot. Unknown and inactive grants are invalid.
func (m *Manager) Validate(ctx context.Context, id string) (Validation, error) {
	var grant Grant
	err := m.read(ctx, func(ctx context.Context) error {
		var err error
		grant, err = m.repo.GetGrantByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			validations.WithLabelValues(resultInvalid).Inc()
			return Validation{}, nil
		}
		validations.WithLabelValues(resultError).Inc()
		return Validation{}, core.NewDependencyError("reading grant", err)
	}

	if !grant.IsActive {
		validations.WithLabelValues(resultInvalid).Inc()
		return Validation{Grant: &grant}, nil
	}

	now := m.now()
	if grant.IsExpired(now) {
		validations.WithLabelValues(resultInvalid).Inc()
		revoked, err := m.revoke(ctx, id, SystemActor, reasonExpired, triggerValidation)
		if err != nil {
			m.logger.Error(fmt.Sprintf("tempadmin: revoking expired grant %s: %v", id, err), err)
			return Validation{Grant: &grant}, nil
		}
		return Validation{Grant: &revoked}, nil
	}

	opCtx, cancel := m.opContext(ctx)
	err = m.repo.TouchGrant(opCtx, id, now)
	cancel()
	if err != nil {
		m.logger.Warn(fmt.Sprintf("tempadmin: updating last use of grant %s: %v", id, err), err)
	} else {
		grant.LastUsed = &now
	}
	validations.WithLabelValues(resultValid).Inc()
	return Validation{IsValid: true, Grant: &grant}, nil
}

// Revoke deactivates a grant. Revoking an inactive grant is a no-op.
func (m *Manager) Revoke(ctx context.Context, id, revokedBy, reason string) error {
	r := Revocation{GrantID: id, RevokedBy: revokedBy, Reason: reason}
	r.Clean()
	if err := m.validate.Struct(r); err != nil {
		return core.NewStructValidationError(err, m.translator)
	}
	_, err := m.revoke(ctx, r.GrantID, r.RevokedBy, r.Reason, triggerManual)
	return err
}

// revoke performs the conditional transition and, only when this call won it, runs the side effects.
func (m *Manager) revoke(ctx context.Context, id, revokedBy, reason, trigger string) (Grant, error) {
	opCtx, cancel := m.opContext(ctx)
	grant, revoked, err := m.repo.RevokeGrant(opCtx, id, m.now(), revokedBy, reason)
	cancel()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Grant{}, core.NewNotFoundError(ErrNotFound)
		}
		return Grant{}, core.NewDependencyError("revoking grant", err)
	}
	if !revoked {
		return grant, nil
	}

	grantsRevoked.WithLabelValues(trigger).Inc()
	m.disableIdentity(ctx, id)
	m.recordAudit(ctx, ActionRevoke, id, revokedBy, map[string]interface{}{
		"reason": reason,
	})
	m.notifyRevoked(grant)
	return grant, nil
}

// disableIdentity is best-effort: failures are logged and counted.
func (m *Manager) disableIdentity(ctx context.Context, id string) {
	ctx, cancel := m.opContext(ctx)
	defer cancel()
	if err := m.identity.DisableIdentity(ctx, id); err != nil {
		identityDisableFailures.Inc()
		m.logger.Error(fmt.Sprintf("tempadmin: disabling identity %s: %v", id, err), err)
	}
}

// List returns the grants, newest created first. Only active grants unless includeInactive.
func (m *Manager) List(ctx context.Context, includeInactive bool) ([]Grant, error) {
	var grants []Grant
	err := m.read(ctx, func(ctx context.Context) error {
		var err error
		grants, err = m.repo.QueryGrants(ctx, QueryFilter{ActiveOnly: !includeInactive})
		return err
	})
	if err != nil {
		return nil, core.NewDependencyError("listing grants", err)
	}
	return grants, nil
}

// Get returns a single grant.
func (m *Manager) Get(ctx context.Context, id string) (Grant, error) {
	var grant Grant
	err := m.read(ctx, func(ctx context.Context) error {
		var err error
		grant, err = m.repo.GetGrantByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Grant{}, core.NewNotFoundError(ErrNotFound)
		}
		return Grant{}, core.NewDependencyError("reading grant", err)
	}
	return grant, nil
}

// SweepExpired revokes every active grant past its expiry and returns how many were found.
// Each grant is revoked independently: one failure does not stop the others.
func (m *Manager) SweepExpired(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { sweepDuration.Observe(time.Since(start).Seconds()) }()

	var expired []Grant
	err := m.read(ctx, func(ctx context.Context) error {
		var err error
		expired, err = m.repo.QueryGrants(ctx, QueryFilter{ActiveOnly: true, ExpiredBefore: m.now()})
		return err
	})
	if err != nil {
		return 0, core.NewDependencyError("querying expired grants", err)
	}

	var failed int32
	g := new(errgroup.Group)
	if m.conf.SweepConcurrency > 0 {
		g.SetLimit(m.conf.SweepConcurrency)
	}
	for _, grant := range expired {
		id := grant.ID
		g.Go(func() error {
			if _, err := m.revoke(ctx, id, SystemActor, reasonAutoCleanup, triggerSweep); err != nil {
				atomic.AddInt32(&failed, 1)
				m.logger.Error(fmt.Sprintf("tempadmin: sweeping grant %s: %v", id, err), err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if failed > 0 {
		m.logger.Warn(fmt.Sprintf("tempadmin: sweep failed to revoke %d of %d expired grants", failed, len(expired)))
	}
	return len(expired), nil
}

// AuditTrail returns the audit events of a grant, oldest first.
func (m *Manager) AuditTrail(ctx context.Context, id string) ([]AuditEvent, error) {
	var events []AuditEvent
	err := m.read(ctx, func(ctx context.Context) error {
		var err error
		events, err = m.audit.QueryAuditEvents(ctx, id)
		return err
	})
	if err != nil {
		return nil, core.NewDependencyError("reading audit trail", err)
	}
	return events, nil
}
