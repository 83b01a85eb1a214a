package user

import (
	"context"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")

	NowFunc = time.Now // mockable
)

type (
	Repository interface {
		// CheckUsernameUniqueness only considers active users.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id string) (User, error)
		// GetUserByUsernameOrEmail only returns active users.
		GetUserByUsernameOrEmail(ctx context.Context, username string) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUsersByID(ctx context.Context, ids ...string) error
	}

	Service struct {
		repo       Repository
		validate   *validator.Validate
		translator ut.Translator
	}
)

func NewService(repo Repository, validate *validator.Validate, translator ut.Translator) *Service {
	return &Service{
		repo:       repo,
		validate:   validate,
		translator: translator,
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, core.NewStructValidationError(err, svc.translator)
	}
	if err := svc.checkUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}

	now := NowFunc().UTC()
	usr := User{
		ID:        uuid.NewString(),
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUserByUsernameOrEmail(ctx, core.CleanString(uname, true /* lower */))
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	now := NowFunc().UTC()
	usr.LastLogin = now
	usr.UpdatedAt = now
	return svc.repo.UpdateUser(ctx, usr)
}

// ResetPassword sets a new password on the active user matching `uname` (username or email).
func (svc *Service) ResetPassword(ctx context.Context, uname, pwd string) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, uname)
	if err != nil {
		return User{}, err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// Identity provider

// CreateIdentity creates an active login for `ni.Email` and returns its ID.
// An active user already owning the email is a core.ConflictError.
func (svc *Service) CreateIdentity(ctx context.Context, ni NewIdentity) (string, error) {
	email := core.CleanString(ni.Email, true /* lower */)
	if err := svc.repo.CheckUsernameUniqueness(ctx, "", email); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return "", core.NewConflictError(err)
		}
		return "", errors.Wrap(err, "checking email uniqueness")
	}

	now := NowFunc().UTC()
	usr := User{
		ID:        uuid.NewString(),
		Name:      email,
		Email:     email,
		IsActive:  true,
		Roles:     ni.Roles,
		Metadata:  ni.Metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(ni.Password); err != nil {
		return "", errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, usr)
	if err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return "", core.NewConflictError(err)
		}
		return "", errors.Wrap(err, "creating identity")
	}
	return usr.ID, nil
}

// DisableIdentity deactivates the login so that it can no longer authenticate.
func (svc *Service) DisableIdentity(ctx context.Context, id string) error {
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return errors.Wrap(err, "finding identity")
	}
	if !usr.IsActive {
		return nil
	}
	usr.IsActive = false
	usr.UpdatedAt = NowFunc().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "disabling identity")
}

// DeleteIdentity removes the login entirely.
func (svc *Service) DeleteIdentity(ctx context.Context, id string) error {
	return errors.Wrap(svc.repo.DeleteUsersByID(ctx, id), "deleting identity")
}
