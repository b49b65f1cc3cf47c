package auth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/pkg/errors"
)

// Principal is the authenticated identity attached to a request
type Principal struct {
	Username string
	Roles    []users.RoleType
}

// Outcome is the result of a login attempt. Err is nil on success, otherwise
// it matches errors.ErrInvalidCredentials, errors.ErrStoreUnavailable or
// errors.ErrSessionLimitReached.
type Outcome struct {
	Principal Principal
	Session   sessions.Session // set once the flow has registered a session
	Err       error
}

func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

func failure(err error) Outcome {
	return Outcome{Err: err}
}

// Validator checks a username/password pair against the identity store.
// It has no side effects on session state.
type Validator struct {
	users  users.Repo
	hasher users.PasswordHasher
	decoy  string
}

// NewValidator builds a validator. The decoy hash is computed once with the
// same hasher so that a lookup miss costs the same as a wrong password.
func NewValidator(repo users.Repo, hasher users.PasswordHasher) (*Validator, error) {
	if repo == nil {
		return nil, errors.Wrap(UsersRequiredErr, "[NewValidator]")
	}
	if hasher == nil {
		return nil, errors.Wrap(HasherRequiredErr, "[NewValidator]")
	}
	decoy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, errors.Wrap(err, "[NewValidator] decoy hash")
	}
	return &Validator{users: repo, hasher: hasher, decoy: decoy}, nil
}

// Authenticate never distinguishes an unknown user from a wrong password:
// both return errors.ErrInvalidCredentials after exactly one verify.
func (v *Validator) Authenticate(ctx context.Context, username, password string) Outcome {
	user, err := v.users.GetByUsername(ctx, username)
	switch {
	case err == nil:
	case apperrors.Is(err, apperrors.ErrUserNotFound):
		v.hasher.Verify(password, v.decoy)
		return failure(apperrors.ErrInvalidCredentials)
	case apperrors.Is(err, apperrors.ErrStoreUnavailable):
		return failure(errors.Wrap(err, "[Validator.Authenticate] GetByUsername"))
	default:
		return failure(errors.Wrap(fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err), "[Validator.Authenticate] GetByUsername"))
	}

	if !v.hasher.Verify(password, user.PasswordHash) {
		return failure(apperrors.ErrInvalidCredentials)
	}
	return Outcome{Principal: Principal{Username: user.Username, Roles: user.Roles}}
}
