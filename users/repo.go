package users

import "context"

// Repo is the identity store. Implementations must agree on read semantics:
//   - GetByUsername returns errors.ErrUserNotFound when no identity exists and
//     errors.ErrStoreUnavailable when the backend cannot be reached.
//   - Create returns errors.ErrDuplicateUsername when the username is taken.
//
// Both calls may block on I/O; callers must not hold locks across them.
//
//go:generate mockgen -destination=mock_users/mock_repo.go -package=mock_users github.com/jrsteele09/go-session-gate/users Repo
type Repo interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	Create(ctx context.Context, user *User) error
}
