package memrepo

import (
	"context"
	"sync"

	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/users"
)

var _ users.Repo = (*Repo)(nil)

// Repo is the in-memory identity store, typically seeded at startup.
type Repo struct {
	users map[string]*users.User // username to identity
	lock  sync.RWMutex
}

// New builds a store holding the seed identities. A repeated username in
// the seed is reported as errors.ErrDuplicateUsername.
func New(seed ...*users.User) (*Repo, error) {
	r := &Repo{users: make(map[string]*users.User, len(seed))}
	for _, u := range seed {
		if err := r.Create(context.Background(), u); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Repo) GetByUsername(_ context.Context, username string) (*users.User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	u, ok := r.users[username]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (r *Repo) Create(_ context.Context, user *users.User) error {
	if user == nil || user.Username == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "[memrepo.Create] username is required")
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, ok := r.users[user.Username]; ok {
		return apperrors.ErrDuplicateUsername
	}
	r.users[user.Username] = user.Clone()
	return nil
}

// Len returns the number of stored identities
func (r *Repo) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()
	return len(r.users)
}
