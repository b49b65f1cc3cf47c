// Package pgrepo is the PostgreSQL-backed identity store. Each lookup is a
// query against the identities table; the pool is shared by all requests.
package pgrepo

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/rs/zerolog/log"
)

const identitiesTable = `create table if not exists identities (
    username      text PRIMARY KEY,
    password_hash text NOT NULL,
    roles         text NOT NULL DEFAULT ''
)`

const (
	selectByUsername = `SELECT username, password_hash, roles FROM identities WHERE username = $1`
	insertIdentity   = `INSERT INTO identities (username, password_hash, roles) VALUES ($1, $2, $3)`
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var (
	_ users.Repo = (*Repo)(nil)
	_ DB         = (*pgxpool.Pool)(nil)
)

type Repo struct {
	db DB
}

func New(db DB) *Repo {
	return &Repo{db: db}
}

// Open connects a pool and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("[pgrepo.Open] parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("[pgrepo.Open] new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("[pgrepo.Open] ping: %w", mapError(err))
	}
	return pool, nil
}

// EnsureSchema creates the identities table if it does not exist.
func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, identitiesTable); err != nil {
		return fmt.Errorf("[pgrepo.EnsureSchema] %w", mapError(err))
	}
	return nil
}

func (r *Repo) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	var name, hash, roles string
	err := r.db.QueryRow(ctx, selectByUsername, username).Scan(&name, &hash, &roles)
	if err != nil {
		err = mapError(err)
		if errors.Is(err, apperrors.ErrStoreUnavailable) {
			log.Warn().Err(err).Bool("transient", IsTransient(err)).Msg("identity lookup failed")
		}
		return nil, err
	}
	return &users.User{
		Username:     name,
		PasswordHash: hash,
		Roles:        users.SplitRoles(roles),
	}, nil
}

func (r *Repo) Create(ctx context.Context, user *users.User) error {
	if user == nil || user.Username == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidConfig, "[pgrepo.Create] username is required")
	}
	_, err := r.db.Exec(ctx, insertIdentity, user.Username, user.PasswordHash, users.JoinRoles(user.Roles))
	return mapError(err)
}

// mapError folds driver errors into the store's error kinds. Anything that
// is neither a missing row nor a unique violation means the store could not
// answer and is reported as unavailable, with the cause kept in the chain.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrUserNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return apperrors.ErrDuplicateUsername
	}
	return fmt.Errorf("%w: %w", apperrors.ErrStoreUnavailable, err)
}

// IsTransient reports whether err looks like a connectivity problem worth
// retrying at the boundary, as opposed to a persistent server-side fault.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.SafeToRetry(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) ||
			pgerrcode.IsInsufficientResources(pgErr.Code) ||
			pgerrcode.IsOperatorIntervention(pgErr.Code)
	}
	return false
}
