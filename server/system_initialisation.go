package server

import (
	"context"
	"fmt"

	"github.com/jrsteele09/go-session-gate/auth"
	"github.com/jrsteele09/go-session-gate/authz"
	"github.com/jrsteele09/go-session-gate/internal/config"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/jrsteele09/go-session-gate/users"
	"github.com/jrsteele09/go-session-gate/users/memrepo"
	"github.com/jrsteele09/go-session-gate/users/pgrepo"
	"github.com/rs/zerolog/log"
)

// System is the wired authentication core
type System struct {
	Flow     *auth.Flow
	Registry *sessions.Registry
	Users    users.Repo
	Hasher   users.PasswordHasher

	closers []func()
}

// Close releases the identity store connections
func (sys *System) Close() {
	for i := len(sys.closers) - 1; i >= 0; i-- {
		sys.closers[i]()
	}
	sys.closers = nil
}

// InitialiseSystem builds the identity store, seeds it and wires the
// validator, session registry and matcher into an authentication flow.
func InitialiseSystem(ctx context.Context, cfg config.Config, options ...sessions.RegistryOption) (*System, error) {
	a := cfg.Auth
	sys := &System{}

	hasher, err := users.NewBcryptHasher(a.PasswordHashWorkFactor)
	if err != nil {
		return nil, fmt.Errorf("[Server InitialiseSystem] %w", err)
	}
	sys.Hasher = hasher

	if err := sys.initialiseIdentityStore(ctx, cfg.Identity); err != nil {
		return nil, fmt.Errorf("[Server InitialiseSystem] failed to open identity store: %w", err)
	}

	if err := SeedIdentity(ctx, sys.Users, hasher, cfg.Identity); err != nil {
		sys.Close()
		return nil, fmt.Errorf("[Server InitialiseSystem] failed to seed identity: %w", err)
	}

	validator, err := auth.NewValidator(sys.Users, hasher)
	if err != nil {
		sys.Close()
		return nil, fmt.Errorf("[Server InitialiseSystem] %w", err)
	}

	registryOptions := append([]sessions.RegistryOption{
		sessions.WithMaxSessions(a.MaxSessionsPerPrincipal),
		sessions.WithLimitPolicy(sessions.LimitPolicy(a.SessionLimitPolicy)),
		sessions.WithShards(a.SessionShards),
	}, options...)
	registry, err := sessions.NewRegistry(registryOptions...)
	if err != nil {
		sys.Close()
		return nil, fmt.Errorf("[Server InitialiseSystem] %w", err)
	}
	sys.Registry = registry

	flowConfig := FlowConfig(cfg)
	matcher, err := authz.NewMatcher(auth.Rules(flowConfig, a.ProtectedPaths, a.PublicPaths)...)
	if err != nil {
		sys.Close()
		return nil, fmt.Errorf("[Server InitialiseSystem] %w", err)
	}

	sys.Flow, err = auth.NewFlow(validator, registry, matcher, flowConfig)
	if err != nil {
		sys.Close()
		return nil, fmt.Errorf("[Server InitialiseSystem] %w", err)
	}

	log.Info().
		Str("identity_backend", cfg.Identity.Backend).
		Int("max_sessions", registry.MaxSessions()).
		Str("limit_policy", a.SessionLimitPolicy).
		Msg("Authentication initialised")
	return sys, nil
}

// FlowConfig projects the routing targets out of the process configuration
func FlowConfig(cfg config.Config) auth.FlowConfig {
	return auth.FlowConfig{
		LoginPath:            cfg.Auth.LoginPath,
		LogoutPath:           cfg.Auth.LogoutPath,
		LoginSuccessRedirect: cfg.Auth.LoginSuccessRedirect,
		LogoutRedirect:       cfg.Auth.LogoutRedirect,
		SessionCookieName:    cfg.Auth.SessionCookieName,
	}
}

func (sys *System) initialiseIdentityStore(ctx context.Context, cfg config.IdentityConfig) error {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := pgrepo.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		sys.closers = append(sys.closers, pool.Close)

		repo := pgrepo.New(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			sys.Close()
			return err
		}
		sys.Users = repo
	default:
		repo, err := memrepo.New()
		if err != nil {
			return err
		}
		sys.Users = repo
	}
	return nil
}

// SeedIdentity creates the configured identity. An existing identity with
// the same username is left untouched so restarts are safe.
func SeedIdentity(ctx context.Context, repo users.Repo, hasher users.PasswordHasher, cfg config.IdentityConfig) error {
	if cfg.SeedUser == "" {
		return nil
	}

	hash, err := hasher.Hash(cfg.SeedPass)
	if err != nil {
		return fmt.Errorf("hash seed password: %w", err)
	}

	roles := make([]users.RoleType, 0, len(cfg.SeedRoles))
	for _, r := range cfg.SeedRoles {
		roles = append(roles, users.RoleType(r))
	}

	err = repo.Create(ctx, users.New(cfg.SeedUser, hash, roles...))
	switch {
	case apperrors.Is(err, apperrors.ErrDuplicateUsername):
		log.Info().Str("username", cfg.SeedUser).Msg("Seed identity already exists")
		return nil
	case err != nil:
		return err
	}
	log.Info().Str("username", cfg.SeedUser).Msg("Created seed identity")
	return nil
}
