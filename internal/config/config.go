// Package config loads the process configuration once at startup. The
// resulting Config is a plain value: copy it, never mutate it.
package config

import (
	"errors"
	"fmt"
	"math/bits"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/sessions"
	"golang.org/x/crypto/bcrypt"
)

const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

type Config struct {
	Env      string `env:"ENV"       envDefault:"DEV"`
	AppName  string `env:"APP_NAME"  envDefault:"Go Session Gate"`
	Port     string `env:"PORT"      envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	Auth     AuthConfig
	Identity IdentityConfig
}

// AuthConfig is the gatekeeping and session policy
type AuthConfig struct {
	// PublicPaths are permitted without a session, in declaration order.
	PublicPaths []string `env:"PUBLIC_PATHS" envDefault:"/,/home" envSeparator:","`
	// ProtectedPaths are evaluated before PublicPaths so a subtree can be
	// carved out of a broad public pattern.
	ProtectedPaths []string `env:"PROTECTED_PATHS" envSeparator:","`

	MaxSessionsPerPrincipal int    `env:"MAX_SESSIONS_PER_PRINCIPAL" envDefault:"1"`
	SessionLimitPolicy      string `env:"SESSION_LIMIT_POLICY"       envDefault:"evict-oldest"`
	SessionShards           int    `env:"SESSION_SHARDS"             envDefault:"32"`
	SessionCookieName       string `env:"SESSION_COOKIE_NAME"        envDefault:"JSESSIONID"`

	LoginPath            string `env:"LOGIN_PATH"             envDefault:"/login"`
	LogoutPath           string `env:"LOGOUT_PATH"            envDefault:"/logout"`
	LoginSuccessRedirect string `env:"LOGIN_SUCCESS_REDIRECT" envDefault:"/hello"`
	LogoutRedirect       string `env:"LOGOUT_REDIRECT"        envDefault:"/"`

	PasswordHashWorkFactor int `env:"PASSWORD_HASH_WORK_FACTOR" envDefault:"10"`
}

// IdentityConfig selects and seeds the identity store
type IdentityConfig struct {
	Backend     string   `env:"IDENTITY_BACKEND" envDefault:"memory"`
	DatabaseURL string   `env:"DATABASE_URL"`
	SeedUser    string   `env:"SEED_USERNAME"    envDefault:"user"`
	SeedPass    string   `env:"SEED_PASSWORD"    envDefault:"user"`
	SeedRoles   []string `env:"SEED_ROLES"       envDefault:"USER" envSeparator:","`
}

// Load reads an optional .env file, then the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}
	return Parse()
}

// Parse reads the environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	a := c.Auth

	if a.MaxSessionsPerPrincipal < 1 {
		errs = append(errs, fmt.Errorf("MAX_SESSIONS_PER_PRINCIPAL must be at least 1, got %d", a.MaxSessionsPerPrincipal))
	}
	if !sessions.LimitPolicy(a.SessionLimitPolicy).Valid() {
		errs = append(errs, fmt.Errorf("SESSION_LIMIT_POLICY must be %q or %q, got %q", sessions.EvictOldest, sessions.RejectNew, a.SessionLimitPolicy))
	}
	if a.SessionShards < 1 || a.SessionShards > sessions.MaxShards || bits.OnesCount(uint(a.SessionShards)) != 1 {
		errs = append(errs, fmt.Errorf("SESSION_SHARDS must be a power of two in [1, %d], got %d", sessions.MaxShards, a.SessionShards))
	}
	if a.PasswordHashWorkFactor < bcrypt.MinCost || a.PasswordHashWorkFactor > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("PASSWORD_HASH_WORK_FACTOR must be in [%d, %d], got %d", bcrypt.MinCost, bcrypt.MaxCost, a.PasswordHashWorkFactor))
	}
	if strings.TrimSpace(a.SessionCookieName) == "" {
		errs = append(errs, errors.New("SESSION_COOKIE_NAME is required"))
	}
	for name, p := range map[string]string{
		"LOGIN_PATH":             a.LoginPath,
		"LOGOUT_PATH":            a.LogoutPath,
		"LOGIN_SUCCESS_REDIRECT": a.LoginSuccessRedirect,
		"LOGOUT_REDIRECT":        a.LogoutRedirect,
	} {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("%s must be an absolute path, got %q", name, p))
		}
	}
	if a.LoginPath == a.LogoutPath {
		errs = append(errs, errors.New("LOGIN_PATH and LOGOUT_PATH must differ"))
	}

	switch c.Identity.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Identity.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres identity backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("IDENTITY_BACKEND must be %q or %q, got %q", BackendMemory, BackendPostgres, c.Identity.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Addr is the listen address derived from Port
func (c Config) Addr() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func (c Config) IsDev() bool {
	return strings.EqualFold(c.Env, "DEV")
}
