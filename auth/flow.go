package auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-session-gate/authz"
	apperrors "github.com/jrsteele09/go-session-gate/internal/errors"
	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Authenticator validates credentials. *Validator is the production one.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) Outcome
}

// SessionRegistry is the part of *sessions.Registry the flow drives.
type SessionRegistry interface {
	Register(principal string) (sessions.Session, error)
	Validate(sessionID string) (sessions.Session, bool)
	Invalidate(sessionID string)
}

var (
	_ Authenticator   = (*Validator)(nil)
	_ SessionRegistry = (*sessions.Registry)(nil)
)

// Cookie is an instruction to set or clear the session cookie
type Cookie struct {
	Name  string
	Value string
	Clear bool
}

// Response is what the transport must send back. A non-empty Location means
// a redirect with Status.
type Response struct {
	Status   int
	Location string
	Cookie   *Cookie
}

func redirect(location string) Response {
	return Response{Status: http.StatusSeeOther, Location: location}
}

// FailureHandler turns a failed login into a response. err matches one of the
// outcome error kinds; the response must not say which credential was wrong.
type FailureHandler func(err error) Response

// Failure messages shown on the login page
const (
	MsgAuthenticationFailed = "Authentication failed"
	MsgTryAgain             = "Service temporarily unavailable, please try again"
	MsgSessionLimit         = "Maximum sessions exceeded"
)

// RedirectOnFailure redirects to loginPath with an error query parameter.
func RedirectOnFailure(loginPath string) FailureHandler {
	return func(err error) Response {
		msg := MsgAuthenticationFailed
		switch {
		case apperrors.Is(err, apperrors.ErrStoreUnavailable):
			msg = MsgTryAgain
		case apperrors.Is(err, apperrors.ErrSessionLimitReached):
			msg = MsgSessionLimit
		}
		return redirect(loginPath + "?error=" + url.QueryEscape(msg))
	}
}

// FlowConfig holds the routing targets of the flow
type FlowConfig struct {
	LoginPath            string
	LogoutPath           string
	LoginSuccessRedirect string
	LogoutRedirect       string
	SessionCookieName    string
}

// Flow orchestrates gatekeeping, login and logout.
type Flow struct {
	authenticator Authenticator
	registry      SessionRegistry
	matcher       *authz.Matcher
	config        FlowConfig
	onFailure     FailureHandler
}

// FlowOption defines a function type to modify the Flow instance.
type FlowOption func(*Flow)

func WithFailureHandler(h FailureHandler) FlowOption {
	return func(f *Flow) {
		f.onFailure = h
	}
}

func NewFlow(authenticator Authenticator, registry SessionRegistry, matcher *authz.Matcher, config FlowConfig, options ...FlowOption) (*Flow, error) {
	if authenticator == nil {
		return nil, errors.Wrap(ValidatorRequiredErr, "[NewFlow]")
	}
	if registry == nil {
		return nil, errors.Wrap(RegistryRequiredErr, "[NewFlow]")
	}
	if matcher == nil {
		return nil, errors.Wrap(MatcherRequiredErr, "[NewFlow]")
	}

	f := &Flow{
		authenticator: authenticator,
		registry:      registry,
		matcher:       matcher,
		config:        config,
		onFailure:     RedirectOnFailure(config.LoginPath),
	}
	for _, opt := range options {
		opt(f)
	}
	return f, nil
}

// Rules builds the effective rule list: login and logout are always public,
// protected carve-outs come before public paths, and the catch-all closes it.
func Rules(config FlowConfig, protectedPaths, publicPaths []string) []authz.Rule {
	rules := authz.PermitAll(config.LoginPath, config.LogoutPath)
	rules = append(rules, authz.Authenticated(protectedPaths...)...)
	rules = append(rules, authz.PermitAll(publicPaths...)...)
	return rules
}

func (f *Flow) Config() FlowConfig {
	return f.config
}

// Decision is the gate's verdict on one request
type Decision struct {
	Access  authz.Access
	Allowed bool
	// Session is set when a protected request carried a valid session
	Session sessions.Session
	// Response is the challenge to send when Allowed is false
	Response Response
}

// Authorize gates a request. Public paths pass untouched. Protected paths
// need a valid session; without one the caller is sent to the login page and
// any stale cookie is cleared.
func (f *Flow) Authorize(path, sessionID string) Decision {
	access := f.matcher.Classify(path)
	if access == authz.Public {
		return Decision{Access: access, Allowed: true}
	}

	if sessionID != "" {
		if sess, ok := f.registry.Validate(sessionID); ok {
			return Decision{Access: access, Allowed: true, Session: sess}
		}
	}

	challenge := redirect(f.config.LoginPath)
	if sessionID != "" {
		challenge.Cookie = f.clearCookie()
	}
	return Decision{Access: access, Response: challenge}
}

// Login validates the submitted credentials and on success registers a new
// session, replacing whatever session the client presented.
func (f *Flow) Login(ctx context.Context, username, password, currentSessionID string) (Outcome, Response) {
	outcome := f.authenticator.Authenticate(ctx, username, password)
	if !outcome.Succeeded() {
		return f.fail(username, outcome)
	}

	if currentSessionID != "" {
		f.registry.Invalidate(currentSessionID)
	}
	sess, err := f.registry.Register(outcome.Principal.Username)
	if err != nil {
		outcome.Err = err
		return f.fail(username, outcome)
	}
	outcome.Session = sess

	log.Info().Str("principal", sess.Principal).Msg("login succeeded")
	resp := redirect(f.config.LoginSuccessRedirect)
	resp.Cookie = &Cookie{Name: f.config.SessionCookieName, Value: sess.ID}
	return outcome, resp
}

func (f *Flow) fail(username string, outcome Outcome) (Outcome, Response) {
	switch {
	case apperrors.Is(outcome.Err, apperrors.ErrStoreUnavailable):
		log.Error().Err(outcome.Err).Msg("login failed: identity store unavailable")
	case apperrors.Is(outcome.Err, apperrors.ErrSessionLimitReached):
		log.Warn().Str("principal", username).Msg("login refused: session limit reached")
	case apperrors.Is(outcome.Err, apperrors.ErrInvalidCredentials):
		log.Warn().Str("username", username).Msg("login failed")
	default:
		log.Err(outcome.Err).Msg("login failed")
	}
	return outcome, f.onFailure(outcome.Err)
}

// Logout needs no authentication and is idempotent: the session, if any, is
// invalidated, the cookie cleared and the caller redirected.
func (f *Flow) Logout(sessionID string) Response {
	if sessionID != "" {
		f.registry.Invalidate(sessionID)
	}
	resp := redirect(f.config.LogoutRedirect)
	resp.Cookie = f.clearCookie()
	return resp
}

func (f *Flow) clearCookie() *Cookie {
	return &Cookie{Name: f.config.SessionCookieName, Clear: true}
}
