package server

import (
	"context"
	"net/http"

	"github.com/jrsteele09/go-session-gate/sessions"
	"github.com/rs/zerolog"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the validated session of a protected request
	ContextKeySession ContextKey = "session"
)

// SessionGateMiddleware classifies every request and challenges protected
// ones that do not carry a valid session cookie.
func (s *Server) SessionGateMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		decision := s.flow.Authorize(r.URL.Path, s.sessionIDFromRequest(r))
		if !decision.Allowed {
			zerolog.Ctx(r.Context()).Debug().Str("path", r.URL.Path).Msg("authentication required")
			s.writeResponse(w, r, decision.Response)
			return
		}

		if decision.Session.ID != "" {
			ctx := context.WithValue(r.Context(), ContextKeySession, decision.Session)
			r = r.WithContext(ctx)
		}
		next(w, r)
	}
}

// SessionFromContext returns the session the gate attached, if any
func SessionFromContext(ctx context.Context) (sessions.Session, bool) {
	sess, ok := ctx.Value(ContextKeySession).(sessions.Session)
	return sess, ok
}
