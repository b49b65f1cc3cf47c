package server

import (
	"net/http"

	"github.com/jrsteele09/go-session-gate/auth"
)

func (s *Server) sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(s.config.Auth.SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// writeResponse applies a flow response to the wire
func (s *Server) writeResponse(w http.ResponseWriter, r *http.Request, resp auth.Response) {
	if resp.Cookie != nil {
		setSessionCookie(w, r, resp.Cookie)
	}
	if resp.Location != "" {
		redirect(w, r, resp.Location, resp.Status)
		return
	}
	if resp.Status != 0 {
		w.WriteHeader(resp.Status)
	}
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, c *auth.Cookie) {
	cookie := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Path:     "/",
		HttpOnly: true,
		Secure:   getScheme(r) == "https",
		SameSite: http.SameSiteLaxMode,
	}
	if c.Clear {
		cookie.Value = ""
		cookie.MaxAge = -1
	}
	http.SetCookie(w, cookie)
}

// redirect is htmx-aware: htmx requests get an HX-Redirect instruction
func redirect(w http.ResponseWriter, r *http.Request, location string, status int) {
	if isHTMXRequest(r) {
		w.Header().Set("HX-Redirect", location)
		w.WriteHeader(http.StatusNoContent) // 204 - no content, just redirect instruction
		return
	}
	if status == 0 {
		status = http.StatusSeeOther
	}
	http.Redirect(w, r, location, status)
}

// isHTMXRequest checks if the request was initiated by HTMX
func isHTMXRequest(r *http.Request) bool {
	return r.Header.Get("HX-Request") == "true"
}
