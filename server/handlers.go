package server

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type pageData struct {
	AppName    string
	Title      string
	Principal  string
	Since      string
	LoginPath  string
	LogoutPath string
	HelloPath  string
}

func (s *Server) newPageData(title string) pageData {
	return pageData{
		AppName:    s.config.AppName,
		Title:      title,
		LoginPath:  s.config.Auth.LoginPath,
		LogoutPath: s.config.Auth.LogoutPath,
		HelloPath:  RouteHello,
	}
}

// IndexHandler renders the public home page
func (s *Server) IndexHandler() http.HandlerFunc {
	tmpl := mustParseTemplate("page.html")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, s.newPageData("Home")); err != nil {
			zerolog.Ctx(r.Context()).Err(err).Msg("Failed to render index page")
		}
	}
}

// PrincipalPageHandler renders a page greeting the signed in principal. It
// is only reachable through the session gate.
func (s *Server) PrincipalPageHandler(title string) http.HandlerFunc {
	tmpl := mustParseTemplate("page.html")

	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			// Only possible when the path was configured public
			redirect(w, r, s.config.Auth.LoginPath, http.StatusSeeOther)
			return
		}

		data := s.newPageData(title)
		data.Principal = sess.Principal
		data.Since = sess.CreatedAt.Format(time.RFC1123)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := tmpl.Execute(w, data); err != nil {
			zerolog.Ctx(r.Context()).Err(err).Msg("Failed to render page")
		}
	}
}
