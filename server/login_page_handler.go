package server

import (
	"net/http"

	"github.com/rs/zerolog"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName   string
	LoginPath string
	Error     string
}

// LoginPageUIHandler displays the login form (GET login path)
func (s *Server) LoginPageUIHandler() http.HandlerFunc {
	loginTmpl := mustParseTemplate("login.html")

	return func(w http.ResponseWriter, r *http.Request) {
		data := LoginPageData{
			AppName:   s.config.AppName,
			LoginPath: s.config.Auth.LoginPath,
			Error:     r.URL.Query().Get("error"),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := loginTmpl.Execute(w, data); err != nil {
			zerolog.Ctx(r.Context()).Err(err).Msg("Failed to render login page")
		}
	}
}

// LoginSubmissionHandler authenticates the submitted form (POST login path)
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form submission", http.StatusBadRequest)
			return
		}

		_, resp := s.flow.Login(r.Context(),
			r.PostFormValue(FormUsername),
			r.PostFormValue(FormPassword),
			s.sessionIDFromRequest(r),
		)
		s.writeResponse(w, r, resp)
	}
}

// LogoutHandler ends the current session, if any (GET and POST logout path)
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeResponse(w, r, s.flow.Logout(s.sessionIDFromRequest(r)))
	}
}
