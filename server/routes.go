package server

func (s *Server) initRoutes() {
	a := s.config.Auth

	// "{$}" keeps the index from swallowing every unrouted path
	s.RegisterRouteFunc("GET "+RouteIndex+"{$}", s.IndexHandler())
	s.RegisterRouteFunc("GET "+RouteHome, s.IndexHandler())

	// LOGIN / LOGOUT
	s.RegisterRouteFunc("GET "+a.LoginPath, s.LoginPageUIHandler())
	s.RegisterRouteFunc("POST "+a.LoginPath, s.LoginSubmissionHandler())
	s.RegisterRouteFunc("GET "+a.LogoutPath, s.LogoutHandler())
	s.RegisterRouteFunc("POST "+a.LogoutPath, s.LogoutHandler())

	// Pages behind the session gate
	s.RegisterRouteFunc("GET "+RouteHello, s.PrincipalPageHandler("Hello"))
	s.RegisterRouteFunc("GET "+RouteWelcome, s.PrincipalPageHandler("Welcome"))
	s.RegisterRouteFunc("GET "+RouteProfile, s.PrincipalPageHandler("Profile"))
}
