package server

// Page routes. Login and logout paths come from configuration.
const (
	RouteIndex   = "/"
	RouteHome    = "/home"
	RouteHello   = "/hello"
	RouteWelcome = "/welcome"
	RouteProfile = "/profile"
)

// Form fields of the login page
const (
	FormUsername = "username"
	FormPassword = "password"
)
