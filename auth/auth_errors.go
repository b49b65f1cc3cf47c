package auth

import "errors"

var (
	ValidatorRequiredErr = errors.New("validator is required")
	RegistryRequiredErr  = errors.New("session registry is required")
	MatcherRequiredErr   = errors.New("authorization matcher is required")
	UsersRequiredErr     = errors.New("users repo is required")
	HasherRequiredErr    = errors.New("password hasher is required")
	FlowRequiredErr      = errors.New("authentication flow is required")
)
