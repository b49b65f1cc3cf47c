package users

import (
	"slices"
	"strings"
)

// RoleType represents a flat role granted to an identity
type RoleType string

const (
	RoleUser  RoleType = "USER"
	RoleAdmin RoleType = "ADMIN"
)

// User is an identity as held by the identity store. Users are created once
// and never updated.
type User struct {
	Username     string     `json:"username"`         // Unique key
	PasswordHash string     `json:"-"`                // Self-describing hash, never serialize
	Roles        []RoleType `json:"roles,omitempty"` // Flat role set
}

// New builds a user with its roles de-duplicated and sorted.
func New(username, passwordHash string, roles ...RoleType) *User {
	return &User{
		Username:     username,
		PasswordHash: passwordHash,
		Roles:        normaliseRoles(roles),
	}
}

// HasRole reports whether the user was granted role
func (u *User) HasRole(role RoleType) bool {
	return slices.Contains(u.Roles, role)
}

// Clone returns a deep copy so stores never hand out their own records
func (u *User) Clone() *User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	return &c
}

// JoinRoles flattens a role set into its persisted form ("ADMIN,USER").
func JoinRoles(roles []RoleType) string {
	parts := make([]string, 0, len(roles))
	for _, r := range normaliseRoles(roles) {
		parts = append(parts, string(r))
	}
	return strings.Join(parts, ",")
}

// SplitRoles is the inverse of JoinRoles
func SplitRoles(joined string) []RoleType {
	var roles []RoleType
	for _, part := range strings.Split(joined, ",") {
		if part = strings.TrimSpace(part); part != "" {
			roles = append(roles, RoleType(part))
		}
	}
	return normaliseRoles(roles)
}

func normaliseRoles(roles []RoleType) []RoleType {
	if len(roles) == 0 {
		return nil
	}
	out := make([]RoleType, 0, len(roles))
	for _, r := range roles {
		r = RoleType(strings.TrimSpace(string(r)))
		if r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
