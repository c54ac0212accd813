package resource

import "strings"

// NamingConvention associates a supplied value name with a segment token.
type NamingConvention interface {
	Matches(candidateName, token string) bool
}

// NamingConventionFunc adapts a function to NamingConvention.
type NamingConventionFunc func(candidateName, token string) bool

// Matches implements NamingConvention.
func (f NamingConventionFunc) Matches(candidateName, token string) bool {
	return f(candidateName, token)
}

// DefaultNamingConvention matches names case-insensitively, so a value
// named "Id" fills the ":id" token.
type DefaultNamingConvention struct{}

// Matches implements NamingConvention.
func (DefaultNamingConvention) Matches(candidateName, token string) bool {
	return strings.EqualFold(candidateName, token)
}

// ExactNamingConvention matches names byte for byte.
type ExactNamingConvention struct{}

// Matches implements NamingConvention.
func (ExactNamingConvention) Matches(candidateName, token string) bool {
	return candidateName == token
}
