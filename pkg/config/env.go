package config

import "strings"

// Environment constants
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// IsProductionLike reports whether environment is staging or production.
// Those environments enforce explicit database and broker configuration.
func IsProductionLike(environment string) bool {
	switch strings.ToLower(environment) {
	case EnvStaging, EnvProduction:
		return true
	default:
		return false
	}
}
