package config

import (
	"os"
	"strings"
)

// MockEnvVar forces deterministic, network-free embeddings and index loads when set to "true".
const MockEnvVar = "USE_MOCK_EMBEDDINGS"

// Toggle is a boolean flag read at call time.
type Toggle interface {
	Enabled() bool
}

// EnvToggle reads an environment variable on every call.
type EnvToggle string

// Enabled reports whether the variable equals "true", ignoring case and surrounding space.
func (e EnvToggle) Enabled() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(string(e))), "true")
}

// StaticToggle is a fixed flag.
type StaticToggle bool

func (s StaticToggle) Enabled() bool { return bool(s) }

// AnyToggle is enabled when any member is.
type AnyToggle []Toggle

func (a AnyToggle) Enabled() bool {
	for _, t := range a {
		if t != nil && t.Enabled() {
			return true
		}
	}
	return false
}

// MockToggle combines the yaml mock_mode flag with the USE_MOCK_EMBEDDINGS variable.
func (c *Config) MockToggle() Toggle {
	return AnyToggle{StaticToggle(c.MockMode), EnvToggle(MockEnvVar)}
}
