package source

import (
	"context"
	"os"
	"strings"
)

// EnvSource resolves secret values from environment variables. A source key
// is mapped to an environment variable by upper-casing it, replacing
// non-alphanumeric characters with underscores, and prepending the prefix.
type EnvSource struct {
	prefix string
}

// NewEnvSource creates an environment-based source. An empty prefix
// defaults to DefaultEnvPrefix.
func NewEnvSource(prefix string) *EnvSource {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return &EnvSource{prefix: prefix}
}

// Resolve looks up the environment variable mapped from key.
func (s *EnvSource) Resolve(_ context.Context, key string) (string, error) {
	value, ok := os.LookupEnv(s.envName(key))
	if !ok {
		return "", &MissingSecretError{Key: key, Backend: BackendEnv}
	}
	return value, nil
}

// Close is a no-op for EnvSource.
func (s *EnvSource) Close() {}

// envName maps a source key to its environment variable name.
func (s *EnvSource) envName(key string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, key)
	return s.prefix + mapped
}

// Ensure EnvSource implements Source.
var _ Source = (*EnvSource)(nil)
