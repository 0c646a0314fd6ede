// Package source provides a unified interface for resolving secret values
// from local backends (env, SSM, Vault) before they are sealed and deployed.
package source

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Source defines resolution of a secret value by its source key.
type Source interface {
	// Resolve returns the plaintext value for key. A key that does not
	// exist in the backend returns a MissingSecretError.
	Resolve(ctx context.Context, key string) (string, error)

	// Close releases backend resources. Safe to call more than once.
	Close()
}

// MissingSecretError indicates a requested secret does not exist in the
// configured source. It is recorded once per secret name and the secret is
// dropped from the run; it never fails the run.
type MissingSecretError struct {
	Key     string
	Backend string
}

func (e *MissingSecretError) Error() string {
	return fmt.Sprintf("secret %q not found in %s source", e.Key, e.Backend)
}

// IsMissing reports whether err is a MissingSecretError.
func IsMissing(err error) bool {
	var missingErr *MissingSecretError
	return errors.As(err, &missingErr)
}

type cacheEntry struct {
	value string
	err   error
}

// Cached wraps a Source with a per-run cache so each key is resolved at
// most once, however many repositories receive it. Misses are cached too;
// a key absent at run start stays absent for the whole run.
type Cached struct {
	inner Source

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewCached wraps src with a resolution cache.
func NewCached(src Source) *Cached {
	return &Cached{
		inner:   src,
		entries: make(map[string]cacheEntry),
	}
}

// Resolve returns the cached value for key, resolving through the wrapped
// source on first use.
func (c *Cached) Resolve(ctx context.Context, key string) (string, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return entry.value, entry.err
	}

	value, err := c.inner.Resolve(ctx, key)

	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, err: err}
	c.mu.Unlock()

	return value, err
}

// Close closes the wrapped source.
func (c *Cached) Close() {
	c.inner.Close()
}

// Ensure Cached implements Source.
var _ Source = (*Cached)(nil)
