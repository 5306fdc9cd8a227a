// Package secrets resolves credential references in configuration values.
//
// A value of the form "scheme:key" is looked up in the source registered for
// scheme:
//
//	env:OPENAI_API_KEY          environment variable
//	file:/run/secrets/mongo_pw  file contents, surrounding whitespace trimmed
//	vault:bujo#llm_api_key      HashiCorp Vault KV v2 path and field
//
// Anything else, including the empty string, is a literal and is returned
// unchanged.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// ErrNotFound is returned when a referenced secret does not exist.
var ErrNotFound = errors.New("secret not found")

// Source looks up secrets for one reference scheme.
type Source interface {
	Scheme() string
	Lookup(ctx context.Context, key string) (string, error)
}

// Resolver dispatches references to their sources and caches results for the
// lifetime of the process.
type Resolver struct {
	sources map[string]Source

	mu    sync.RWMutex
	cache map[string]string
}

// NewResolver registers sources by scheme. Later sources replace earlier ones
// with the same scheme.
func NewResolver(sources ...Source) *Resolver {
	r := &Resolver{sources: make(map[string]Source), cache: make(map[string]string)}
	for _, s := range sources {
		if s != nil {
			r.sources[s.Scheme()] = s
		}
	}
	return r
}

// Resolve returns the secret value behind ref, or ref itself when it is not
// a reference to a registered scheme.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	scheme, key, ok := strings.Cut(ref, ":")
	if !ok {
		return ref, nil
	}
	src, ok := r.sources[scheme]
	if !ok {
		// mongodb://, postgres:// and similar
		return ref, nil
	}
	if key == "" {
		return "", fmt.Errorf("secret reference %q: empty key", ref)
	}

	r.mu.RLock()
	val, hit := r.cache[ref]
	r.mu.RUnlock()
	if hit {
		return val, nil
	}

	val, err := src.Lookup(ctx, key)
	if err != nil {
		return "", fmt.Errorf("resolve %s secret %q: %w", scheme, key, err)
	}
	r.mu.Lock()
	r.cache[ref] = val
	r.mu.Unlock()
	return val, nil
}

// ResolveAll resolves each pointer in place and stops at the first error.
func (r *Resolver) ResolveAll(ctx context.Context, refs ...*string) error {
	for _, p := range refs {
		val, err := r.Resolve(ctx, *p)
		if err != nil {
			return err
		}
		*p = val
	}
	return nil
}

// EnvSource reads environment variables.
type EnvSource struct{}

func (EnvSource) Scheme() string { return "env" }

func (EnvSource) Lookup(_ context.Context, key string) (string, error) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return "", ErrNotFound
	}
	return val, nil
}

// FileSource reads one secret per file, the layout Docker and Kubernetes use
// for mounted secrets.
type FileSource struct{}

func (FileSource) Scheme() string { return "file" }

func (FileSource) Lookup(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
