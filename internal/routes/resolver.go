// Package routes resolves symbolic route names to concrete URIs.
//
// Resolved URIs are percent-decoded before being returned, since the
// access filter matches patterns against decoded request paths.
package routes

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// Resolver errors.
var (
	// ErrRouteNotFound indicates that no route is registered under the name.
	ErrRouteNotFound = errors.New("route not found")

	// ErrMissingParam indicates that a route parameter was not supplied.
	ErrMissingParam = errors.New("missing route parameter")
)

// Resolver turns a symbolic route name into a concrete URI.
type Resolver interface {
	// Resolve resolves a named route, substituting params into the
	// route template. When absolute is true the configured base URL is
	// prepended.
	Resolve(name string, params map[string]string, absolute bool) (string, error)
}

// StaticResolver resolves routes from a registered name-to-template
// table. Templates use ":param" path segments, e.g. "/posts/:id/edit".
type StaticResolver struct {
	baseURL string

	mu     sync.RWMutex
	routes map[string]string
}

// NewStatic creates a resolver with the given base URL for absolute
// resolution.
func NewStatic(baseURL string) *StaticResolver {
	return &StaticResolver{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		routes:  make(map[string]string),
	}
}

// Register registers or overwrites a named route template.
func (r *StaticResolver) Register(name, template string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[name] = template
}

// Names returns the registered route names.
func (r *StaticResolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.routes))
	for name := range r.routes {
		names = append(names, name)
	}
	return names
}

// Resolve resolves a named route to a percent-decoded URI.
func (r *StaticResolver) Resolve(name string, params map[string]string, absolute bool) (string, error) {
	r.mu.RLock()
	template, ok := r.routes[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %q", ErrRouteNotFound, name)
	}

	uri, err := expandTemplate(template, params)
	if err != nil {
		return "", fmt.Errorf("route %q: %w", name, err)
	}

	decoded, err := url.PathUnescape(uri)
	if err != nil {
		return "", fmt.Errorf("route %q: %w", name, err)
	}

	if absolute && r.baseURL != "" {
		return r.baseURL + decoded, nil
	}
	return decoded, nil
}

// expandTemplate substitutes ":param" segments with their values.
func expandTemplate(template string, params map[string]string) (string, error) {
	segments := strings.Split(template, "/")
	for i, segment := range segments {
		if !strings.HasPrefix(segment, ":") {
			continue
		}
		key := segment[1:]
		value, ok := params[key]
		if !ok || value == "" {
			return "", fmt.Errorf("%w: %q", ErrMissingParam, key)
		}
		segments[i] = value
	}
	return strings.Join(segments, "/"), nil
}

// Ensure StaticResolver implements Resolver.
var _ Resolver = (*StaticResolver)(nil)
