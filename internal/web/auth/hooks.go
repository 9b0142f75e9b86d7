package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/conduit-lang/restgen/internal/orm/access"
	"github.com/conduit-lang/restgen/internal/orm/crud"
)

// Built-in dependency names
const (
	Authenticated    = "authenticated"
	PermissionPrefix = "permission:"
)

// Hook checks a caller before a controller runs. Any error rejects the
// request as unauthorized.
type Hook func(ctx context.Context, caller access.Caller) error

// Dependency is a named hook attached to an endpoint
type Dependency struct {
	Name string
	Hook Hook
}

// Hooks is a registry of named hooks
type Hooks struct {
	mu    sync.RWMutex
	hooks map[string]Hook
}

// NewHooks creates an empty hook registry. The built-in dependencies are
// always available.
func NewHooks() *Hooks {
	return &Hooks{hooks: make(map[string]Hook)}
}

var defaultHooks = NewHooks()

// DefaultHooks returns the registry RegisterHook adds to
func DefaultHooks() *Hooks {
	return defaultHooks
}

// RegisterHook registers a named hook in the default registry
func RegisterHook(name string, hook Hook) {
	defaultHooks.Register(name, hook)
}

// Register adds a named hook, replacing any hook of the same name
func (h *Hooks) Register(name string, hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[name] = hook
}

// Names returns the registered hook names, sorted
func (h *Hooks) Names() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.hooks))
	for name := range h.hooks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the hook of a dependency name
func (h *Hooks) Lookup(name string) (Hook, error) {
	switch {
	case name == Authenticated:
		return requireAuthenticated, nil
	case strings.HasPrefix(name, PermissionPrefix):
		permission := strings.TrimPrefix(name, PermissionPrefix)
		if permission == "" {
			return nil, fmt.Errorf("dependency %q names no permission", name)
		}
		return requirePermission(permission), nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	hook, ok := h.hooks[name]
	if !ok {
		return nil, fmt.Errorf("unknown dependency %q", name)
	}
	return hook, nil
}

// Resolve looks up every dependency name, skipping duplicates
func (h *Hooks) Resolve(names []string) ([]Dependency, error) {
	seen := make(map[string]bool, len(names))
	deps := make([]Dependency, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		hook, err := h.Lookup(name)
		if err != nil {
			return nil, err
		}
		deps = append(deps, Dependency{Name: name, Hook: hook})
	}
	return deps, nil
}

// Check runs deps in order and stops at the first failure, which is
// returned wrapping crud.ErrUnauthorized
func Check(ctx context.Context, caller access.Caller, deps []Dependency) error {
	for _, dep := range deps {
		if err := dep.Hook(ctx, caller); err != nil {
			if errors.Is(err, crud.ErrUnauthorized) {
				return fmt.Errorf("%s: %w", dep.Name, err)
			}
			return fmt.Errorf("%s: %w: %v", dep.Name, crud.ErrUnauthorized, err)
		}
	}
	return nil
}

func requireAuthenticated(_ context.Context, caller access.Caller) error {
	if !caller.Authenticated() {
		return crud.ErrUnauthorized
	}
	return nil
}

func requirePermission(name string) Hook {
	return func(_ context.Context, caller access.Caller) error {
		if !caller.HasPermission(name) {
			return fmt.Errorf("missing permission %s: %w", name, crud.ErrUnauthorized)
		}
		return nil
	}
}
