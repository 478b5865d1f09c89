// Package registry implements the per-invocation registry of locally
// exported recipes.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/goplus/kiln/internal/index"
	"github.com/goplus/kiln/recipe"
)

// Index is the external recipe index consulted when a recipe is not
// registered locally.
type Index interface {
	Lookup(ctx context.Context, ref recipe.Ref) (*recipe.Definition, error)
}

// Registry holds the recipes exported during one invocation.
type Registry struct {
	fallback Index

	mu    sync.RWMutex
	defs  map[recipe.Ref]*recipe.Definition
	order []recipe.Ref
}

// New creates an empty Registry. fallback may be nil.
func New(fallback Index) *Registry {
	return &Registry{
		fallback: fallback,
		defs:     make(map[recipe.Ref]*recipe.Definition),
	}
}

// Register adds def under its reference.
func (r *Registry) Register(def *recipe.Definition) error {
	if def.Ref.Version == "" {
		return fmt.Errorf("register %s: recipe declares no version", def.Ref)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.defs[def.Ref]; ok {
		return &DuplicateRecipeError{Ref: def.Ref, First: old.Path, Second: def.Path}
	}
	r.defs[def.Ref] = def
	r.order = append(r.order, def.Ref)
	return nil
}

// Lookup returns the recipe registered for ref, falling back to the
// external index.
func (r *Registry) Lookup(ctx context.Context, ref recipe.Ref) (*recipe.Definition, error) {
	r.mu.RLock()
	def, ok := r.defs[ref]
	r.mu.RUnlock()
	if ok {
		return def, nil
	}
	if r.fallback != nil {
		def, err := r.fallback.Lookup(ctx, ref)
		if err == nil {
			return def, nil
		}
		if !errors.Is(err, index.ErrNotFound) {
			return nil, fmt.Errorf("failed to look up %s: %w", ref, err)
		}
	}
	return nil, &MissingRecipeError{Ref: ref}
}

// Registered returns the registered references in registration order.
func (r *Registry) Registered() []recipe.Ref {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]recipe.Ref(nil), r.order...)
}

// DuplicateRecipeError reports a second registration of the same reference.
type DuplicateRecipeError struct {
	Ref    recipe.Ref
	First  string
	Second string
}

func (e *DuplicateRecipeError) Error() string {
	return fmt.Sprintf("recipe %s registered twice (%s, %s)", e.Ref, e.First, e.Second)
}

// MissingRecipeError reports a reference found neither in the registry nor
// in the index. Consumer is set by the resolver.
type MissingRecipeError struct {
	Ref      recipe.Ref
	Consumer recipe.Ref
}

func (e *MissingRecipeError) Error() string {
	if e.Consumer.IsZero() {
		return fmt.Sprintf("recipe %s not found", e.Ref)
	}
	return fmt.Sprintf("recipe %s required by %s not found", e.Ref, e.Consumer)
}

func (e *MissingRecipeError) Is(target error) bool {
	return target == index.ErrNotFound
}
