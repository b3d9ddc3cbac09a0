// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package objtree

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrUnresolvedType is returned when a type tag has no registered
// factory.
var ErrUnresolvedType = errors.New("unresolved type")

// Factory returns a new, empty builder for one registered type.
type Factory func() Builder

// Registry maps type tags to factories.
//
// Registry is safe for concurrent use. Registration normally happens
// once at process start; lookups happen during every load.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// DefaultRegistry is the process-wide registry used when callers do
// not supply their own. [Record] is registered in it.
var DefaultRegistry = NewRegistry()

// Register associates tag with factory. Registering a tag twice is an
// error: two types claiming one tag would make loads ambiguous.
func (r *Registry) Register(tag string, factory Factory) error {
	if tag == "" {
		return fmt.Errorf("registering type: empty tag")
	}
	if factory == nil {
		return fmt.Errorf("registering type %q: nil factory", tag)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[tag]; exists {
		return fmt.Errorf("registering type %q: tag already registered", tag)
	}
	r.factories[tag] = factory
	return nil
}

// MustRegister is Register for init functions. It panics on error.
func (r *Registry) MustRegister(tag string, factory Factory) {
	if err := r.Register(tag, factory); err != nil {
		panic("objtree: " + err.Error())
	}
}

// Unregister removes tag. Removing an unknown tag is a no-op.
func (r *Registry) Unregister(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.factories, tag)
}

// Lookup returns the factory for tag.
func (r *Registry) Lookup(tag string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[tag]
	return factory, ok
}

// New returns an empty builder for tag, or ErrUnresolvedType.
func (r *Registry) New(tag string) (Builder, error) {
	factory, ok := r.Lookup(tag)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedType, tag)
	}
	builder := factory()
	if builder == nil {
		return nil, fmt.Errorf("factory for %q returned nil", tag)
	}
	return builder, nil
}

// Tags returns every registered tag in sorted order.
func (r *Registry) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.factories))
	for tag := range r.factories {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Build finishes a builder: if it implements Finisher the finished
// value is returned, otherwise the builder itself is the value.
func Build(builder Builder) (any, error) {
	finisher, ok := builder.(Finisher)
	if !ok {
		return builder, nil
	}
	return finisher.Finish()
}
