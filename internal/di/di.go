// Package di provides a small lazy dependency injection container used by
// the bounded-context modules.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry resolves registered services by key.
type ServiceRegistry interface {
	Get(key string) any
}

// Container is a ServiceRegistry that also accepts registrations.
type Container interface {
	ServiceRegistry
	Register(key string, value any)
	RegisterFactory(key string, factory func(ServiceRegistry) any)
	Has(key string) bool
}

type entry struct {
	once    sync.Once
	factory func(ServiceRegistry) any
	value   any
}

type container struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{entries: make(map[string]*entry)}
}

// Register stores an already built value under key.
func (c *container) Register(key string, value any) {
	e := &entry{value: value}
	e.once.Do(func() {})

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()
}

// RegisterFactory stores a factory that is invoked once, on first Get.
func (c *container) RegisterFactory(key string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	c.entries[key] = &entry{factory: factory}
	c.mu.Unlock()
}

// Has reports whether key was registered.
func (c *container) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[key]
	return ok
}

// Get resolves key, building it on first access. Panics on unknown keys
// since a missing registration is a wiring bug.
func (c *container) Get(key string) any {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		panic(fmt.Sprintf("di: service %q not registered", key))
	}

	e.once.Do(func() {
		e.value = e.factory(c)
	})

	return e.value
}

// Token is a typed service key.
type Token[T any] struct {
	key string
}

// NewToken creates a typed token for key.
func NewToken[T any](key string) Token[T] {
	return Token[T]{key: key}
}

// Key returns the underlying registry key.
func (t Token[T]) Key() string {
	return t.key
}

// RegisterToken registers a typed factory for token.
func RegisterToken[T any](c Container, token Token[T], factory func(ServiceRegistry) T) {
	c.RegisterFactory(token.key, func(sr ServiceRegistry) any {
		return factory(sr)
	})
}

// GetToken resolves token with its static type.
func GetToken[T any](sr ServiceRegistry, token Token[T]) T {
	v, ok := sr.Get(token.key).(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has unexpected type", token.key))
	}
	return v
}
