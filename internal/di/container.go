// Package di provides a minimal service container for module wiring.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the read side of the container.
type ServiceRegistry interface {
	// Get returns the service registered under name, or nil.
	Get(name string) any
	// MustGet returns the service registered under name, panics if absent.
	MustGet(name string) any
}

// Container registers and resolves named services.
type Container interface {
	ServiceRegistry
	// Register stores a service under name, replacing any previous entry.
	Register(name string, service any)
}

type container struct {
	services map[string]any
	mu       sync.RWMutex
}

// NewContainer creates an empty container.
func NewContainer() Container {
	return &container{
		services: make(map[string]any),
	}
}

func (c *container) Register(name string, service any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = service
}

func (c *container) Get(name string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services[name]
}

func (c *container) MustGet(name string) any {
	svc := c.Get(name)
	if svc == nil {
		panic(fmt.Sprintf("di: service %q not registered", name))
	}
	return svc
}

// Resolve returns the service under name asserted to T.
func Resolve[T any](r ServiceRegistry, name string) T {
	return r.MustGet(name).(T)
}
