package di

import "sync"

// Token is a typed registration key. Services registered under a token are
// constructed lazily on first resolution.
type Token[T any] struct {
	name string
}

// NewToken creates a token under the given unique name.
func NewToken[T any](name string) Token[T] {
	return Token[T]{name: name}
}

// Name returns the token's registration name.
func (t Token[T]) Name() string {
	return t.name
}

type lazyService[T any] struct {
	once    sync.Once
	factory func(ServiceRegistry) T
	value   T
}

// RegisterToken registers a lazily-constructed service under the token.
func RegisterToken[T any](c Container, t Token[T], factory func(ServiceRegistry) T) {
	c.Register(t.name, &lazyService[T]{factory: factory})
}

// GetToken resolves the token's service, constructing it on first use.
func GetToken[T any](r ServiceRegistry, t Token[T]) T {
	ls := r.MustGet(t.name).(*lazyService[T])
	ls.once.Do(func() {
		ls.value = ls.factory(r)
	})
	return ls.value
}
