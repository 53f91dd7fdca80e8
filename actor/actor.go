// Package actor contains the identity type that game objects use to compose
// capabilities, and the context helpers that carry who is executing.
package actor

import (
	"context"
	"fmt"
	"sync"

	"github.com/zond/mudcore"
	"github.com/zond/mudcore/capability"
)

type Actor struct {
	id   string
	name string

	mutex      sync.RWMutex
	caps       capability.Set
	components map[capability.Capability]any
}

func New(name string) *Actor {
	return &Actor{
		id:         mudcore.NextID(),
		name:       name,
		caps:       capability.Set{},
		components: map[capability.Capability]any{},
	}
}

func (a *Actor) ID() string {
	return a.id
}

func (a *Actor) Name() string {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.name
}

func (a *Actor) SetName(name string) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.name = name
}

// Enable adds c to the actor, with component as the implementation other
// code retrieves via Component or Get. A nil component only sets the tag.
func (a *Actor) Enable(c capability.Capability, component any) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.caps.Add(c)
	if component != nil {
		a.components[c] = component
	}
}

func (a *Actor) Disable(c capability.Capability) {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	a.caps.Remove(c)
	delete(a.components, c)
}

func (a *Actor) Has(c capability.Capability) bool {
	if a == nil {
		return false
	}
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return a.caps.Has(c)
}

func (a *Actor) Capabilities() capability.Set {
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	return capability.Of(a.caps.Sorted()...)
}

func (a *Actor) Component(c capability.Capability) (any, bool) {
	if a == nil {
		return nil, false
	}
	a.mutex.RLock()
	defer a.mutex.RUnlock()
	if !a.caps.Has(c) {
		return nil, false
	}
	component, found := a.components[c]
	return component, found
}

// Get returns the component registered for c if the actor has c enabled and
// the component is a T.
func Get[T any](a *Actor, c capability.Capability) (T, bool) {
	component, found := a.Component(c)
	if !found {
		var zero T
		return zero, false
	}
	t, ok := component.(T)
	return t, ok
}

func (a *Actor) String() string {
	if a == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s#%s", a.Name(), a.id)
}

type contextKey int

const (
	callerKey contextKey = iota
	interactiveKey
)

// WithCaller returns a context in which a is the identity executing code.
func WithCaller(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, callerKey, a)
}

func Caller(ctx context.Context) *Actor {
	if a, ok := ctx.Value(callerKey).(*Actor); ok {
		return a
	}
	return nil
}

// WithInteractive returns a context in which a is the identity whose
// connection produced the input being processed.
func WithInteractive(ctx context.Context, a *Actor) context.Context {
	return context.WithValue(ctx, interactiveKey, a)
}

func Interactive(ctx context.Context) *Actor {
	if a, ok := ctx.Value(interactiveKey).(*Actor); ok {
		return a
	}
	return nil
}
