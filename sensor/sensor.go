// Package sensor implements the capability that lets an identity receive
// rendered messages.
package sensor

import (
	"context"
	"sync"

	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/capability"
	"github.com/zond/mudcore/logging"
	"github.com/zond/mudcore/message"
	"go.uber.org/zap"
)

const (
	OpenMarker  = "{\"stream\":\"open\"}\n"
	CloseMarker = "{\"stream\":\"close\"}\n"
)

// Hooks lets the owner of a sensor veto or react to deliveries.
type Hooks interface {
	// TryMessage returns extra arguments for OnMessage, or an error to
	// abort the delivery.
	TryMessage(ctx context.Context, msg *message.Message, sender *actor.Actor) ([]any, error)
	OnMessage(ctx context.Context, msg *message.Message, extra []any)
}

type Sensor struct {
	// Terminal returns the terminal type of whatever reads this sensor.
	Terminal func() string
	Hooks    Hooks

	registry *message.Registry
	log      *zap.SugaredLogger

	mutex   sync.RWMutex
	enabled bool
}

func New(registry *message.Registry, log *zap.SugaredLogger) *Sensor {
	return &Sensor{
		registry: registry,
		log:      logging.OrNop(log),
		enabled:  true,
	}
}

func (s *Sensor) Setup() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.enabled = true
}

func (s *Sensor) Teardown() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.enabled = false
}

func (s *Sensor) Enabled() bool {
	if s == nil {
		return false
	}
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.enabled
}

func (s *Sensor) TerminalType() string {
	if s.Terminal == nil {
		return message.DefaultTerminal
	}
	if term := s.Terminal(); term != "" {
		return term
	}
	return message.DefaultTerminal
}

func (s *Sensor) TryMessage(ctx context.Context, topic string, body string, mctx message.Context, sender *actor.Actor) ([]any, error) {
	if s.Hooks == nil {
		return nil, nil
	}
	return s.Hooks.TryMessage(ctx, &message.Message{
		Topic:   topic,
		Body:    body,
		Context: mctx,
		Term:    s.TerminalType(),
	}, sender)
}

// RenderMessage renders with the registry renderer for the topic and current
// terminal type, or passes the body through if there is none.
func (s *Sensor) RenderMessage(topic string, body string, mctx message.Context, sender *actor.Actor) *message.Message {
	msg := &message.Message{
		Topic:   topic,
		Body:    body,
		Context: mctx,
		Term:    s.TerminalType(),
	}
	renderer, found := s.registry.Lookup(topic, msg.Term)
	if !found {
		s.log.Warnw("no renderer, passing through", "topic", topic, "term", msg.Term, "sender", sender)
		renderer = message.Passthrough
	}
	msg.Body = renderer.Render(msg)
	return msg
}

func (s *Sensor) OnMessage(ctx context.Context, msg *message.Message, extra []any) {
	if s.Hooks != nil {
		s.Hooks.OnMessage(ctx, msg, extra)
	}
}

// OpenStream returns the framing marker structured terminals expect before
// any records. Callers emit it once per connection, before CloseStream.
func (s *Sensor) OpenStream() string {
	if message.IsStructured(s.TerminalType()) {
		return OpenMarker
	}
	return ""
}

func (s *Sensor) CloseStream() string {
	if message.IsStructured(s.TerminalType()) {
		return CloseMarker
	}
	return ""
}

// Of returns the enabled sensor of a, if any.
func Of(a *actor.Actor) (*Sensor, bool) {
	s, found := actor.Get[*Sensor](a, capability.Sensor)
	if !found || !s.Enabled() {
		return nil, false
	}
	return s, true
}
