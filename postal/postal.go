// Package postal delivers topic tagged messages to identities holding the
// sensor capability.
package postal

import (
	"context"
	"errors"
	"strings"

	"github.com/zond/mudcore"
	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/logging"
	"github.com/zond/mudcore/message"
	"github.com/zond/mudcore/metrics"
	"github.com/zond/mudcore/sensor"
	"go.uber.org/zap"
)

var (
	ErrSpoofed = errors.New("sender is not the calling identity")
)

// Transport moves bytes to whatever connections read an identity.
type Transport interface {
	Interactive(a *actor.Actor) bool
	Write(a *actor.Actor, b []byte) error
	WritePrompt(a *actor.Actor, b []byte) error
}

type Service struct {
	transport Transport
	log       *zap.SugaredLogger
	metrics   *metrics.Metrics
}

func New(transport Transport, log *zap.SugaredLogger, m *metrics.Metrics) *Service {
	return &Service{
		transport: transport,
		log:       logging.OrNop(log),
		metrics:   m,
	}
}

// Publish renders and writes body to target. It returns nil without error if
// target is no sensor or vetoes the message, and ErrSpoofed if sender is
// given but is not the identity executing ctx.
func (s *Service) Publish(ctx context.Context, target *actor.Actor, topic string, body string, mctx message.Context, sender *actor.Actor) (*message.Message, error) {
	if mctx == nil {
		mctx = message.Context{}
	}
	sens, found := sensor.Of(target)
	if !found {
		s.metrics.Message("skipped")
		return nil, nil
	}
	if sender != nil && sender != actor.Caller(ctx) {
		s.metrics.Message("spoofed")
		return nil, mudcore.WithStack(ErrSpoofed)
	}
	extra, err := sens.TryMessage(ctx, topic, body, mctx, sender)
	if err != nil {
		s.log.Infow("delivery vetoed", "target", target, "topic", topic, "error", err)
		s.metrics.Message("vetoed")
		return nil, nil
	}
	msg := sens.RenderMessage(topic, body, mctx, sender)
	if err := s.transport.Write(target, []byte(msg.Body)); err != nil {
		s.log.Debugw("write failed", "target", target, "error", err)
	}
	sens.OnMessage(ctx, msg, extra)
	s.metrics.Message("delivered")
	return msg, nil
}

// PromptMessage writes body as the prompt of an interactive target. The
// target needs no sensor, and there is no veto.
func (s *Service) PromptMessage(ctx context.Context, target *actor.Actor, body string, mctx message.Context, sender *actor.Actor) (*message.Message, error) {
	if mctx == nil {
		mctx = message.Context{}
	}
	if !s.transport.Interactive(target) {
		return nil, nil
	}
	if sender != nil && sender != actor.Caller(ctx) {
		s.metrics.Message("spoofed")
		return nil, mudcore.WithStack(ErrSpoofed)
	}
	var msg *message.Message
	if sens, found := sensor.Of(target); found {
		msg = sens.RenderMessage(message.PromptTopic, body, mctx, sender)
	} else {
		msg = &message.Message{
			Topic:   message.PromptTopic,
			Body:    body,
			Context: mctx,
			Term:    message.DefaultTerminal,
		}
	}
	if err := s.transport.WritePrompt(target, []byte(msg.Body)); err != nil {
		return nil, mudcore.WithStack(err)
	}
	return msg, nil
}

// Newline writes a bare line terminator, bypassing all hooks.
func (s *Service) Newline(target *actor.Actor) error {
	if !s.transport.Interactive(target) {
		return nil
	}
	return mudcore.WithStack(s.transport.Write(target, []byte("\n")))
}

func (s *Service) extra(ctx context.Context, target *actor.Actor, ch message.Channel, topic string, body string, mctx message.Context, sender *actor.Actor) (*message.Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}
	tagged := mctx.Clone()
	tagged[message.SenseKey] = message.Sense(tagged.Int(message.SenseKey)) | message.SenseExtra
	tagged[message.ExtraSenseKey] = []message.Channel{ch}
	return s.Publish(ctx, target, topic, body, tagged, sender)
}

// Stdout publishes body on the stdout channel, dropping it if it is blank.
func (s *Service) Stdout(ctx context.Context, target *actor.Actor, topic string, body string, mctx message.Context, sender *actor.Actor) (*message.Message, error) {
	return s.extra(ctx, target, message.Stdout, topic, body, mctx, sender)
}

// Stderr publishes body on the stderr channel, dropping it if it is blank.
func (s *Service) Stderr(ctx context.Context, target *actor.Actor, topic string, body string, mctx message.Context, sender *actor.Actor) (*message.Message, error) {
	return s.extra(ctx, target, message.Stderr, topic, body, mctx, sender)
}

func (s *Service) OpenStream(target *actor.Actor) error {
	sens, found := sensor.Of(target)
	if !found {
		return nil
	}
	if marker := sens.OpenStream(); marker != "" {
		return mudcore.WithStack(s.transport.Write(target, []byte(marker)))
	}
	return nil
}

func (s *Service) CloseStream(target *actor.Actor) error {
	sens, found := sensor.Of(target)
	if !found {
		return nil
	}
	if marker := sens.CloseStream(); marker != "" {
		return mudcore.WithStack(s.transport.Write(target, []byte(marker)))
	}
	return nil
}
