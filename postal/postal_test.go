package postal

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/capability"
	"github.com/zond/mudcore/message"
	"github.com/zond/mudcore/metrics"
	"github.com/zond/mudcore/sensor"
)

type fakeTransport struct {
	interactive map[*actor.Actor]bool
	written     map[*actor.Actor][]string
	prompts     map[*actor.Actor][]string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		interactive: map[*actor.Actor]bool{},
		written:     map[*actor.Actor][]string{},
		prompts:     map[*actor.Actor][]string{},
	}
}

func (f *fakeTransport) Interactive(a *actor.Actor) bool {
	return f.interactive[a]
}

func (f *fakeTransport) Write(a *actor.Actor, b []byte) error {
	f.written[a] = append(f.written[a], string(b))
	return nil
}

func (f *fakeTransport) WritePrompt(a *actor.Actor, b []byte) error {
	f.prompts[a] = append(f.prompts[a], string(b))
	return nil
}

type vetoHooks struct {
	veto  bool
	extra []any
}

func (v *vetoHooks) TryMessage(context.Context, *message.Message, *actor.Actor) ([]any, error) {
	if v.veto {
		return nil, fmt.Errorf("vetoed")
	}
	return []any{"extra"}, nil
}

func (v *vetoHooks) OnMessage(_ context.Context, _ *message.Message, extra []any) {
	v.extra = extra
}

func withService(t *testing.T, f func(s *Service, tr *fakeTransport, target *actor.Actor, sens *sensor.Sensor)) {
	t.Helper()
	tr := newFakeTransport()
	s := New(tr, nil, metrics.New())
	target := actor.New("target")
	sens := sensor.New(message.DefaultRegistry(), nil)
	target.Enable(capability.Sensor, sens)
	tr.interactive[target] = true
	f(s, tr, target, sens)
}

func TestPublish(t *testing.T) {
	withService(t, func(s *Service, tr *fakeTransport, target *actor.Actor, sens *sensor.Sensor) {
		hooks := &vetoHooks{}
		sens.Hooks = hooks
		sender := actor.New("sender")
		ctx := actor.WithCaller(context.Background(), sender)
		msg, err := s.Publish(ctx, target, "say", "hello", nil, sender)
		if err != nil {
			t.Fatal(err)
		}
		if msg == nil || msg.Body != "hello\n" || msg.Topic != "say" {
			t.Errorf("got %+v", msg)
		}
		if diff := cmp.Diff(tr.written[target], []string{"hello\n"}); diff != "" {
			t.Errorf("unexpected output: %v", diff)
		}
		if diff := cmp.Diff(hooks.extra, []any{"extra"}); diff != "" {
			t.Errorf("extra arguments not passed on: %v", diff)
		}
	})
}

func TestPublishSpoofed(t *testing.T) {
	withService(t, func(s *Service, tr *fakeTransport, target *actor.Actor, sens *sensor.Sensor) {
		sender := actor.New("sender")
		imposter := actor.New("imposter")
		for _, ctx := range []context.Context{
			context.Background(),
			actor.WithCaller(context.Background(), imposter),
		} {
			msg, err := s.Publish(ctx, target, "say", "hello", nil, sender)
			if !errors.Is(err, ErrSpoofed) {
				t.Errorf("got %v, want ErrSpoofed", err)
			}
			if msg != nil {
				t.Errorf("got %+v, want nil", msg)
			}
		}
		if len(tr.written[target]) != 0 {
			t.Errorf("spoofed messages must not be written, got %v", tr.written[target])
		}
	})
}

func TestPublishNoSensor(t *testing.T) {
	withService(t, func(s *Service, tr *fakeTransport, _ *actor.Actor, _ *sensor.Sensor) {
		rock := actor.New("rock")
		tr.interactive[rock] = true
		msg, err := s.Publish(context.Background(), rock, "say", "hello", nil, nil)
		if msg != nil || err != nil {
			t.Errorf("got %v, %v, want nil, nil", msg, err)
		}
		if len(tr.written[rock]) != 0 {
			t.Errorf("non sensors must not be written to")
		}
	})
}

func TestPublishVetoed(t *testing.T) {
	withService(t, func(s *Service, tr *fakeTransport, target *actor.Actor, sens *sensor.Sensor) {
		hooks := &vetoHooks{veto: true}
		sens.Hooks = hooks
		msg, err := s.Publish(context.Background(), target, "say", "hello", nil, nil)
		if msg != nil || err != nil {
			t.Errorf("got %v, %v, want nil, nil", msg, err)
		}
		if len(tr.written[target]) != 0 || hooks.extra != nil {
			t.Errorf("vetoed message was delivered")
		}
	})
}

func TestStdoutStderr(t *testing.T) {
	withService(t, func(s *Service, tr *fakeTransport, target *actor.Actor, _ *sensor.Sensor) {
		ctx := context.Background()
		for _, body := range []string{"", "   ", "\n\t\n"} {
			if msg, err := s.Stdout(ctx, target, "output", body, nil, nil); msg != nil || err != nil {
				t.Errorf("got %v, %v for %q", msg, err, body)
			}
			if msg, err := s.Stderr(ctx, target, "output", body, nil, nil); msg != nil || err != nil {
				t.Errorf("got %v, %v for %q", msg, err, body)
			}
		}
		if len(tr.written[target]) != 0 {
			t.Fatalf("blank output was written: %q", tr.written[target])
		}
		mctx := message.Context{message.SenseKey: message.SenseSight}
		msg, err := s.Stderr(ctx, target, "output", "boom", mctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if got := msg.Context.Sense(); got != message.SenseSight|message.SenseExtra {
			t.Errorf("got sense %v", got)
		}
		if !msg.Context.HasChannel(message.Stderr) || msg.Context.HasChannel(message.Stdout) {
			t.Errorf("got channels %v", msg.Context.ExtraSense())
		}
		if _, found := mctx[message.ExtraSenseKey]; found {
			t.Errorf("caller context should not be modified")
		}
	})
}

func TestPromptMessage(t *testing.T) {
	withService(t, func(s *Service, tr *fakeTransport, target *actor.Actor, sens *sensor.Sensor) {
		ctx := context.Background()
		hooks := &vetoHooks{veto: true}
		sens.Hooks = hooks
		msg, err := s.PromptMessage(ctx, target, "> ", nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		if msg.Topic != message.PromptTopic {
			t.Errorf("got topic %q", msg.Topic)
		}
		if diff := cmp.Diff(tr.prompts[target], []string{"> "}); diff != "" {
			t.Errorf("unexpected prompts: %v", diff)
		}

		shell := actor.New("shell")
		tr.interactive[shell] = true
		if _, err := s.PromptMessage(ctx, shell, "$ ", nil, nil); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(tr.prompts[shell], []string{"$ "}); diff != "" {
			t.Errorf("non sensors can get prompts: %v", diff)
		}

		ghost := actor.New("ghost")
		if msg, err := s.PromptMessage(ctx, ghost, "> ", nil, nil); msg != nil || err != nil {
			t.Errorf("got %v, %v for disconnected target", msg, err)
		}
	})
}

func TestNewlineAndStreams(t *testing.T) {
	withService(t, func(s *Service, tr *fakeTransport, target *actor.Actor, sens *sensor.Sensor) {
		if err := s.Newline(target); err != nil {
			t.Fatal(err)
		}
		if err := s.OpenStream(target); err != nil {
			t.Fatal(err)
		}
		sens.Terminal = func() string { return message.JSONTerminal }
		if err := s.OpenStream(target); err != nil {
			t.Fatal(err)
		}
		if err := s.CloseStream(target); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(tr.written[target], []string{"\n", sensor.OpenMarker, sensor.CloseMarker}); diff != "" {
			t.Errorf("unexpected output: %v", diff)
		}
	})
}
