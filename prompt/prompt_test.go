package prompt

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zond/mudcore/message"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeTerminal struct {
	structured bool
	newlines   int
	err        error
}

func (f *fakeTerminal) Structured() bool {
	return f.structured
}

func (f *fakeTerminal) Newline() error {
	f.newlines++
	return f.err
}

func TestCommandFrame(t *testing.T) {
	s := New(nil, nil)
	if got := s.Current().Render(); got != "> " {
		t.Errorf("got %q, want default prompt", got)
	}
	s.Set(Text("$ "), nil, nil)
	frames := s.Frames()
	if len(frames) != 1 {
		t.Fatalf("got %v frames, want 1", len(frames))
	}
	if frames[0].Kind != Command || frames[0].Render() != "$ " {
		t.Errorf("got %+v", frames[0])
	}
	if frames[0].Context[message.PromptTypeKey] != Command {
		t.Errorf("got context %+v", frames[0].Context)
	}
	if frames[0].Context[message.LastPromptKey] != DefaultPrompt {
		t.Errorf("got last prompt %v, want %v", frames[0].Context[message.LastPromptKey], DefaultPrompt)
	}
	s.Set(nil, nil, nil)
	if got := s.Current().Render(); got != "> " {
		t.Errorf("nil prompt should be the default, got %q", got)
	}
	if s.Resolve(context.Background(), "look", nil) {
		t.Errorf("nothing to resolve without input frames")
	}
}

func TestPromptFunc(t *testing.T) {
	s := New(nil, nil)
	s.Set(PromptFunc(func(mctx message.Context) string {
		return fmt.Sprintf("[%v]> ", mctx["cwd"])
	}), message.Context{"cwd": "/home/bob"}, nil)
	if got := s.Current().Render(); got != "[/home/bob]> " {
		t.Errorf("got %q", got)
	}
}

func TestInputFrames(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)
	got := []string{}
	record := func(name string) Callback {
		return func(_ context.Context, input string, args []any) error {
			got = append(got, fmt.Sprintf("%s:%s:%v", name, input, args))
			return nil
		}
	}
	s.Set(Text("first? "), nil, record("first"), 1)
	s.Set(Text("second? "), nil, record("second"), 2, 3)
	frames := s.Frames()
	if len(frames) != 3 || frames[1].Render() != "first? " || frames[2].Render() != "second? " {
		t.Fatalf("got %+v", frames)
	}
	if frames[1].Attempt() != 1 || frames[1].Context[message.PromptTypeKey] != Input {
		t.Errorf("got context %+v", frames[1].Context)
	}
	if s.Current().Render() != "second? " {
		t.Errorf("most recent input frame should be current")
	}
	if !s.Resolve(ctx, "b", nil) || !s.Resolve(ctx, "a", nil) {
		t.Fatalf("wanted both frames resolved")
	}
	if s.Pending() {
		t.Errorf("no frames should be pending")
	}
	if diff := cmp.Diff(got, []string{"second:b:[2 3]", "first:a:[1]"}); diff != "" {
		t.Errorf("unexpected callbacks: %v", diff)
	}
}

func TestRetryBudget(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)
	calls := 0
	mctx := message.Context{message.RetryBudgetKey: 2}
	s.Set(Text("sure? "), mctx, func(context.Context, string, []any) error {
		calls++
		return fmt.Errorf("answer %d was wrong", calls)
	})
	reprompts := 0
	for s.Pending() {
		s.Resolve(ctx, "maybe", nil)
		if s.Pending() {
			reprompts++
		}
		if calls > 10 {
			t.Fatalf("retrying forever")
		}
	}
	if reprompts != 2 {
		t.Errorf("got %v re-prompts, want 2", reprompts)
	}
	if calls != 3 {
		t.Errorf("got %v calls, want 3", calls)
	}
	if mctx.Int(message.AttemptKey) != 3 {
		t.Errorf("got attempt %v, want 3", mctx.Int(message.AttemptKey))
	}
	if mctx[message.LastInputKey] != "maybe" || mctx[message.LastResultKey] != "answer 2 was wrong" {
		t.Errorf("got context %+v", mctx)
	}
}

func TestNoRetryWithoutBudget(t *testing.T) {
	s := New(nil, nil)
	s.Set(Text("? "), nil, func(context.Context, string, []any) error {
		return fmt.Errorf("again")
	})
	s.Resolve(context.Background(), "x", nil)
	if s.Pending() {
		t.Errorf("zero budget should never retry")
	}
}

func TestDefaultValueAndEcho(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name       string
		mctx       message.Context
		input      string
		structured bool
		wantInput  string
		wantLines  int
	}{
		{
			name:      "default substituted",
			mctx:      message.Context{message.DefaultValueKey: "yes"},
			input:     "",
			wantInput: "yes",
		},
		{
			name:      "default ignored with input",
			mctx:      message.Context{message.DefaultValueKey: "yes"},
			input:     "no",
			wantInput: "no",
		},
		{
			name:      "no echo emits newline",
			mctx:      message.Context{message.NoEchoKey: true},
			input:     "secret",
			wantInput: "secret",
			wantLines: 1,
		},
		{
			name:       "no echo on structured terminal",
			mctx:       message.Context{message.NoEchoKey: true},
			input:      "secret",
			structured: true,
			wantInput:  "secret",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := New(nil, nil)
			var gotInput string
			s.Set(Text("? "), tc.mctx, func(_ context.Context, input string, _ []any) error {
				gotInput = input
				return nil
			})
			term := &fakeTerminal{structured: tc.structured}
			s.Resolve(ctx, tc.input, term)
			if gotInput != tc.wantInput {
				t.Errorf("got input %q, want %q", gotInput, tc.wantInput)
			}
			if term.newlines != tc.wantLines {
				t.Errorf("got %v newlines, want %v", term.newlines, tc.wantLines)
			}
		})
	}
}

func TestNewlineFailure(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s := New(zap.New(core).Sugar(), nil)
	var gotInput string
	s.Set(Text("Password: "), message.Context{message.NoEchoKey: true}, func(_ context.Context, input string, _ []any) error {
		gotInput = input
		return nil
	})
	term := &fakeTerminal{err: io.ErrClosedPipe}
	if !s.Resolve(context.Background(), "secret", term) {
		t.Fatalf("input frame not resolved")
	}
	if gotInput != "secret" {
		t.Errorf("got input %q, want %q", gotInput, "secret")
	}
	entries := logs.FilterMessage("writing newline").All()
	if len(entries) != 1 || entries[0].ContextMap()["error"] != io.ErrClosedPipe.Error() {
		t.Errorf("got logs %+v", logs.All())
	}
}

func TestDispatchable(t *testing.T) {
	s := New(nil, nil)
	if !s.Dispatchable("look") {
		t.Errorf("lines are commands without input frames")
	}
	s.Set(Text("? "), nil, func(context.Context, string, []any) error { return nil })
	if s.Dispatchable("look") || !s.Dispatchable("!look") {
		t.Errorf("only bang lines bypass input frames")
	}
	s.Set(Text("? "), message.Context{message.IgnoreBangKey: true}, func(context.Context, string, []any) error { return nil })
	if s.Dispatchable("!look") {
		t.Errorf("ignoreBang frames take bang lines as input")
	}
	s.Drop()
	if s.Pending() || len(s.Frames()) != 1 {
		t.Errorf("drop should leave only the command frame")
	}
}

func TestSelect(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)
	picked := ""
	Select(s, "Really quit?", []string{"yes", "no"}, 1, func(_ context.Context, option string) error {
		picked = option
		return nil
	})
	if got := s.Current().Render(); got != "Really quit? [yes/no] " {
		t.Errorf("got %q", got)
	}
	s.Resolve(ctx, "perhaps", nil)
	if !s.Pending() {
		t.Fatalf("bad answer should retry")
	}
	if got := s.Current().Context[message.LastResultKey]; got != "please answer yes or no" {
		t.Errorf("got %q", got)
	}
	if got := s.Current().Render(); got != "please answer yes or no\nReally quit? [yes/no] " {
		t.Errorf("got %q", got)
	}
	s.Resolve(ctx, "YES", nil)
	if s.Pending() || picked != "yes" {
		t.Errorf("got %q, pending %v", picked, s.Pending())
	}
}
