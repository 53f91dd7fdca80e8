// Package prompt keeps the per identity stack of pending input negotiations:
// one persistent command prompt and any number of one shot input prompts.
package prompt

import (
	"context"
	"sync"

	"github.com/zond/mudcore/logging"
	"github.com/zond/mudcore/message"
	"github.com/zond/mudcore/metrics"
	"go.uber.org/zap"
)

const (
	DefaultPrompt = Text("> ")
)

type Kind string

const (
	Command Kind = "COMMAND"
	Input   Kind = "INPUT"
)

type Prompter interface {
	Prompt(mctx message.Context) string
}

type Text string

func (t Text) Prompt(message.Context) string {
	return string(t)
}

type PromptFunc func(mctx message.Context) string

func (f PromptFunc) Prompt(mctx message.Context) string {
	return f(mctx)
}

// Callback receives one line of input. A non nil error asks for the prompt to
// be shown again, if the retry budget allows it.
type Callback func(ctx context.Context, input string, args []any) error

type Frame struct {
	Kind     Kind
	Prompt   Prompter
	Context  message.Context
	Callback Callback
	Args     []any
}

func (f *Frame) Attempt() int {
	return f.Context.Int(message.AttemptKey)
}

func (f *Frame) Render() string {
	if f == nil || f.Prompt == nil {
		return string(DefaultPrompt)
	}
	return f.Prompt.Prompt(f.Context)
}

// Terminal is what Resolve needs to know about the reader of the stack.
type Terminal interface {
	Structured() bool
	Newline() error
}

type Stack struct {
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	mutex   sync.Mutex
	command *Frame
	inputs  []*Frame
}

func New(log *zap.SugaredLogger, m *metrics.Metrics) *Stack {
	return &Stack{
		log:     logging.OrNop(log),
		metrics: m,
		command: &Frame{
			Kind:    Command,
			Prompt:  DefaultPrompt,
			Context: message.Context{message.PromptTypeKey: Command},
		},
	}
}

// Set replaces the command frame if cb is nil, and pushes an input frame
// otherwise. A nil p means DefaultPrompt.
func (s *Stack) Set(p Prompter, mctx message.Context, cb Callback, args ...any) {
	if p == nil {
		p = DefaultPrompt
	}
	if mctx == nil {
		mctx = message.Context{}
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if cb == nil {
		mctx[message.PromptTypeKey] = Command
		if s.command != nil {
			mctx[message.LastPromptKey] = s.command.Prompt
		}
		s.command = &Frame{
			Kind:    Command,
			Prompt:  p,
			Context: mctx,
		}
		return
	}
	mctx[message.PromptTypeKey] = Input
	if mctx.Int(message.AttemptKey) == 0 {
		mctx[message.AttemptKey] = 1
	}
	s.inputs = append(s.inputs, &Frame{
		Kind:     Input,
		Prompt:   p,
		Context:  mctx,
		Callback: cb,
		Args:     args,
	})
}

func (s *Stack) pop() *Frame {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.inputs) == 0 {
		return nil
	}
	top := s.inputs[len(s.inputs)-1]
	s.inputs = s.inputs[:len(s.inputs)-1]
	return top
}

func (s *Stack) push(f *Frame) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.inputs = append(s.inputs, f)
}

// Resolve feeds input to the most recent input frame. It returns false if
// there was none. term may be nil for readers that are no sensors.
func (s *Stack) Resolve(ctx context.Context, input string, term Terminal) bool {
	frame := s.pop()
	if frame == nil {
		return false
	}
	if def, ok := frame.Context.String(message.DefaultValueKey); ok && input == "" {
		input = def
	}
	if frame.Context.Bool(message.NoEchoKey) && term != nil && !term.Structured() {
		if err := term.Newline(); err != nil {
			s.log.Debugw("writing newline", "error", err)
		}
	}
	if err := frame.Callback(ctx, input, frame.Args); err != nil {
		if frame.Attempt() <= frame.Context.Int(message.RetryBudgetKey) {
			frame.Context[message.AttemptKey] = frame.Attempt() + 1
			frame.Context[message.LastInputKey] = input
			frame.Context[message.LastResultKey] = err.Error()
			s.metrics.PromptRetry()
			s.push(frame)
		}
	}
	return true
}

// Frames returns the command frame followed by the input frames, oldest
// first.
func (s *Stack) Frames() []*Frame {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	result := make([]*Frame, 0, len(s.inputs)+1)
	result = append(result, s.command)
	return append(result, s.inputs...)
}

// Current returns the frame whose prompt should be shown next.
func (s *Stack) Current() *Frame {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.inputs) > 0 {
		return s.inputs[len(s.inputs)-1]
	}
	return s.command
}

func (s *Stack) Pending() bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.inputs) > 0
}

// Dispatchable reports whether line should bypass a pending input frame and
// run as a command.
func (s *Stack) Dispatchable(line string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.inputs) == 0 {
		return true
	}
	return len(line) > 0 && line[0] == '!' && !s.inputs[len(s.inputs)-1].Context.Bool(message.IgnoreBangKey)
}

// Drop forgets all input frames without calling their callbacks.
func (s *Stack) Drop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.inputs = nil
}
