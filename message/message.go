// Package message defines the ephemeral messages delivered to sensors and the
// renderers that turn them into bytes for a terminal type.
package message

import (
	"fmt"
	"strings"
)

// Recognized context keys.
const (
	SenseKey        = "sense"
	ExtraSenseKey   = "extraSense"
	PromptTypeKey   = "promptType"
	NoEchoKey       = "noEcho"
	IgnoreBangKey   = "ignoreBang"
	RetryBudgetKey  = "retryBudget"
	AttemptKey      = "attempt"
	DefaultValueKey = "defaultValue"
	LastInputKey    = "lastInput"
	LastResultKey   = "lastResult"
	LastPromptKey   = "lastPrompt"
)

const (
	PromptTopic = "prompt"
)

type Sense int

const (
	SenseExtra Sense = 1 << iota
	SenseSight
	SenseSound
)

type Channel string

const (
	Stdout Channel = "stdout"
	Stderr Channel = "stderr"
)

const (
	TextTerminal    = "text"
	ANSITerminal    = "ansi"
	JSONTerminal    = "json"
	DefaultTerminal = TextTerminal
)

// IsStructured reports whether term expects discrete records instead of raw
// text.
func IsStructured(term string) bool {
	return term == JSONTerminal
}

type Context map[string]any

func (c Context) Clone() Context {
	result := make(Context, len(c))
	for k, v := range c {
		result[k] = v
	}
	return result
}

func (c Context) Int(key string) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case Sense:
		return int(v)
	}
	return 0
}

func (c Context) Bool(key string) bool {
	b, _ := c[key].(bool)
	return b
}

func (c Context) String(key string) (string, bool) {
	s, ok := c[key].(string)
	return s, ok
}

func (c Context) Sense() Sense {
	return Sense(c.Int(SenseKey))
}

func (c Context) ExtraSense() []Channel {
	switch v := c[ExtraSenseKey].(type) {
	case []Channel:
		return v
	case Channel:
		return []Channel{v}
	case []any:
		result := []Channel{}
		for _, e := range v {
			if s, ok := e.(string); ok {
				result = append(result, Channel(s))
			}
		}
		return result
	}
	return nil
}

func (c Context) HasChannel(ch Channel) bool {
	if c.Sense()&SenseExtra == 0 {
		return false
	}
	for _, found := range c.ExtraSense() {
		if found == ch {
			return true
		}
	}
	return false
}

type Message struct {
	Topic   string
	Body    string
	Context Context
	Term    string
}

func (m *Message) IsPrompt() bool {
	return m.Topic == PromptTopic
}

func (m *Message) String() string {
	return fmt.Sprintf("%s/%s: %q", m.Topic, m.Term, strings.TrimSpace(m.Body))
}
