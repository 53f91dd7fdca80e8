package message

import (
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
)

// Any matches all topics or all terminals in a Registry.
const Any = "*"

type Renderer interface {
	Render(m *Message) string
}

type RendererFunc func(m *Message) string

func (f RendererFunc) Render(m *Message) string {
	return f(m)
}

var (
	Passthrough = RendererFunc(func(m *Message) string {
		return m.Body
	})
	Text = RendererFunc(func(m *Message) string {
		if m.IsPrompt() || strings.HasSuffix(m.Body, "\n") {
			return m.Body
		}
		return m.Body + "\n"
	})
	JSON = RendererFunc(renderJSON)
	ANSI = RendererFunc(renderANSI)
)

type jsonRecord struct {
	Topic   string  `json:"topic"`
	Message string  `json:"message"`
	Context Context `json:"context"`
}

func renderJSON(m *Message) string {
	ctx := m.Context
	if ctx == nil {
		ctx = Context{}
	}
	b, err := json.Marshal(jsonRecord{
		Topic:   m.Topic,
		Message: m.Body,
		Context: ctx,
	})
	if err != nil {
		b, _ = json.Marshal(jsonRecord{
			Topic:   m.Topic,
			Message: m.Body,
			Context: Context{},
		})
	}
	return string(b) + "\n"
}

func colorize(body string, attrs ...color.Attribute) string {
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(body)
}

func renderANSI(m *Message) string {
	switch {
	case m.IsPrompt():
		return colorize(m.Body, color.Bold)
	case m.Context.HasChannel(Stderr):
		return colorize(strings.TrimSuffix(m.Body, "\n"), color.FgRed) + "\n"
	}
	return Text(m)
}

type registryKey struct {
	topic string
	term  string
}

// Registry maps (topic, terminal) pairs to renderers.
type Registry struct {
	mutex     sync.RWMutex
	renderers map[registryKey]Renderer
	fallback  Renderer
}

func NewRegistry() *Registry {
	return &Registry{
		renderers: map[registryKey]Renderer{},
	}
}

// DefaultRegistry has renderers for the builtin terminal types.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(Any, TextTerminal, Text)
	r.Register(Any, ANSITerminal, ANSI)
	r.Register(Any, JSONTerminal, JSON)
	return r
}

func (r *Registry) Register(topic, term string, renderer Renderer) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.renderers[registryKey{topic: topic, term: term}] = renderer
}

func (r *Registry) SetFallback(renderer Renderer) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.fallback = renderer
}

// Lookup tries the exact pair, then the topic for any terminal, then any
// topic for the terminal, then the fallback.
func (r *Registry) Lookup(topic, term string) (Renderer, bool) {
	if r == nil {
		return nil, false
	}
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	for _, key := range []registryKey{
		{topic: topic, term: term},
		{topic: topic, term: Any},
		{topic: Any, term: term},
	} {
		if renderer, found := r.renderers[key]; found {
			return renderer, true
		}
	}
	if r.fallback != nil {
		return r.fallback, true
	}
	return nil, false
}
