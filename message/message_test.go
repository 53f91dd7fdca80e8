package message

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestContext(t *testing.T) {
	c := Context{
		SenseKey:      SenseExtra | SenseSight,
		ExtraSenseKey: []any{"stderr"},
		AttemptKey:    float64(2),
		NoEchoKey:     true,
	}
	if got := c.Int(AttemptKey); got != 2 {
		t.Errorf("got attempt %v, want 2", got)
	}
	if !c.Bool(NoEchoKey) || c.Bool(IgnoreBangKey) {
		t.Errorf("got %+v", c)
	}
	if !c.HasChannel(Stderr) || c.HasChannel(Stdout) {
		t.Errorf("got channels %v", c.ExtraSense())
	}
	delete(c, SenseKey)
	if c.HasChannel(Stderr) {
		t.Errorf("channels require the extra sense bit")
	}
	clone := c.Clone()
	clone[AttemptKey] = 3
	if c.Int(AttemptKey) != 2 {
		t.Errorf("clone should not share storage")
	}
}

func TestRenderers(t *testing.T) {
	for _, tc := range []struct {
		name     string
		renderer Renderer
		msg      *Message
		want     string
	}{
		{
			name:     "passthrough",
			renderer: Passthrough,
			msg:      &Message{Topic: "say", Body: "hi"},
			want:     "hi",
		},
		{
			name:     "text adds newline",
			renderer: Text,
			msg:      &Message{Topic: "say", Body: "hi"},
			want:     "hi\n",
		},
		{
			name:     "text keeps newline",
			renderer: Text,
			msg:      &Message{Topic: "say", Body: "hi\n"},
			want:     "hi\n",
		},
		{
			name:     "text leaves prompts",
			renderer: Text,
			msg:      &Message{Topic: PromptTopic, Body: "> "},
			want:     "> ",
		},
		{
			name:     "json",
			renderer: JSON,
			msg:      &Message{Topic: "say", Body: "hi"},
			want:     "{\"topic\":\"say\",\"message\":\"hi\",\"context\":{}}\n",
		},
		{
			name:     "json with context",
			renderer: JSON,
			msg:      &Message{Topic: "say", Body: "hi", Context: Context{AttemptKey: 1}},
			want:     "{\"topic\":\"say\",\"message\":\"hi\",\"context\":{\"attempt\":1}}\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.renderer.Render(tc.msg); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestANSI(t *testing.T) {
	got := ANSI.Render(&Message{
		Topic: "error",
		Body:  "boom",
		Context: Context{
			SenseKey:      SenseExtra,
			ExtraSenseKey: []Channel{Stderr},
		},
	})
	if !strings.Contains(got, "\x1b[31m") || !strings.Contains(got, "boom") || !strings.HasSuffix(got, "\n") {
		t.Errorf("got %q, want red boom line", got)
	}
	if got := ANSI.Render(&Message{Topic: "say", Body: "hi"}); got != "hi\n" {
		t.Errorf("got %q, want plain text", got)
	}
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	if _, found := r.Lookup("say", TextTerminal); found {
		t.Fatalf("empty registry should find nothing")
	}
	named := func(name string) Renderer {
		return RendererFunc(func(*Message) string { return name })
	}
	r.Register(Any, TextTerminal, named("any/text"))
	r.Register("say", Any, named("say/any"))
	r.Register("say", TextTerminal, named("say/text"))
	r.SetFallback(named("fallback"))
	got := []string{}
	for _, pair := range [][2]string{
		{"say", TextTerminal},
		{"say", JSONTerminal},
		{"look", TextTerminal},
		{"look", JSONTerminal},
	} {
		renderer, found := r.Lookup(pair[0], pair[1])
		if !found {
			t.Fatalf("nothing found for %v", pair)
		}
		got = append(got, renderer.Render(nil))
	}
	if diff := cmp.Diff(got, []string{"say/text", "say/any", "any/text", "fallback"}); diff != "" {
		t.Errorf("unexpected lookups: %v", diff)
	}
}
