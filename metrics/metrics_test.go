package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func counterValue(t *testing.T, m *Metrics, name string, label string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	if err != nil {
		t.Fatal(err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetValue() == label {
					if metric.GetCounter() != nil {
						return metric.GetCounter().GetValue()
					}
					return metric.GetGauge().GetValue()
				}
			}
			if label == "" {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestCounters(t *testing.T) {
	m := New()
	m.Command("handled")
	m.Command("handled")
	m.Command("unmatched")
	m.Message("spoofed")
	m.PromptRetry()
	m.Connected("ssh")
	m.Connected("ssh")
	m.Disconnected("ssh")
	for _, tc := range []struct {
		name  string
		label string
		want  float64
	}{
		{"mudcore_commands_total", "handled", 2},
		{"mudcore_commands_total", "unmatched", 1},
		{"mudcore_messages_total", "spoofed", 1},
		{"mudcore_prompt_retries_total", "", 1},
		{"mudcore_connections", "ssh", 1},
	} {
		if got := counterValue(t, m, tc.name, tc.label); got != tc.want {
			t.Errorf("%s{%s} = %v, want %v", tc.name, tc.label, got, tc.want)
		}
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.Command("handled")
	m.Message("delivered")
	m.PromptRetry()
	m.Binding("ok")
	m.Descend("ok")
	m.Connected("ssh")
	m.Disconnected("ssh")
}

func TestHandler(t *testing.T) {
	m := New()
	m.Binding("ok")
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `mudcore_bindings_total{result="ok"} 1`) {
		t.Errorf("got %s, want bindings counter", body)
	}
}
