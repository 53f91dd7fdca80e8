package command

import (
	"context"
	"strings"

	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/capability"
	"github.com/zond/mudcore/logging"
	"github.com/zond/mudcore/metrics"
	"go.uber.org/zap"
)

type Dispatcher struct {
	loader  *Loader
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

func NewDispatcher(loader *Loader, log *zap.SugaredLogger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		loader:  loader,
		log:     logging.OrNop(log),
		metrics: m,
	}
}

func (d *Dispatcher) Loader() *Loader {
	return d.loader
}

type verbMatch struct {
	ok   bool
	rest string
}

// matchVerb checks verb against line. fragments caches line prefixes by
// length for the duration of one dispatch; equal length verbs are always
// compared to the same prefix of the same line, so sharing is safe.
func matchVerb(fragments map[int]string, line string, verb string) verbMatch {
	n := len(verb)
	if n > len(line) {
		return verbMatch{}
	}
	fragment, found := fragments[n]
	if !found {
		fragment = line[:n]
		fragments[n] = fragment
	}
	if fragment != verb {
		return verbMatch{}
	}
	if n == len(line) {
		return verbMatch{ok: true}
	}
	if line[n] != ' ' {
		return verbMatch{}
	}
	return verbMatch{ok: true, rest: strings.TrimLeft(line[n:], " ")}
}

// Dispatch runs the first controller, in declaration order, whose entry has
// a verb matching line and which accepts the command.
func (d *Dispatcher) Dispatch(ctx context.Context, who *actor.Actor, line string) bool {
	giver, found := actor.Get[*Giver](who, capability.CommandGiver)
	if !found || line == "" {
		d.metrics.Command("unmatched")
		return false
	}
	ctx = actor.WithCaller(ctx, who)
	fragments := map[int]string{}
	matched := map[string]verbMatch{}
	for _, spec := range giver.Table() {
		for idx := range spec.Commands {
			entry := &spec.Commands[idx]
			for _, verb := range entry.Verbs {
				m, seen := matched[verb]
				if !seen {
					m = matchVerb(fragments, line, verb)
					matched[verb] = m
				}
				if !m.ok {
					continue
				}
				controller, err := d.loader.Load(entry.Path)
				if err != nil {
					d.log.Infow("loading controller", "controller", entry.Path, "spec", spec.Path, "error", err)
					continue
				}
				if controller.DoCommand(ctx, who, entry, verb, m.rest) {
					d.metrics.Command("handled")
					return true
				}
			}
		}
	}
	d.metrics.Command("unmatched")
	return false
}
