package command

import (
	"context"
	"io/fs"
	"sync"

	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/logging"
	"go.uber.org/zap"
)

// Access decides which callers a Giver lets act on its behalf.
type Access int

const (
	GrantAll Access = iota
	GrantUnforced
	GrantNone
)

type importSlot struct {
	name string
	path string
}

// Giver is the commandGiver capability: the imported spec files of an
// identity and the table loaded from them.
type Giver struct {
	Access Access

	owner *actor.Actor
	log   *zap.SugaredLogger

	mutex   sync.RWMutex
	imports []importSlot
	table   Table
}

func NewGiver(owner *actor.Actor, log *zap.SugaredLogger) *Giver {
	return &Giver{
		Access: GrantUnforced,
		owner:  owner,
		log:    logging.OrNop(log),
	}
}

// Import sets the spec file of a named slot. New slots go after existing
// ones, and replacing a slot keeps its position.
func (g *Giver) Import(slot string, specPath string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()
	for idx := range g.imports {
		if g.imports[idx].name == slot {
			g.imports[idx].path = specPath
			return
		}
	}
	g.imports = append(g.imports, importSlot{name: slot, path: specPath})
}

func (g *Giver) Imports() []string {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	result := make([]string, len(g.imports))
	for idx, slot := range g.imports {
		result[idx] = slot.path
	}
	return result
}

// Load replaces the table with the imported spec files read from fsys.
// Files that fail to load are logged and skipped.
func (g *Giver) Load(fsys fs.FS) Table {
	table := Table{}
	for _, specPath := range g.Imports() {
		spec, err := LoadSpec(fsys, specPath)
		if err != nil {
			g.log.Warnw("loading command spec", "owner", g.owner, "spec", specPath, "error", err)
			continue
		}
		table = append(table, spec)
	}
	g.mutex.Lock()
	defer g.mutex.Unlock()
	g.table = table
	g.log.Debugw("commands loaded", "owner", g.owner, "verbs", table.Verbs())
	return table
}

func (g *Giver) Table() Table {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return g.table
}

// CheckAccess reports whether code running in ctx may act with the
// authority of the giver. Read access is granted on the same terms.
func (g *Giver) CheckAccess(ctx context.Context, read bool) bool {
	caller := actor.Caller(ctx)
	if caller == nil || caller != g.owner {
		return false
	}
	switch g.Access {
	case GrantAll:
		return true
	case GrantUnforced:
		return caller == actor.Interactive(ctx)
	}
	return false
}
