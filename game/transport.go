package game

import (
	"fmt"
	"io"

	"github.com/zond/mudcore"
	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/capability"
	"github.com/zond/mudcore/session"
)

// Conn is one live network connection.
type Conn interface {
	io.Writer
	// WritePrompt replaces the prompt shown while waiting for input.
	WritePrompt(b []byte) error
	// ReadNext blocks for the next line of input, without echo if noEcho.
	ReadNext(noEcho bool) (string, error)
	Close() error
}

// Login describes a connection about to be served.
type Login struct {
	User      string
	Transport string
	Terminal  string
	Width     int
	Height    int
}

type errs []error

func (e errs) Error() string {
	return fmt.Sprintf("%+v", []error(e))
}

// Fanout writes to all its writers, dropping those that fail.
type Fanout map[io.Writer]bool

func (f Fanout) Push(w io.Writer) Fanout {
	if f == nil {
		f = Fanout{}
	}
	f[w] = true
	return f
}

func (f Fanout) Drop(w io.Writer) Fanout {
	delete(f, w)
	return f
}

func (f Fanout) Write(b []byte) (int, error) {
	errs := errs{}
	max := 0
	for w := range f {
		if written, err := w.Write(b); err != nil {
			delete(f, w)
			errs = append(errs, err)
		} else if written > max {
			max = written
		}
	}
	if len(errs) > 0 {
		return max, mudcore.WithStack(errs)
	}
	return max, nil
}

// transport delivers to the connection read by an identity and, for
// avatars, to the connections of every active session riding it.
type transport struct {
	conns       *mudcore.SyncMap[string, Conn]
	connections *session.Connections
	sessions    *session.Tracker
}

func (t *transport) Interactive(a *actor.Actor) bool {
	return t.connections.Interactive(a)
}

func (t *transport) fanout(a *actor.Actor) Fanout {
	f := Fanout{}
	if id, found := t.connections.ConnectionOf(a); found {
		if conn, found := t.conns.GetHas(id); found {
			f = f.Push(conn)
		}
	}
	if av, found := actor.Get[*session.Avatar](a, capability.Avatar); found {
		for _, sid := range av.Sessions() {
			s, found := t.sessions.Session(sid)
			if !found || !s.Active || s.Connection == "" {
				continue
			}
			if conn, found := t.conns.GetHas(s.Connection); found {
				f = f.Push(conn)
			}
		}
	}
	return f
}

func (t *transport) Write(a *actor.Actor, b []byte) error {
	_, err := t.fanout(a).Write(b)
	return err
}

func (t *transport) WritePrompt(a *actor.Actor, b []byte) error {
	id, found := t.connections.ConnectionOf(a)
	if !found {
		return nil
	}
	conn, found := t.conns.GetHas(id)
	if !found {
		return nil
	}
	return mudcore.WithStack(conn.WritePrompt(b))
}
