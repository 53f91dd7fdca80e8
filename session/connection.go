package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zond/mudcore"
	"github.com/zond/mudcore/actor"
)

var (
	ErrNoSuchConnection = fmt.Errorf("no such connection")
)

type ConnectionInfo struct {
	ID           string
	Transport    string
	Terminal     string
	Width        int
	Height       int
	Connected    time.Time
	Disconnected time.Time
	Interactive  *actor.Actor
	ExecTime     time.Time
	Session      string
}

// Connections is an in memory registry of live connections and the
// identities reading them.
type Connections struct {
	mutex   sync.RWMutex
	byID    map[string]*ConnectionInfo
	byActor map[*actor.Actor]string
}

func NewConnections() *Connections {
	return &Connections{
		byID:    map[string]*ConnectionInfo{},
		byActor: map[*actor.Actor]string{},
	}
}

// Add registers info, assigning an id if it has none, and returns the id.
func (c *Connections) Add(info ConnectionInfo) string {
	if info.ID == "" {
		info.ID = uuid.NewString()
	}
	if info.Connected.IsZero() {
		info.Connected = time.Now()
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.byID[info.ID] = &info
	if info.Interactive != nil {
		c.byActor[info.Interactive] = info.ID
	}
	return info.ID
}

func (c *Connections) Info(id string) (ConnectionInfo, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	info, found := c.byID[id]
	if !found {
		return ConnectionInfo{}, false
	}
	return *info, true
}

func (c *Connections) All() []ConnectionInfo {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	result := make([]ConnectionInfo, 0, len(c.byID))
	for _, info := range c.byID {
		result = append(result, *info)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Connected.Before(result[j].Connected)
	})
	return result
}

func (c *Connections) ConnectionOf(a *actor.Actor) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	id, found := c.byActor[a]
	return id, found
}

func (c *Connections) Interactive(a *actor.Actor) bool {
	_, found := c.ConnectionOf(a)
	return found
}

func (c *Connections) Terminal(a *actor.Actor) string {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if id, found := c.byActor[a]; found {
		return c.byID[id].Terminal
	}
	return ""
}

// Exec makes a the interactive identity of the connection id. If a was
// reading another connection, that connection loses it and its id is
// returned as displaced. The returned func restores the previous bindings.
func (c *Connections) Exec(id string, a *actor.Actor) (undo func(), displaced string, err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	info, found := c.byID[id]
	if !found {
		return nil, "", mudcore.WithStack(fmt.Errorf("%w: %q", ErrNoSuchConnection, id))
	}
	oldInteractive, oldExecTime := info.Interactive, info.ExecTime
	previous, hadPrevious := c.byActor[a]
	var previousInfo *ConnectionInfo
	if hadPrevious && previous != id {
		previousInfo = c.byID[previous]
		displaced = previous
	}

	if oldInteractive != nil {
		delete(c.byActor, oldInteractive)
	}
	if previousInfo != nil {
		previousInfo.Interactive = nil
	}
	info.Interactive = a
	info.ExecTime = time.Now()
	c.byActor[a] = id

	undo = func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		delete(c.byActor, a)
		info.Interactive, info.ExecTime = oldInteractive, oldExecTime
		if oldInteractive != nil {
			c.byActor[oldInteractive] = id
		}
		if previousInfo != nil {
			previousInfo.Interactive = a
			c.byActor[a] = previous
		}
	}
	return undo, displaced, nil
}

// SetSession records sessionID as the active session of the connection and
// returns a func restoring the previous one.
func (c *Connections) SetSession(id string, sessionID string) (func(), error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	info, found := c.byID[id]
	if !found {
		return nil, mudcore.WithStack(fmt.Errorf("%w: %q", ErrNoSuchConnection, id))
	}
	old := info.Session
	info.Session = sessionID
	return func() {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		info.Session = old
	}, nil
}

func (c *Connections) Session(id string) string {
	info, _ := c.Info(id)
	return info.Session
}

func (c *Connections) SetTerminal(id string, terminal string, width int, height int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	info, found := c.byID[id]
	if !found {
		return mudcore.WithStack(fmt.Errorf("%w: %q", ErrNoSuchConnection, id))
	}
	info.Terminal, info.Width, info.Height = terminal, width, height
	return nil
}

// Disconnect forgets the connection and returns its final state.
func (c *Connections) Disconnect(id string) (ConnectionInfo, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	info, found := c.byID[id]
	if !found {
		return ConnectionInfo{}, false
	}
	info.Disconnected = time.Now()
	if info.Interactive != nil && c.byActor[info.Interactive] == id {
		delete(c.byActor, info.Interactive)
	}
	delete(c.byID, id)
	return *info, true
}
