// Package session tracks play sessions and live connections, and links them
// to avatar identities.
package session

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zond/mudcore"
	"github.com/zond/mudcore/actor"
)

var (
	ErrNoSuchSession = fmt.Errorf("no such session")
)

type Session struct {
	ID         string
	User       string
	Parent     string
	Connection string
	Avatar     *actor.Actor
	Active     bool
	Started    time.Time
	LastRoom   string
}

// Tracker is an in memory registry of sessions.
type Tracker struct {
	mutex    sync.RWMutex
	sessions map[string]*Session
}

func NewTracker() *Tracker {
	return &Tracker{
		sessions: map[string]*Session{},
	}
}

// NewSession starts an inactive session for user, below parent if that is
// not empty.
func (t *Tracker) NewSession(user string, parent string) string {
	s := &Session{
		ID:      mudcore.NextID(),
		User:    user,
		Parent:  parent,
		Started: time.Now(),
	}
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.sessions[s.ID] = s
	return s.ID
}

func (t *Tracker) Session(id string) (Session, bool) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	s, found := t.sessions[id]
	if !found {
		return Session{}, false
	}
	return *s, true
}

func (t *Tracker) update(id string, f func(s *Session) error) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	s, found := t.sessions[id]
	if !found {
		return mudcore.WithStack(fmt.Errorf("%w: %q", ErrNoSuchSession, id))
	}
	return f(s)
}

// Remove forgets a session that never got used.
func (t *Tracker) Remove(id string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.sessions, id)
}

func (t *Tracker) User(id string) string {
	s, _ := t.Session(id)
	return s.User
}

func (t *Tracker) Avatar(id string) *actor.Actor {
	s, _ := t.Session(id)
	return s.Avatar
}

func (t *Tracker) SetAvatar(id string, a *actor.Actor) error {
	return t.update(id, func(s *Session) error {
		s.Avatar = a
		return nil
	})
}

// Connect records connection as reading the session and activates it. The
// returned func restores the previous state.
func (t *Tracker) Connect(id string, connection string) (func(), error) {
	var undo func()
	err := t.update(id, func(s *Session) error {
		oldConnection, oldActive := s.Connection, s.Active
		s.Connection = connection
		s.Active = true
		undo = func() {
			t.update(id, func(s *Session) error {
				s.Connection, s.Active = oldConnection, oldActive
				return nil
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return undo, nil
}

func (t *Tracker) Resume(id string) error {
	return t.update(id, func(s *Session) error {
		s.Active = true
		return nil
	})
}

// Suspend deactivates a session and detaches its connection.
func (t *Tracker) Suspend(id string) error {
	return t.update(id, func(s *Session) error {
		s.Active = false
		s.Connection = ""
		return nil
	})
}

func (t *Tracker) IsActive(id string) bool {
	s, _ := t.Session(id)
	return s.Active
}

// IsSubsession reports whether ancestor is above id in the session tree.
func (t *Tracker) IsSubsession(ancestor string, id string) bool {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	seen := map[string]bool{}
	for s, found := t.sessions[id]; found && !seen[s.ID]; s, found = t.sessions[s.Parent] {
		seen[s.ID] = true
		if s.Parent == ancestor && ancestor != "" {
			return true
		}
	}
	return false
}

// Subsessions returns the sessions directly below id.
func (t *Tracker) Subsessions(id string) []string {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	result := []string{}
	for _, s := range t.sessions {
		if s.Parent == id {
			result = append(result, s.ID)
		}
	}
	sort.Strings(result)
	return result
}

func (t *Tracker) LastRoom(id string) string {
	s, _ := t.Session(id)
	return s.LastRoom
}

func (t *Tracker) SetLastRoom(id string, room string) error {
	return t.update(id, func(s *Session) error {
		s.LastRoom = room
		return nil
	})
}

// Active returns the active sessions in start order.
func (t *Tracker) Active() []Session {
	t.mutex.RLock()
	defer t.mutex.RUnlock()
	result := []Session{}
	for _, s := range t.sessions {
		if s.Active {
			result = append(result, *s)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result
}
