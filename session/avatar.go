package session

import (
	"context"
	"fmt"
	"path"

	"github.com/zond/mudcore"
	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/capability"
	"github.com/zond/mudcore/shell"
)

const (
	HomeDir = "/home"
)

// DescendAbort stops a descend, with a message fit for the user.
type DescendAbort struct {
	Message string
}

func (d *DescendAbort) Error() string {
	return d.Message
}

func Abortf(format string, args ...any) error {
	return mudcore.WithStack(&DescendAbort{Message: fmt.Sprintf(format, args...)})
}

// Usernames resolves user ids.
type Usernames interface {
	Username(ctx context.Context, userID string) (string, error)
}

// Hooks customizes descending into an avatar. Implementations of OnDescend
// are expected to call (*Avatar).OnDescend before doing their own work.
type Hooks interface {
	TryDescend(ctx context.Context, sessionID string) ([]any, error)
	OnDescend(ctx context.Context, sessionID string, args ...any) error
}

// Avatar is the avatar capability: the sessions riding an identity. At most
// one of them is master; the rest are slaves, oldest first. Avatars are only
// touched from the driver goroutine.
type Avatar struct {
	Hooks Hooks

	owner     *actor.Actor
	sessions  *Tracker
	usernames Usernames

	master string
	slaves []string
}

func NewAvatar(owner *actor.Actor, sessions *Tracker, usernames Usernames) *Avatar {
	return &Avatar{
		owner:     owner,
		sessions:  sessions,
		usernames: usernames,
	}
}

func (a *Avatar) Owner() *actor.Actor {
	return a.owner
}

func (a *Avatar) Master() string {
	return a.master
}

func (a *Avatar) Slaves() []string {
	return append([]string{}, a.slaves...)
}

func (a *Avatar) Sessions() []string {
	if a.master == "" {
		return a.Slaves()
	}
	return append([]string{a.master}, a.slaves...)
}

func (a *Avatar) removeSlave(sessionID string) bool {
	for idx, slave := range a.slaves {
		if slave == sessionID {
			a.slaves = append(a.slaves[:idx], a.slaves[idx+1:]...)
			return true
		}
	}
	return false
}

func (a *Avatar) addSlave(sessionID string) {
	a.removeSlave(sessionID)
	a.slaves = append(a.slaves, sessionID)
}

// OnDescend links sessionID to the avatar. A session of the same user as the
// current master takes over as master and demotes the old one to slave; a
// session of another user only becomes a slave. Afterwards the shell, if
// any, is moved to the home of the master user.
func (a *Avatar) OnDescend(ctx context.Context, sessionID string) {
	switch {
	case a.master == sessionID:
	case a.master == "":
		a.removeSlave(sessionID)
		a.master = sessionID
	case a.sessions.User(a.master) == a.sessions.User(sessionID):
		a.removeSlave(sessionID)
		a.addSlave(a.master)
		a.master = sessionID
	default:
		a.addSlave(sessionID)
	}
	a.resetShell(ctx)
}

// OnAscend unlinks sessionID. If it was master, the most recent slave of the
// same user is promoted.
func (a *Avatar) OnAscend(ctx context.Context, sessionID string) {
	if a.removeSlave(sessionID) || a.master != sessionID {
		return
	}
	user := a.sessions.User(a.master)
	a.master = ""
	for idx := len(a.slaves) - 1; idx >= 0; idx-- {
		if a.sessions.User(a.slaves[idx]) == user {
			a.master = a.slaves[idx]
			a.removeSlave(a.master)
			break
		}
	}
	a.resetShell(ctx)
}

// Username of the user owning the master session.
func (a *Avatar) Username(ctx context.Context) string {
	if a.master == "" || a.usernames == nil {
		return ""
	}
	name, err := a.usernames.Username(ctx, a.sessions.User(a.master))
	if err != nil {
		return ""
	}
	return name
}

func (a *Avatar) resetShell(ctx context.Context) {
	sh, found := actor.Get[*shell.Shell](a.owner, capability.Shell)
	if !found {
		return
	}
	username := a.Username(ctx)
	if username == "" {
		return
	}
	home := path.Join(HomeDir, username)
	sh.SetHomedir(home)
	sh.SetCwd(home)
}

// Descend runs the descend protocol of the avatar capability of a.
func Descend(ctx context.Context, a *actor.Actor, sessionID string) error {
	av, found := actor.Get[*Avatar](a, capability.Avatar)
	if !found {
		return mudcore.WithStack(fmt.Errorf("%w: %v", ErrNotAvatar, a))
	}
	if av.Hooks == nil {
		av.OnDescend(ctx, sessionID)
		return nil
	}
	args, err := av.Hooks.TryDescend(ctx, sessionID)
	if err != nil {
		return mudcore.WithStack(err)
	}
	return mudcore.WithStack(av.Hooks.OnDescend(ctx, sessionID, args...))
}

// Ascend unlinks sessionID from the avatar capability of a.
func Ascend(ctx context.Context, a *actor.Actor, sessionID string) error {
	av, found := actor.Get[*Avatar](a, capability.Avatar)
	if !found {
		return mudcore.WithStack(fmt.Errorf("%w: %v", ErrNotAvatar, a))
	}
	av.OnAscend(ctx, sessionID)
	return nil
}
