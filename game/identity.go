package game

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/capability"
	"github.com/zond/mudcore/command"
	"github.com/zond/mudcore/lang"
	"github.com/zond/mudcore/message"
	"github.com/zond/mudcore/prompt"
	"github.com/zond/mudcore/sensor"
	"github.com/zond/mudcore/session"
	"github.com/zond/mudcore/shell"
	"github.com/zond/mudcore/storage"
)

const (
	humanFlavor = "go:human"
)

// AvatarFactory creates the in-world avatar of a player.
type AvatarFactory func(ctx context.Context, player *storage.Player, username string) (*body, error)

// newIdentity creates a named identity that senses, gives commands from
// the given spec files, and has a prompt.
func (g *Game) newIdentity(name string, imports ...string) *actor.Actor {
	a := actor.New(name)
	a.Enable(capability.ID, nil)
	a.Enable(capability.Name, nil)

	sens := sensor.New(g.registry, g.log)
	sens.Terminal = func() string {
		return g.connections.Terminal(a)
	}
	a.Enable(capability.Sensor, sens)

	giver := command.NewGiver(a, g.log)
	for _, specPath := range imports {
		giver.Import(strings.TrimSuffix(path.Base(specPath), path.Ext(specPath)), specPath)
	}
	giver.Load(g.cmds)
	a.Enable(capability.CommandGiver, giver)
	g.givers[a] = giver

	g.prompts[a] = prompt.New(g.log, g.metrics)
	return a
}

func (g *Game) destroy(a *actor.Actor) {
	if sens, found := actor.Get[*sensor.Sensor](a, capability.Sensor); found {
		sens.Teardown()
	}
	for c := range a.Capabilities() {
		a.Disable(c)
	}
	g.rooms.Remove(a)
	delete(g.prompts, a)
	delete(g.givers, a)
	delete(g.platforms, a)
}

// restorePrompt sets the command prompt of a back to the default, which
// for identities with a shell shows the shell context.
func (g *Game) restorePrompt(a *actor.Actor) {
	stack := g.prompts[a]
	if stack == nil {
		return
	}
	if sh, found := actor.Get[*shell.Shell](a, capability.Shell); found {
		stack.Set(prompt.PromptFunc(func(message.Context) string {
			return shellContext(sh) + string(prompt.DefaultPrompt)
		}), nil, nil)
		return
	}
	stack.Set(prompt.DefaultPrompt, nil, nil)
}

// shellContext is the context of the shell, or its cwd with the homedir
// shortened to ~.
func shellContext(sh *shell.Shell) string {
	if c := sh.Context(); c != "" {
		return c
	}
	cwd, home := sh.Cwd(), sh.Homedir()
	switch {
	case home != "" && cwd == home:
		return "~"
	case home != "" && strings.HasPrefix(cwd, home+"/"):
		return "~" + strings.TrimPrefix(cwd, home)
	}
	return cwd
}

// IsDir implements shell.Dirs for the game: the root, homes of known users
// and directories holding rooms.
func (g *Game) IsDir(dir string) bool {
	dir = path.Clean(dir)
	if g.rooms.IsDir(dir) {
		return true
	}
	if dir == session.HomeDir {
		return true
	}
	if path.Dir(dir) == session.HomeDir {
		_, err := g.storage.LoadUser(context.Background(), path.Base(dir))
		return err == nil
	}
	return false
}

type platform struct {
	g      *Game
	self   *actor.Actor
	avatar *session.Avatar
	shell  *shell.Shell
	user   *storage.User
	// descended is the player session entered by the latest descend.
	descended string
}

func (g *Game) newPlatformAvatar(user *storage.User) *platform {
	a := g.newIdentity(fmt.Sprintf("%s@platform", user.Name), "avatar.yaml", "shell.json", "platform.yaml")
	p := &platform{
		g:      g,
		self:   a,
		avatar: session.NewAvatar(a, g.sessions, g.storage),
		shell:  shell.New(g),
		user:   user,
	}
	p.avatar.Hooks = p
	a.Enable(capability.Avatar, p.avatar)
	a.Enable(capability.Shell, p.shell)
	a.Enable(capability.Soul, nil)
	g.platforms[a] = p
	g.restorePrompt(a)
	return p
}

// body is a player avatar living in the rooms.
type body struct {
	g      *Game
	self   *actor.Actor
	avatar *session.Avatar
	player string
	reaper uint64
}

func (g *Game) newPlayerAvatar(ctx context.Context, player *storage.Player, username string) (*body, error) {
	a := g.newIdentity(lang.Capitalize(username), "avatar.yaml", "player.yaml", "soul.yaml")
	b := &body{
		g:      g,
		self:   a,
		avatar: session.NewAvatar(a, g.sessions, g.storage),
		player: player.ID,
	}
	b.avatar.Hooks = b
	a.Enable(capability.Avatar, b.avatar)
	a.Enable(capability.Player, b)
	a.Enable(capability.Soul, nil)
	a.Enable(capability.Mobile, nil)
	a.Enable(capability.Visible, nil)
	g.bodies[player.ID] = b
	g.restorePrompt(a)
	return b, nil
}

func (g *Game) bodyOf(a *actor.Actor) (*body, bool) {
	return actor.Get[*body](a, capability.Player)
}

func (b *body) TryDescend(ctx context.Context, sessionID string) ([]any, error) {
	return nil, nil
}

// OnDescend links the session and, given the player id and a room, moves
// the body there.
func (b *body) OnDescend(ctx context.Context, sessionID string, args ...any) error {
	b.avatar.OnDescend(ctx, sessionID)
	if b.reaper != 0 {
		b.g.driver.Cancel(b.reaper)
		b.reaper = 0
	}
	if len(args) < 2 {
		return nil
	}
	if room, ok := args[1].(*Room); ok && room != nil && b.g.rooms.Where(b.self) != room {
		b.g.move(ctx, b.self, room)
	}
	return nil
}

// linger removes the body from the world once it has been without an
// active session for the configured time.
func (g *Game) linger(b *body) {
	if b.reaper != 0 || g.active(b.avatar) {
		return
	}
	b.reaper = g.driver.After(g.config.Linger, func(ctx context.Context) {
		b.reaper = 0
		if g.active(b.avatar) {
			return
		}
		if room := g.rooms.Where(b.self); room != nil {
			g.tellRoom(ctx, room, b.self, "%s fades away.", b.self.Name())
		}
		delete(g.bodies, b.player)
		g.destroy(b.self)
	})
}

func (g *Game) active(av *session.Avatar) bool {
	for _, sid := range av.Sessions() {
		if g.sessions.IsActive(sid) {
			return true
		}
	}
	return false
}
