package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zond/mudcore"
	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/capability"
	"github.com/zond/mudcore/session"
	"github.com/zond/mudcore/storage"
)

// player returns the first player of the user, creating one if the user has
// none.
func (g *Game) player(ctx context.Context, userID string) (*storage.Player, error) {
	players, err := g.storage.Players(ctx, userID)
	if err != nil {
		return nil, mudcore.WithStack(err)
	}
	if len(players) == 0 {
		return g.storage.NewPlayer(ctx, userID)
	}
	return &players[0], nil
}

// loadStartRoom loads the room the player was last in, falling back to the
// workroom of the user.
func (g *Game) loadStartRoom(player *storage.Player, username string) (*Room, error) {
	fallback := WorkroomPath(username)
	start := fallback
	if last := g.sessions.LastRoom(player.LastSession); last != "" {
		start = last
	} else if player.LastRoom != "" {
		start = player.LastRoom
	}
	room, err := g.rooms.Load(start)
	if err != nil && start != fallback {
		g.log.Infow("start room unavailable", "player", player.ID, "room", start, "error", err)
		return g.rooms.Load(fallback)
	}
	return room, err
}

// TryDescend finds the player avatar to descend into: the avatar of the
// last player session if that is active below sessionID, the living avatar
// of the player in a new session, or a new avatar of the flavor of the
// start room. It returns the player session id, the player id and the room,
// followed by what the player avatar returned. A player avatar refusing
// the descend gives zero values.
func (p *platform) TryDescend(ctx context.Context, sessionID string) ([]any, error) {
	g := p.g
	userID := g.sessions.User(sessionID)
	username, err := g.storage.Username(ctx, userID)
	if err != nil {
		return nil, session.Abortf("no user found for session %s", sessionID)
	}
	player, err := g.player(ctx, userID)
	if err != nil {
		return nil, session.Abortf("no player found for user %s", username)
	}

	var b *body
	var room *Room
	created, reused := false, true
	sub := player.LastSession
	if sub != "" && g.sessions.IsActive(sub) && g.sessions.IsSubsession(sessionID, sub) {
		b, _ = g.bodyOf(g.sessions.Avatar(sub))
	}
	// abandon undoes what this descend made before it gave up.
	abandon := func() {
		if !reused {
			g.sessions.Remove(sub)
		}
		if created {
			delete(g.bodies, player.ID)
			g.destroy(b.self)
		}
	}
	if b == nil {
		if live, found := g.bodies[player.ID]; found {
			b = live
		} else {
			if room, err = g.loadStartRoom(player, username); err != nil {
				return nil, session.Abortf("unable to load start room for %s", username)
			}
			name, err := g.rooms.Avatar(room)
			if err != nil {
				return nil, session.Abortf("unable to determine avatar flavor for zone %s", room.Zone())
			}
			factory, found := g.flavors[name]
			if !found {
				return nil, session.Abortf("unable to determine avatar for %s", name)
			}
			if b, err = factory(ctx, player, username); err != nil {
				return nil, session.Abortf("unable to create avatar for %s", username)
			}
			created = true
		}
		sub, reused = g.sessions.NewSession(userID, sessionID), false
		if err := g.sessions.SetAvatar(sub, b.self); err != nil {
			abandon()
			return nil, session.Abortf("failed to start player session for %s", username)
		}
	}
	if room == nil {
		room = g.rooms.Where(b.self)
	}
	if room == nil {
		if room, err = g.loadStartRoom(player, username); err != nil {
			abandon()
			return nil, session.Abortf("unable to load start room for %s", username)
		}
	}

	var args []any
	if b.avatar.Hooks != nil {
		if args, err = b.avatar.Hooks.TryDescend(ctx, sub); err != nil {
			g.log.Warnw("player avatar refused descend", "player", player.ID, "session", sub, "error", err)
			abandon()
			return []any{"", "", (*Room)(nil)}, nil
		}
	}
	return append([]any{sub, player.ID, room}, args...), nil
}

// OnDescend links sessionID, resumes the player session found by
// TryDescend and descends the player avatar into it.
func (p *platform) OnDescend(ctx context.Context, sessionID string, args ...any) error {
	g := p.g
	p.avatar.OnDescend(ctx, sessionID)
	if len(args) < 3 {
		return nil
	}
	sub, _ := args[0].(string)
	playerID, _ := args[1].(string)
	room, _ := args[2].(*Room)
	if sub == "" {
		return nil
	}
	b, found := g.bodyOf(g.sessions.Avatar(sub))
	if !found {
		return nil
	}
	if err := g.sessions.Resume(sub); err != nil {
		g.log.Warnw("failed to resume player session", "player", playerID, "session", sub, "error", err)
		return nil
	}
	if err := g.storage.SetLastSession(ctx, playerID, sub); err != nil {
		g.log.Warnw("recording last session", "player", playerID, "session", sub, "error", err)
	}
	p.descended = sub
	if b.avatar.Hooks == nil {
		b.avatar.OnDescend(ctx, sub)
		return nil
	}
	return b.avatar.Hooks.OnDescend(ctx, sub, append([]any{playerID, room}, args[3:]...)...)
}

func asInteractive(ctx context.Context, who *actor.Actor) context.Context {
	return actor.WithInteractive(actor.WithCaller(ctx, who), who)
}

// descend moves the connection of the platform avatar who into its player
// avatar.
func (g *Game) descend(ctx context.Context, who *actor.Actor) {
	p, found := g.platforms[who]
	if !found {
		g.stderr(ctx, who, commandTopic, "There is nowhere to descend to from here.")
		return
	}
	connID, found := g.connections.ConnectionOf(who)
	if !found {
		return
	}
	p.descended = ""
	if err := session.Descend(ctx, who, g.connections.Session(connID)); err != nil {
		g.metrics.Descend("aborted")
		var abort *session.DescendAbort
		if errors.As(err, &abort) {
			g.stderr(ctx, who, commandTopic, "%s", abort.Message)
		} else {
			g.log.Warnw("descending", "who", who, "error", err, "stack", mudcore.StackTrace(err))
			g.stderr(ctx, who, commandTopic, "Descending failed.")
		}
		return
	}
	if p.descended == "" {
		g.metrics.Descend("refused")
		g.stderr(ctx, who, commandTopic, "Your avatar refuses to wake up.")
		return
	}
	if err := g.binder.BindConnection(ctx, who, p.descended); err != nil {
		g.metrics.Descend("failed")
		g.stderr(ctx, who, commandTopic, "Unable to connect to your avatar.")
		return
	}
	g.metrics.Descend("ok")
	b := g.sessions.Avatar(p.descended)
	g.look(asInteractive(ctx, b), b)
}

// ascend moves the connection of who up to the avatar of the parent of its
// session.
func (g *Game) ascend(ctx context.Context, who *actor.Actor) {
	connID, found := g.connections.ConnectionOf(who)
	if !found {
		return
	}
	sid := g.connections.Session(connID)
	s, found := g.sessions.Session(sid)
	if !found || s.Parent == "" {
		g.stderr(ctx, who, commandTopic, "There is nothing above you.")
		return
	}
	if err := g.binder.BindConnection(ctx, who, s.Parent); err != nil {
		g.log.Warnw("ascending", "who", who, "error", err)
		g.stderr(ctx, who, commandTopic, "Unable to ascend.")
		return
	}
	if err := session.Ascend(ctx, who, sid); err != nil {
		g.log.Warnw("ascending", "who", who, "error", err)
	}
	if err := g.sessions.Suspend(sid); err != nil {
		g.log.Warnw("suspending", "session", sid, "error", err)
	}
	if b, found := g.bodyOf(who); found {
		g.linger(b)
	}
	parent := g.sessions.Avatar(s.Parent)
	g.stdout(asInteractive(ctx, parent), parent, systemTopic, "You ascend to the platform.")
}

// observe lets the connection of who watch the output of the identity
// played by username, in a session below the current one.
func (g *Game) observe(ctx context.Context, who *actor.Actor, username string) {
	connID, found := g.connections.ConnectionOf(who)
	if !found {
		return
	}
	if _, found := g.observations[connID]; found {
		g.stderr(ctx, who, commandTopic, "You are already observing someone.")
		return
	}
	sid := g.connections.Session(connID)
	user := g.sessions.User(sid)
	var target *actor.Actor
	for _, info := range g.connections.All() {
		if info.Interactive == nil || info.Interactive == who {
			continue
		}
		name, err := g.storage.Username(ctx, g.sessions.User(info.Session))
		if err == nil && strings.EqualFold(name, username) {
			target = info.Interactive
			break
		}
	}
	av, found := actor.Get[*session.Avatar](target, capability.Avatar)
	if !found {
		g.stderr(ctx, who, commandTopic, "%s is not connected.", username)
		return
	}
	if g.sessions.User(av.Master()) == user {
		g.stderr(ctx, who, commandTopic, "You cannot observe yourself.")
		return
	}
	obs := g.sessions.NewSession(user, sid)
	if err := g.sessions.SetAvatar(obs, target); err != nil {
		g.log.Warnw("observing", "who", who, "error", err)
		return
	}
	if _, err := g.sessions.Connect(obs, connID); err != nil {
		g.log.Warnw("observing", "who", who, "error", err)
		return
	}
	av.OnDescend(ctx, obs)
	g.observations[connID] = obs
	g.stdout(ctx, who, commandTopic, "You start observing %s.", target.Name())
}

func (g *Game) unobserve(ctx context.Context, who *actor.Actor) {
	connID, found := g.connections.ConnectionOf(who)
	if !found {
		return
	}
	obs, found := g.observations[connID]
	if !found {
		g.stderr(ctx, who, commandTopic, "You are not observing anyone.")
		return
	}
	target := g.unobserveSession(ctx, connID, obs)
	g.stdout(ctx, who, commandTopic, "You stop observing %s.", target.Name())
}

func (g *Game) unobserveSession(ctx context.Context, connID string, obs string) *actor.Actor {
	delete(g.observations, connID)
	target := g.sessions.Avatar(obs)
	if target != nil {
		if err := session.Ascend(ctx, target, obs); err != nil {
			g.log.Debugw("unobserving", "session", obs, "error", err)
		}
	}
	if err := g.sessions.Suspend(obs); err != nil {
		g.log.Debugw("unobserving", "session", obs, "error", err)
	}
	return target
}

func (g *Game) move(ctx context.Context, a *actor.Actor, room *Room) {
	if from := g.rooms.Where(a); from != nil {
		g.tellRoom(ctx, from, a, "%s leaves.", a.Name())
	}
	g.rooms.Move(a, room)
	g.tellRoom(ctx, room, a, "%s arrives.", a.Name())
	b, found := g.bodyOf(a)
	if !found {
		return
	}
	if master := b.avatar.Master(); master != "" {
		if err := g.sessions.SetLastRoom(master, room.Path); err != nil {
			g.log.Debugw("recording last room", "session", master, "error", err)
		}
	}
	if err := g.storage.SetLastRoom(ctx, b.player, room.Path); err != nil {
		g.log.Warnw("recording last room", "player", b.player, "error", err)
	}
}

func (g *Game) tellRoom(ctx context.Context, room *Room, except *actor.Actor, format string, args ...any) {
	for _, occupant := range room.Occupants() {
		if occupant != except {
			g.stdout(ctx, occupant, roomTopic, format, args...)
		}
	}
}

func (g *Game) stdout(ctx context.Context, who *actor.Actor, topic string, format string, args ...any) {
	if who == nil {
		return
	}
	if _, err := g.postal.Stdout(ctx, who, topic, fmt.Sprintf(format, args...), nil, nil); err != nil {
		g.log.Warnw("writing stdout", "who", who, "error", err)
	}
}

func (g *Game) stderr(ctx context.Context, who *actor.Actor, topic string, format string, args ...any) {
	if who == nil {
		return
	}
	if _, err := g.postal.Stderr(ctx, who, topic, fmt.Sprintf(format, args...), nil, nil); err != nil {
		g.log.Warnw("writing stderr", "who", who, "error", err)
	}
}
