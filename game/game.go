// Package game turns connections into identities and plays them.
package game

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/zond/mudcore"
	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/command"
	"github.com/zond/mudcore/driver"
	"github.com/zond/mudcore/logging"
	"github.com/zond/mudcore/message"
	"github.com/zond/mudcore/metrics"
	"github.com/zond/mudcore/postal"
	"github.com/zond/mudcore/prompt"
	"github.com/zond/mudcore/session"
	"github.com/zond/mudcore/storage"
	"go.uber.org/zap"
)

const (
	commandTopic = command.CommandTopic
	roomTopic    = "room"
	systemTopic  = "system"
)

type Config struct {
	// AutoDescend descends new connections from the platform into their
	// player right away.
	AutoDescend bool
	// Linger is how long a player avatar stays in the world after its
	// last session ended.
	Linger  time.Duration
	Backlog int
	Loader  command.LoaderConfig
}

func DefaultConfig() Config {
	return Config{
		AutoDescend: true,
		Linger:      5 * time.Minute,
		Backlog:     256,
		Loader:      command.DefaultLoaderConfig(),
	}
}

type Game struct {
	config  Config
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	storage     *storage.Storage
	driver      *driver.Driver
	registry    *message.Registry
	sessions    *session.Tracker
	connections *session.Connections
	binder      *session.Binder
	postal      *postal.Service
	loader      *command.Loader
	dispatcher  *command.Dispatcher
	rooms       *Rooms
	conns       *mudcore.SyncMap[string, Conn]

	// The fields below belong to the driver goroutine.
	cmds         fs.FS
	prompts      map[*actor.Actor]*prompt.Stack
	givers       map[*actor.Actor]*command.Giver
	platforms    map[*actor.Actor]*platform
	bodies       map[string]*body
	flavors      map[string]AvatarFactory
	observations map[string]string
}

// New creates a game reading command specs and controllers from cmds.
// Start the returned game's driver before serving connections.
func New(s *storage.Storage, cmds fs.FS, rooms *Rooms, config Config, log *zap.SugaredLogger, m *metrics.Metrics) *Game {
	log = logging.OrNop(log)
	g := &Game{
		config:       config,
		log:          log,
		metrics:      m,
		storage:      s,
		driver:       driver.New(log, config.Backlog),
		registry:     message.DefaultRegistry(),
		sessions:     session.NewTracker(),
		connections:  session.NewConnections(),
		rooms:        rooms,
		conns:        mudcore.NewSyncMap[string, Conn](),
		cmds:         cmds,
		prompts:      map[*actor.Actor]*prompt.Stack{},
		givers:       map[*actor.Actor]*command.Giver{},
		platforms:    map[*actor.Actor]*platform{},
		bodies:       map[string]*body{},
		flavors:      map[string]AvatarFactory{},
		observations: map[string]string{},
	}
	g.binder = session.NewBinder(g.sessions, g.connections, log, m)
	g.binder.OnDisplace = g.displaced
	g.postal = postal.New(&transport{
		conns:       g.conns,
		connections: g.connections,
		sessions:    g.sessions,
	}, log, m)
	g.loader = command.NewLoader(cmds, g.postal, config.Loader, log)
	g.dispatcher = command.NewDispatcher(g.loader, log, m)
	g.registerControllers()
	g.flavors[humanFlavor] = g.newPlayerAvatar
	return g
}

func (g *Game) Driver() *driver.Driver {
	return g.driver
}

func (g *Game) Registry() *message.Registry {
	return g.registry
}

func (g *Game) Connections() *session.Connections {
	return g.connections
}

func (g *Game) Sessions() *session.Tracker {
	return g.sessions
}

// Reload swaps the command files and reloads every command table. It runs
// as a driver task.
func (g *Game) Reload(cmds fs.FS) bool {
	return g.driver.Submit(func(ctx context.Context) {
		g.cmds = cmds
		g.loader.SetFS(cmds)
		for who, giver := range g.givers {
			giver.Load(cmds)
			g.log.Debugw("reloaded commands", "who", who)
		}
	})
}

// Serve plays conn until it closes or ctx is done.
func (g *Game) Serve(ctx context.Context, conn Conn, login Login) error {
	var connID string
	var noEcho bool
	var err error
	if doErr := g.driver.Do(ctx, func(ctx context.Context) {
		connID, noEcho, err = g.connect(ctx, conn, login)
	}); doErr != nil {
		return doErr
	}
	if err != nil {
		return err
	}
	defer g.driver.Do(context.Background(), func(ctx context.Context) {
		g.disconnect(ctx, connID)
	})
	for {
		line, err := conn.ReadNext(noEcho)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return mudcore.WithStack(err)
		}
		if err := g.driver.Do(ctx, func(ctx context.Context) {
			noEcho = g.handleLine(ctx, connID, line)
		}); err != nil {
			return err
		}
	}
}

func (g *Game) connect(ctx context.Context, conn Conn, login Login) (string, bool, error) {
	user, err := g.storage.EnsureUser(ctx, login.User)
	if err != nil {
		return "", false, mudcore.WithStack(err)
	}
	greeter := actor.New("login")
	connID := g.connections.Add(session.ConnectionInfo{
		Transport:   login.Transport,
		Terminal:    login.Terminal,
		Width:       login.Width,
		Height:      login.Height,
		Interactive: greeter,
	})
	g.conns.Set(connID, conn)
	g.metrics.Connected(login.Transport)

	sid := g.sessions.NewSession(user.ID, "")
	p := g.newPlatformAvatar(user)
	if err := g.sessions.SetAvatar(sid, p.self); err != nil {
		return "", false, mudcore.WithStack(err)
	}
	if err := g.binder.BindConnection(ctx, greeter, sid); err != nil {
		g.destroy(p.self)
		g.connections.Disconnect(connID)
		g.conns.Del(connID)
		return "", false, mudcore.WithStack(err)
	}
	p.avatar.OnDescend(ctx, sid)
	g.log.Infow("connected", "user", user.Name, "connection", connID, "transport", login.Transport)

	ctx = actor.WithInteractive(actor.WithCaller(ctx, p.self), p.self)
	if err := g.postal.OpenStream(p.self); err != nil {
		g.log.Debugw("opening stream", "connection", connID, "error", err)
	}
	g.stdout(ctx, p.self, systemTopic, "Welcome, %s.", user.Name)
	if g.config.AutoDescend {
		g.descend(ctx, p.self)
	}
	return connID, g.showPrompt(ctx, connID), nil
}

// handleLine runs one line of input from the connection and shows the next
// prompt. It returns whether that prompt wants its input unechoed.
func (g *Game) handleLine(ctx context.Context, connID string, line string) bool {
	info, found := g.connections.Info(connID)
	if !found || info.Interactive == nil {
		return false
	}
	who := info.Interactive
	ctx = actor.WithInteractive(ctx, who)
	stack := g.prompts[who]
	if stack != nil && !stack.Dispatchable(line) {
		stack.Resolve(actor.WithCaller(ctx, who), line, &promptTerminal{g: g, who: who})
	} else {
		if stack != nil && stack.Pending() {
			line = strings.TrimPrefix(line, "!")
		}
		line = strings.TrimSpace(line)
		if line != "" && !g.dispatcher.Dispatch(ctx, who, line) {
			g.stderr(actor.WithCaller(ctx, who), who, commandTopic, "What?")
		}
	}
	return g.showPrompt(ctx, connID)
}

func (g *Game) showPrompt(ctx context.Context, connID string) bool {
	info, found := g.connections.Info(connID)
	if !found || info.Interactive == nil {
		return false
	}
	who := info.Interactive
	var frame *prompt.Frame
	if stack := g.prompts[who]; stack != nil {
		frame = stack.Current()
	}
	var mctx message.Context
	if frame != nil {
		mctx = frame.Context
	}
	if _, err := g.postal.PromptMessage(ctx, who, frame.Render(), mctx, nil); err != nil {
		g.log.Warnw("showing prompt", "who", who, "error", err)
	}
	if frame == nil {
		return false
	}
	return frame.Context.Bool(message.NoEchoKey)
}

func (g *Game) disconnect(ctx context.Context, connID string) {
	info, found := g.connections.Info(connID)
	if !found {
		return
	}
	if obs, found := g.observations[connID]; found {
		g.unobserveSession(ctx, connID, obs)
	}
	if who := info.Interactive; who != nil {
		if stack := g.prompts[who]; stack != nil {
			stack.Drop()
		}
		if err := g.postal.CloseStream(who); err != nil {
			g.log.Debugw("closing stream", "connection", connID, "error", err)
		}
	}
	g.connections.Disconnect(connID)
	g.conns.Del(connID)
	for sid := info.Session; sid != ""; {
		s, found := g.sessions.Session(sid)
		if !found {
			break
		}
		if s.Avatar != nil {
			if err := session.Ascend(ctx, s.Avatar, sid); err != nil {
				g.log.Debugw("ascending", "session", sid, "error", err)
			}
			if b, found := g.bodyOf(s.Avatar); found {
				g.linger(b)
			}
			if _, found := g.platforms[s.Avatar]; found {
				g.destroy(s.Avatar)
			}
		}
		if err := g.sessions.Suspend(sid); err != nil {
			g.log.Debugw("suspending", "session", sid, "error", err)
		}
		sid = s.Parent
	}
	g.metrics.Disconnected(info.Transport)
	g.log.Infow("disconnected", "connection", connID, "transport", info.Transport)
}

func (g *Game) displaced(connID string, by *actor.Actor) {
	conn, found := g.conns.GetHas(connID)
	if !found {
		return
	}
	if _, err := conn.Write([]byte("Your avatar was taken over by another connection.\n")); err != nil {
		g.log.Debugw("telling displaced connection", "connection", connID, "error", err)
	}
	if err := conn.Close(); err != nil {
		g.log.Debugw("closing displaced connection", "connection", connID, "error", err)
	}
	g.log.Infow("displaced", "connection", connID, "by", by)
}

// promptTerminal is the reader of a prompt stack.
type promptTerminal struct {
	g   *Game
	who *actor.Actor
}

func (p *promptTerminal) Structured() bool {
	return message.IsStructured(p.g.connections.Terminal(p.who))
}

func (p *promptTerminal) Newline() error {
	return p.g.postal.Newline(p.who)
}
