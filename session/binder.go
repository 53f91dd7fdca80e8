package session

import (
	"context"
	"fmt"

	"github.com/zond/mudcore"
	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/capability"
	"github.com/zond/mudcore/logging"
	"github.com/zond/mudcore/metrics"
	"go.uber.org/zap"
)

var (
	ErrNoAvatar       = fmt.Errorf("session has no avatar")
	ErrNotAvatar      = fmt.Errorf("identity is no avatar")
	ErrNotInteractive = fmt.Errorf("identity has no connection")
)

// Binder moves connections between the avatars of sessions.
type Binder struct {
	// OnDisplace is called with the id of a connection that lost its
	// interactive identity to another connection.
	OnDisplace func(connection string, by *actor.Actor)

	sessions    *Tracker
	connections *Connections
	log         *zap.SugaredLogger
	metrics     *metrics.Metrics
}

func NewBinder(sessions *Tracker, connections *Connections, log *zap.SugaredLogger, m *metrics.Metrics) *Binder {
	return &Binder{
		sessions:    sessions,
		connections: connections,
		log:         logging.OrNop(log),
		metrics:     m,
	}
}

func (b *Binder) Sessions() *Tracker {
	return b.sessions
}

func (b *Binder) Connections() *Connections {
	return b.connections
}

// BindConnection switches the connection read by who to the avatar of the
// session, and makes it the connected and active session of that
// connection. On failure nothing is changed.
func (b *Binder) BindConnection(ctx context.Context, who *actor.Actor, sessionID string) error {
	err := b.bind(who, sessionID)
	if err != nil {
		b.log.Debugw("binding connection", "who", who, "session", sessionID, "error", err)
		b.metrics.Binding("failed")
		return err
	}
	b.metrics.Binding("ok")
	return nil
}

func (b *Binder) bind(who *actor.Actor, sessionID string) error {
	avatar := b.sessions.Avatar(sessionID)
	if avatar == nil {
		return mudcore.WithStack(fmt.Errorf("%w: %q", ErrNoAvatar, sessionID))
	}
	if !avatar.Has(capability.Avatar) {
		return mudcore.WithStack(fmt.Errorf("%w: %v", ErrNotAvatar, avatar))
	}
	connection, found := b.connections.ConnectionOf(who)
	if !found {
		return mudcore.WithStack(fmt.Errorf("%w: %v", ErrNotInteractive, who))
	}
	undoExec, displaced, err := b.connections.Exec(connection, avatar)
	if err != nil {
		return mudcore.WithStack(err)
	}
	undoConnect, err := b.sessions.Connect(sessionID, connection)
	if err != nil {
		undoExec()
		return mudcore.WithStack(err)
	}
	if _, err := b.connections.SetSession(connection, sessionID); err != nil {
		undoConnect()
		undoExec()
		return mudcore.WithStack(err)
	}
	if displaced != "" && b.OnDisplace != nil {
		b.OnDisplace(displaced, avatar)
	}
	return nil
}
