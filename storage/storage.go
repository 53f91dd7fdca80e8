// Package storage persists users and their players in SQLite.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/zond/mudcore"

	_ "modernc.org/sqlite"
)

var (
	ErrNoSuchUser   = fmt.Errorf("no such user")
	ErrNoSuchPlayer = fmt.Errorf("no such player")
)

type User struct {
	ID      string `db:"id"`
	Name    string `db:"name"`
	Created int64  `db:"created"`
}

// Player is the in-game body of a user. LastSession and LastRoom are where
// the user left it.
type Player struct {
	ID          string `db:"id"`
	User        string `db:"user_id"`
	LastSession string `db:"last_session"`
	LastRoom    string `db:"last_room"`
	Created     int64  `db:"created"`
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS players (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		last_session TEXT NOT NULL DEFAULT '',
		last_room TEXT NOT NULL DEFAULT '',
		created INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS players_user ON players (user_id, created)`,
}

type migrator struct {
	db  *sqlx.DB
	err error
}

func (m *migrator) exec(ctx context.Context, stmt string) {
	if m.err != nil {
		return
	}
	if _, err := m.db.ExecContext(ctx, stmt); err != nil {
		m.err = mudcore.WithStack(err)
	}
}

type Storage struct {
	db *sqlx.DB
}

// New opens, and creates if necessary, the database at path.
func New(ctx context.Context, path string) (*Storage, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, mudcore.WithStack(err)
	}
	db.SetMaxOpenConns(1)
	m := &migrator{db: db}
	for _, stmt := range schema {
		m.exec(ctx, stmt)
	}
	if m.err != nil {
		db.Close()
		return nil, m.err
	}
	return &Storage{db: db}, nil
}

func (s *Storage) Close() error {
	return mudcore.WithStack(s.db.Close())
}

func notFound(err error, sentinel error, key string) error {
	if err == sql.ErrNoRows {
		return mudcore.WithStack(fmt.Errorf("%w: %q", sentinel, key))
	}
	return mudcore.WithStack(err)
}

func (s *Storage) LoadUser(ctx context.Context, name string) (*User, error) {
	user := &User{}
	if err := s.db.GetContext(ctx, user, "SELECT * FROM users WHERE name = ?", name); err != nil {
		return nil, notFound(err, ErrNoSuchUser, name)
	}
	return user, nil
}

// EnsureUser returns the user called name, creating it if missing.
func (s *Storage) EnsureUser(ctx context.Context, name string) (*User, error) {
	user := &User{
		ID:      mudcore.NextID(),
		Name:    name,
		Created: time.Now().UnixNano(),
	}
	if _, err := s.db.NamedExecContext(ctx, "INSERT INTO users (id, name, created) VALUES (:id, :name, :created) ON CONFLICT (name) DO NOTHING", user); err != nil {
		return nil, mudcore.WithStack(err)
	}
	return s.LoadUser(ctx, name)
}

func (s *Storage) Username(ctx context.Context, userID string) (string, error) {
	var name string
	if err := s.db.GetContext(ctx, &name, "SELECT name FROM users WHERE id = ?", userID); err != nil {
		return "", notFound(err, ErrNoSuchUser, userID)
	}
	return name, nil
}

func (s *Storage) Users(ctx context.Context) ([]User, error) {
	result := []User{}
	if err := s.db.SelectContext(ctx, &result, "SELECT * FROM users ORDER BY name"); err != nil {
		return nil, mudcore.WithStack(err)
	}
	return result, nil
}

func (s *Storage) NewPlayer(ctx context.Context, userID string) (*Player, error) {
	player := &Player{
		ID:      mudcore.NextID(),
		User:    userID,
		Created: time.Now().UnixNano(),
	}
	if _, err := s.db.NamedExecContext(ctx, "INSERT INTO players (id, user_id, last_session, last_room, created) VALUES (:id, :user_id, :last_session, :last_room, :created)", player); err != nil {
		return nil, mudcore.WithStack(err)
	}
	return player, nil
}

func (s *Storage) LoadPlayer(ctx context.Context, id string) (*Player, error) {
	player := &Player{}
	if err := s.db.GetContext(ctx, player, "SELECT * FROM players WHERE id = ?", id); err != nil {
		return nil, notFound(err, ErrNoSuchPlayer, id)
	}
	return player, nil
}

// Players returns the players of the user, oldest first.
func (s *Storage) Players(ctx context.Context, userID string) ([]Player, error) {
	result := []Player{}
	if err := s.db.SelectContext(ctx, &result, "SELECT * FROM players WHERE user_id = ? ORDER BY created, id", userID); err != nil {
		return nil, mudcore.WithStack(err)
	}
	return result, nil
}

func (s *Storage) updatePlayer(ctx context.Context, id string, column string, value string) error {
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("UPDATE players SET %s = ? WHERE id = ?", column), value, id)
	if err != nil {
		return mudcore.WithStack(err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return mudcore.WithStack(err)
	} else if n == 0 {
		return mudcore.WithStack(fmt.Errorf("%w: %q", ErrNoSuchPlayer, id))
	}
	return nil
}

func (s *Storage) SetLastSession(ctx context.Context, playerID string, sessionID string) error {
	return s.updatePlayer(ctx, playerID, "last_session", sessionID)
}

func (s *Storage) SetLastRoom(ctx context.Context, playerID string, room string) error {
	return s.updatePlayer(ctx, playerID, "last_room", room)
}
