// Package server runs a game behind SSH and websocket listeners.
package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gliderlabs/ssh"
	"github.com/zond/mudcore"
	"github.com/zond/mudcore/cmds"
	"github.com/zond/mudcore/command"
	"github.com/zond/mudcore/crypto"
	"github.com/zond/mudcore/game"
	"github.com/zond/mudcore/logging"
	"github.com/zond/mudcore/metrics"
	"github.com/zond/mudcore/storage"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 5 * time.Second
)

type Config struct {
	SSHAddr  string `env:"MUDCORE_SSH_ADDR"`
	HTTPAddr string `env:"MUDCORE_HTTP_ADDR"`
	// Dir holds the database and the host key.
	Dir string `env:"MUDCORE_DIR"`
	// CommandDir holds command specs, controllers and rooms.yaml. Empty
	// means the embedded defaults.
	CommandDir    string         `env:"MUDCORE_COMMAND_DIR"`
	WatchCommands bool           `env:"MUDCORE_WATCH_COMMANDS"`
	AutoDescend   bool           `env:"MUDCORE_AUTO_DESCEND"`
	Linger        time.Duration  `env:"MUDCORE_LINGER"`
	ControllerTTL time.Duration  `env:"MUDCORE_CONTROLLER_TTL"`
	JSTimeout     time.Duration  `env:"MUDCORE_JS_TIMEOUT"`
	Logging       logging.Config `envPrefix:"MUDCORE_LOG_"`
}

func DefaultConfig() Config {
	gameConfig := game.DefaultConfig()
	return Config{
		SSHAddr:     "127.0.0.1:15000",
		HTTPAddr:    "127.0.0.1:8080",
		Dir:         filepath.Join(os.Getenv("HOME"), ".mudcore"),
		AutoDescend: gameConfig.AutoDescend,
		Linger:      gameConfig.Linger,
		JSTimeout:   gameConfig.Loader.JSTimeout,
		Logging:     logging.DefaultConfig(),
	}
}

// ParseEnv overrides the fields of c that have environment variables set.
func ParseEnv(c *Config) error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c Config) game() game.Config {
	result := game.DefaultConfig()
	result.AutoDescend = c.AutoDescend
	result.Linger = c.Linger
	result.Loader = command.LoaderConfig{
		TTL:       c.ControllerTTL,
		JSTimeout: c.JSTimeout,
	}
	return result
}

type Server struct {
	config  Config
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

func New(config Config, log *zap.SugaredLogger) *Server {
	return &Server{
		config:  config,
		log:     logging.OrNop(log),
		metrics: metrics.New(),
	}
}

func (s *Server) commands() fs.FS {
	if s.config.CommandDir == "" {
		return cmds.FS
	}
	return os.DirFS(s.config.CommandDir)
}

// Start serves until ctx is done or a listener fails.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(s.config.Dir, 0700); err != nil {
		return mudcore.WithStack(err)
	}
	pemBytes, generated, err := crypto.HostKey{
		PrivKeyPath:   filepath.Join(s.config.Dir, "private.pem"),
		SSHPubKeyPath: filepath.Join(s.config.Dir, "public.pub"),
	}.Ensure()
	if err != nil {
		return err
	}
	if generated {
		s.log.Infow("generated host key", "dir", s.config.Dir)
	}
	fingerprint, err := crypto.Fingerprint(pemBytes)
	if err != nil {
		return err
	}

	store, err := storage.New(ctx, filepath.Join(s.config.Dir, "mudcore.sqlite"))
	if err != nil {
		return err
	}
	defer store.Close()

	fsys := s.commands()
	rooms, err := game.LoadRooms(fsys)
	if err != nil {
		return err
	}
	g := game.New(store, fsys, rooms, s.config.game(), s.log, s.metrics)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errs := make(chan error, 4)
	driverDone := make(chan struct{})
	go func() {
		defer close(driverDone)
		if err := g.Driver().Start(ctx); err != nil {
			errs <- err
		}
	}()

	sshServer := &ssh.Server{
		Addr:    s.config.SSHAddr,
		Handler: g.HandleSession,
	}
	if err := sshServer.SetOption(ssh.HostKeyPEM(pemBytes)); err != nil {
		return mudcore.WithStack(err)
	}
	sshListener, err := net.Listen("tcp", s.config.SSHAddr)
	if err != nil {
		return mudcore.WithStack(err)
	}
	go func() {
		if err := sshServer.Serve(sshListener); err != nil && !errors.Is(err, ssh.ErrServerClosed) {
			errs <- mudcore.WithStack(err)
		}
	}()
	s.log.Infow("serving ssh", "addr", sshListener.Addr().String(), "fingerprint", fingerprint)

	mux := http.NewServeMux()
	mux.Handle("/ws", g.WebSocketHandler())
	mux.Handle("/metrics", s.metrics.Handler())
	httpServer := &http.Server{
		Addr:    s.config.HTTPAddr,
		Handler: mux,
	}
	httpListener, err := net.Listen("tcp", s.config.HTTPAddr)
	if err != nil {
		sshServer.Close()
		return mudcore.WithStack(err)
	}
	go func() {
		if err := httpServer.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- mudcore.WithStack(err)
		}
	}()
	s.log.Infow("serving http", "addr", httpListener.Addr().String())

	if s.config.WatchCommands && s.config.CommandDir != "" {
		watcher, err := newWatcher(s.config.CommandDir)
		if err != nil {
			s.log.Warnw("not watching commands", "dir", s.config.CommandDir, "error", err)
		} else {
			go watch(ctx, watcher, s.log, func() {
				s.log.Infow("reloading commands", "dir", s.config.CommandDir)
				g.Reload(fsys)
			})
		}
	}

	select {
	case <-ctx.Done():
	case err = <-errs:
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if closeErr := httpServer.Shutdown(shutdownCtx); closeErr != nil {
		s.log.Debugw("shutting down http", "error", closeErr)
	}
	if closeErr := sshServer.Close(); closeErr != nil {
		s.log.Debugw("shutting down ssh", "error", closeErr)
	}
	cancel()
	<-driverDone
	return err
}
