package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/zond/mudcore"
	"github.com/zond/mudcore/logging"
	"github.com/zond/mudcore/server"
)

func main() {
	config := server.DefaultConfig()
	if err := server.ParseEnv(&config); err != nil {
		log.Fatal(err)
	}

	flag.StringVar(&config.SSHAddr, "ssh", config.SSHAddr, "Where to listen to SSH connections.")
	flag.StringVar(&config.HTTPAddr, "http", config.HTTPAddr, "Where to listen to websocket connections and serve metrics.")
	flag.StringVar(&config.Dir, "dir", config.Dir, "Where to save database and settings.")
	flag.StringVar(&config.CommandDir, "cmds", config.CommandDir, "Where to load command specs, controllers and rooms from, instead of the builtin ones.")
	flag.BoolVar(&config.WatchCommands, "watch", config.WatchCommands, "Whether to reload commands when files in the -cmds dir change.")
	flag.BoolVar(&config.AutoDescend, "descend", config.AutoDescend, "Whether new connections descend into their player right away.")
	flag.DurationVar(&config.Linger, "linger", config.Linger, "How long player avatars stay in the world after their last session.")
	flag.DurationVar(&config.ControllerTTL, "controller_ttl", config.ControllerTTL, "How long loaded controllers are cached, zero means until reload.")
	flag.DurationVar(&config.JSTimeout, "js_timeout", config.JSTimeout, "How long a JS controller may run.")
	flag.StringVar(&config.Logging.Level, "log_level", config.Logging.Level, "Minimum level to log.")
	flag.StringVar(&config.Logging.File, "log_file", config.Logging.File, "Where to log, with rotation, instead of stderr.")

	flag.Parse()

	logger, err := logging.New(config.Logging)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.New(config, logger).Start(ctx); err != nil {
		logger.Errorw("server failed", "error", err, "stack", mudcore.StackTrace(err))
		os.Exit(1)
	}
}
