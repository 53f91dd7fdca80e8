package command

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/go-pkgz/expirable-cache/v3"
	"github.com/zond/mudcore"
	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/js"
	"github.com/zond/mudcore/js/imports"
	"github.com/zond/mudcore/logging"
	"github.com/zond/mudcore/message"
	"go.uber.org/zap"
	"rogchap.com/v8go"
)

const (
	CommandTopic = "command"
	jsCallback   = "command"
)

var (
	ErrNoSuchController      = fmt.Errorf("no such controller")
	ErrUnsupportedController = fmt.Errorf("unsupported controller type")
)

// Controller handles a matched command line. Returning false lets later
// entries registering the same verb try.
type Controller interface {
	DoCommand(ctx context.Context, who *actor.Actor, entry *Entry, verb string, rest string) bool
}

type ControllerFunc func(ctx context.Context, who *actor.Actor, entry *Entry, verb string, rest string) bool

func (f ControllerFunc) DoCommand(ctx context.Context, who *actor.Actor, entry *Entry, verb string, rest string) bool {
	return f(ctx, who, entry, verb, rest)
}

// Output is where JS controllers send text.
type Output interface {
	Stdout(ctx context.Context, target *actor.Actor, topic string, body string, mctx message.Context, sender *actor.Actor) (*message.Message, error)
	Stderr(ctx context.Context, target *actor.Actor, topic string, body string, mctx message.Context, sender *actor.Actor) (*message.Message, error)
}

type LoaderConfig struct {
	// TTL of loaded controllers, zero means until Purge.
	TTL       time.Duration
	JSTimeout time.Duration
}

func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		JSTimeout: 200 * time.Millisecond,
	}
}

// Loader resolves controller paths to controllers, caching the results.
type Loader struct {
	config LoaderConfig
	output Output
	log    *zap.SugaredLogger

	mutex    sync.RWMutex
	fsys     fs.FS
	builtins map[string]Controller
	cache    cache.Cache[string, Controller]
}

func NewLoader(fsys fs.FS, output Output, config LoaderConfig, log *zap.SugaredLogger) *Loader {
	c := cache.NewCache[string, Controller]()
	if config.TTL > 0 {
		c = c.WithTTL(config.TTL)
	}
	if config.JSTimeout <= 0 {
		config.JSTimeout = DefaultLoaderConfig().JSTimeout
	}
	return &Loader{
		config:   config,
		output:   output,
		log:      logging.OrNop(log),
		fsys:     fsys,
		builtins: map[string]Controller{},
		cache:    c,
	}
}

// Register makes c available as the controller GoScheme+name.
func (l *Loader) Register(name string, c Controller) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.builtins[name] = c
	l.cache.Invalidate(GoScheme + name)
}

func (l *Loader) FS() fs.FS {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.fsys
}

// SetFS replaces the file system controllers are loaded from, and purges
// the cache.
func (l *Loader) SetFS(fsys fs.FS) {
	l.mutex.Lock()
	l.fsys = fsys
	l.mutex.Unlock()
	l.Purge()
}

func (l *Loader) Purge() {
	l.cache.Purge()
}

func (l *Loader) Load(controllerPath string) (Controller, error) {
	if c, found := l.cache.Get(controllerPath); found {
		return c, nil
	}
	c, err := l.load(controllerPath)
	if err != nil {
		return nil, mudcore.WithStack(err)
	}
	l.cache.Set(controllerPath, c, 0)
	return c, nil
}

func (l *Loader) load(controllerPath string) (Controller, error) {
	if name, found := strings.CutPrefix(controllerPath, GoScheme); found {
		l.mutex.RLock()
		defer l.mutex.RUnlock()
		c, found := l.builtins[name]
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrNoSuchController, controllerPath)
		}
		return c, nil
	}
	switch path.Ext(controllerPath) {
	case ".js":
		res, err := imports.Resolve(l.FS(), controllerPath)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoSuchController, err)
		}
		return &jsController{
			loader: l,
			script: js.Script{
				Source:  res.Source,
				Origin:  controllerPath,
				Console: l.log,
			},
		}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedController, controllerPath)
}

type jsRequest struct {
	Verb       string   `json:"verb"`
	Rest       string   `json:"rest"`
	Verbs      []string `json:"verbs"`
	Controller string   `json:"controller"`
	Actor      string   `json:"actor"`
}

// jsController runs a script that registered a "command" callback. State
// survives between calls for as long as the controller stays cached.
type jsController struct {
	loader *Loader
	script js.Script

	mutex sync.Mutex
	state string
}

func (j *jsController) output(ctx context.Context, who *actor.Actor, stderr bool) js.Callback {
	return func(rc *js.RunContext, info *v8go.FunctionCallbackInfo) *v8go.Value {
		body := strings.Join(rc.Strings(info), " ")
		var err error
		if stderr {
			_, err = j.loader.output.Stderr(ctx, who, CommandTopic, body, nil, who)
		} else {
			_, err = j.loader.output.Stdout(ctx, who, CommandTopic, body, nil, who)
		}
		if err != nil {
			return rc.Throw("%v", err)
		}
		return nil
	}
}

func (j *jsController) DoCommand(ctx context.Context, who *actor.Actor, entry *Entry, verb string, rest string) bool {
	j.mutex.Lock()
	defer j.mutex.Unlock()
	script := j.script
	script.State = j.state
	script.Callbacks = js.Callbacks{
		"send": j.output(ctx, who, false),
		"fail": j.output(ctx, who, true),
	}
	res, err := script.Call(ctx, jsCallback, jsRequest{
		Verb:       verb,
		Rest:       rest,
		Verbs:      entry.Verbs,
		Controller: entry.Controller,
		Actor:      who.Name(),
	}, j.loader.config.JSTimeout)
	if err != nil {
		j.loader.log.Warnw("running controller", "controller", script.Origin, "error", err)
		return false
	}
	j.state = res.State
	return res.Truthy
}
