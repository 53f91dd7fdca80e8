package game

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/buildkite/shellwords"
	"github.com/rodaine/table"
	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/capability"
	"github.com/zond/mudcore/command"
	"github.com/zond/mudcore/lang"
	"github.com/zond/mudcore/prompt"
	"github.com/zond/mudcore/shell"
)

const (
	quitRetries = 2
)

type builtin func(ctx context.Context, who *actor.Actor, verb string, rest string) bool

// register makes f the Go controller go:name. It only runs for the giver
// itself, typing at its own connection.
func (g *Game) register(name string, f builtin) {
	g.loader.Register(name, command.ControllerFunc(func(ctx context.Context, who *actor.Actor, _ *command.Entry, verb string, rest string) bool {
		giver, found := actor.Get[*command.Giver](who, capability.CommandGiver)
		if !found || !giver.CheckAccess(ctx, false) {
			return false
		}
		return f(ctx, who, verb, rest)
	}))
}

func (g *Game) registerControllers() {
	g.register("look", g.lookCommand)
	g.register("say", g.sayCommand)
	g.register("emote", g.emoteCommand)
	g.register("who", g.whoCommand)
	g.register("quit", g.quitCommand)
	g.register("prompt", g.promptCommand)
	g.register("descend", func(ctx context.Context, who *actor.Actor, _ string, _ string) bool {
		g.descend(ctx, who)
		return true
	})
	g.register("ascend", func(ctx context.Context, who *actor.Actor, _ string, _ string) bool {
		g.ascend(ctx, who)
		return true
	})
	g.register("observe", func(ctx context.Context, who *actor.Actor, verb string, rest string) bool {
		if rest == "" {
			g.stderr(ctx, who, commandTopic, "Observe whom?")
			return true
		}
		g.observe(ctx, who, rest)
		return true
	})
	g.register("unobserve", func(ctx context.Context, who *actor.Actor, _ string, _ string) bool {
		g.unobserve(ctx, who)
		return true
	})
	g.register("cd", g.shellCommand(g.cdCommand))
	g.register("pwd", g.shellCommand(g.pwdCommand))
	g.register("pushd", g.shellCommand(g.pushdCommand))
	g.register("popd", g.shellCommand(g.popdCommand))
	g.register("dirs", g.shellCommand(g.dirsCommand))
}

func (g *Game) look(ctx context.Context, who *actor.Actor) {
	room := g.rooms.Where(who)
	if room == nil {
		g.stderr(ctx, who, roomTopic, "You are nowhere.")
		return
	}
	others := []string{}
	for _, occupant := range room.Occupants() {
		if occupant != who {
			others = append(others, occupant.Name())
		}
	}
	text := fmt.Sprintf("%s\n%s", room.Name, room.Description)
	if len(others) > 0 {
		verb := "is"
		if len(others) > 1 {
			verb = "are"
		}
		text = fmt.Sprintf("%s\n%s %s here.", text, lang.Enumerator{}.Do(others...), verb)
	}
	g.stdout(ctx, who, roomTopic, "%s", text)
}

func (g *Game) lookCommand(ctx context.Context, who *actor.Actor, _ string, _ string) bool {
	g.look(ctx, who)
	return true
}

func (g *Game) sayCommand(ctx context.Context, who *actor.Actor, _ string, rest string) bool {
	if rest == "" {
		g.stderr(ctx, who, commandTopic, "Say what?")
		return true
	}
	g.stdout(ctx, who, "say", "You say: %s", rest)
	if room := g.rooms.Where(who); room != nil {
		body := fmt.Sprintf("%s says: %s", who.Name(), rest)
		for _, occupant := range room.Occupants() {
			if occupant == who {
				continue
			}
			if _, err := g.postal.Stdout(ctx, occupant, "say", body, nil, who); err != nil {
				g.log.Warnw("saying", "who", who, "to", occupant, "error", err)
			}
		}
	}
	return true
}

// emoteCommand shows "<name> <rest>" for emote, and "<name> <verb>s" for
// other verbs, to who and the room.
func (g *Game) emoteCommand(ctx context.Context, who *actor.Actor, verb string, rest string) bool {
	var text string
	switch verb {
	case "emote", ":":
		if rest == "" {
			g.stderr(ctx, who, commandTopic, "Emote what?")
			return true
		}
		text = fmt.Sprintf("%s %s", who.Name(), rest)
	default:
		text = fmt.Sprintf("%s %ss.", who.Name(), verb)
		if rest != "" {
			text = fmt.Sprintf("%s %ss %s.", who.Name(), verb, rest)
		}
	}
	g.stdout(ctx, who, "emote", "%s", text)
	if room := g.rooms.Where(who); room != nil {
		g.tellRoom(ctx, room, who, "%s", text)
	}
	return true
}

func (g *Game) whoCommand(ctx context.Context, who *actor.Actor, _ string, _ string) bool {
	buf := &bytes.Buffer{}
	tbl := table.New("User", "Playing", "Transport", "Connected").WithWriter(buf)
	count := 0
	for _, info := range g.connections.All() {
		if info.Interactive == nil {
			continue
		}
		name, err := g.storage.Username(ctx, g.sessions.User(info.Session))
		if err != nil {
			continue
		}
		count++
		tbl.AddRow(name, info.Interactive.Name(), info.Transport, time.Since(info.Connected).Round(time.Second))
	}
	tbl.Print()
	g.stdout(ctx, who, "who", "%s connected.\n%s", lang.Capitalize(lang.Card(count, "user")), strings.TrimRight(buf.String(), "\n"))
	return true
}

func (g *Game) quitCommand(ctx context.Context, who *actor.Actor, _ string, _ string) bool {
	stack := g.prompts[who]
	if stack == nil {
		return false
	}
	prompt.Select(stack, "Really quit?", []string{"yes", "no"}, quitRetries, func(ctx context.Context, option string) error {
		if option != "yes" {
			g.stdout(ctx, who, systemTopic, "Good, stay a while.")
			return nil
		}
		g.stdout(ctx, who, systemTopic, "Goodbye.")
		if connID, found := g.connections.ConnectionOf(who); found {
			if conn, found := g.conns.GetHas(connID); found {
				if err := conn.Close(); err != nil {
					g.log.Debugw("closing connection", "connection", connID, "error", err)
				}
			}
		}
		return nil
	})
	return true
}

// promptCommand sets the shell context shown in the prompt, or the whole
// prompt for identities without a shell. Without text it restores the
// default.
func (g *Game) promptCommand(ctx context.Context, who *actor.Actor, _ string, rest string) bool {
	if sh, found := actor.Get[*shell.Shell](who, capability.Shell); found {
		sh.SetContext(rest)
		g.restorePrompt(who)
		return true
	}
	if rest == "" {
		g.restorePrompt(who)
		return true
	}
	if stack := g.prompts[who]; stack != nil {
		stack.Set(prompt.Text(rest+" "), nil, nil)
	}
	return true
}

type shellBuiltin func(ctx context.Context, who *actor.Actor, sh *shell.Shell, verb string, args []string)

// shellCommand runs f with the shell of who and the words of the rest of
// the line.
func (g *Game) shellCommand(f shellBuiltin) builtin {
	return func(ctx context.Context, who *actor.Actor, verb string, rest string) bool {
		sh, found := actor.Get[*shell.Shell](who, capability.Shell)
		if !found {
			return false
		}
		args, err := shellwords.SplitPosix(rest)
		if err != nil {
			g.stderr(ctx, who, commandTopic, "%s: %v", verb, err)
			return true
		}
		f(ctx, who, sh, verb, args)
		return true
	}
}

func (g *Game) chdir(ctx context.Context, who *actor.Actor, sh *shell.Shell, verb string, dir string) bool {
	target := sh.Expand(dir)
	if !sh.SetCwd(target) {
		g.stderr(ctx, who, commandTopic, "%s: %s: No such directory", verb, dir)
		return false
	}
	return true
}

func (g *Game) cdCommand(ctx context.Context, who *actor.Actor, sh *shell.Shell, verb string, args []string) {
	switch len(args) {
	case 0:
		g.chdir(ctx, who, sh, verb, "~")
	case 1:
		g.chdir(ctx, who, sh, verb, args[0])
	default:
		g.stderr(ctx, who, commandTopic, "%s: too many arguments", verb)
	}
}

func (g *Game) pwdCommand(ctx context.Context, who *actor.Actor, sh *shell.Shell, _ string, _ []string) {
	g.stdout(ctx, who, commandTopic, "%s", sh.Cwd())
}

func (g *Game) dirsCommand(ctx context.Context, who *actor.Actor, sh *shell.Shell, _ string, _ []string) {
	g.stdout(ctx, who, commandTopic, "%s", strings.Join(append([]string{sh.Cwd()}, sh.Dirs()...), " "))
}

// pushdCommand changes to the given directory remembering the current one,
// or without arguments swaps the current directory with the newest
// remembered one.
func (g *Game) pushdCommand(ctx context.Context, who *actor.Actor, sh *shell.Shell, verb string, args []string) {
	old := sh.Cwd()
	switch len(args) {
	case 0:
		top, found := sh.PopDir()
		if !found {
			g.stderr(ctx, who, commandTopic, "%s: no other directory", verb)
			return
		}
		if !g.chdir(ctx, who, sh, verb, top) {
			sh.PushDir(top)
			return
		}
	case 1:
		if !g.chdir(ctx, who, sh, verb, args[0]) {
			return
		}
	default:
		g.stderr(ctx, who, commandTopic, "%s: too many arguments", verb)
		return
	}
	sh.PushDir(old)
	g.dirsCommand(ctx, who, sh, verb, nil)
}

func (g *Game) popdCommand(ctx context.Context, who *actor.Actor, sh *shell.Shell, verb string, _ []string) {
	top, found := sh.PopDir()
	if !found {
		g.stderr(ctx, who, commandTopic, "%s: directory stack empty", verb)
		return
	}
	if !g.chdir(ctx, who, sh, verb, top) {
		return
	}
	g.dirsCommand(ctx, who, sh, verb, nil)
}
