package game

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gliderlabs/ssh"
	"github.com/zond/mudcore"
	"github.com/zond/mudcore/message"
	"github.com/zond/mudcore/prompt"
	"golang.org/x/term"
)

const (
	SSHTransport = "ssh"
)

// sshConn reads lines with a term.Terminal, which keeps the prompt intact
// while output is written.
type sshConn struct {
	sess ssh.Session
	term *term.Terminal

	mutex  sync.Mutex
	prompt string
}

func (s *sshConn) Write(b []byte) (int, error) {
	return s.term.Write(b)
}

func (s *sshConn) WritePrompt(b []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.prompt = string(b)
	s.term.SetPrompt(s.prompt)
	return nil
}

func (s *sshConn) ReadNext(noEcho bool) (string, error) {
	if noEcho {
		s.mutex.Lock()
		p := s.prompt
		s.mutex.Unlock()
		return s.term.ReadPassword(p)
	}
	return s.term.ReadLine()
}

func (s *sshConn) Close() error {
	return s.sess.Close()
}

func sshTerminal(pty ssh.Pty) string {
	if strings.Contains(pty.Term, "color") || strings.HasPrefix(pty.Term, "xterm") || strings.HasPrefix(pty.Term, "screen") {
		return message.ANSITerminal
	}
	return message.TextTerminal
}

// HandleSession serves an SSH session. The SSH user name is trusted as the
// user name.
func (g *Game) HandleSession(sess ssh.Session) {
	conn := &sshConn{
		sess:   sess,
		term:   term.NewTerminal(sess, string(prompt.DefaultPrompt)),
		prompt: string(prompt.DefaultPrompt),
	}
	login := Login{
		User:      sess.User(),
		Transport: SSHTransport,
		Terminal:  message.TextTerminal,
	}
	if pty, winCh, ok := sess.Pty(); ok {
		login.Terminal = sshTerminal(pty)
		login.Width, login.Height = pty.Window.Width, pty.Window.Height
		if err := conn.term.SetSize(pty.Window.Width, pty.Window.Height); err != nil {
			g.log.Debugw("sizing terminal", "error", err)
		}
		go func() {
			for win := range winCh {
				if err := conn.term.SetSize(win.Width, win.Height); err != nil {
					g.log.Debugw("resizing terminal", "error", err)
				}
			}
		}()
	}
	if err := g.Serve(sess.Context(), conn, login); err != nil && !errors.Is(err, io.EOF) {
		fmt.Fprintf(conn.term, "InternalServerError: %v\n", err)
		g.log.Errorw("serving ssh session", "user", sess.User(), "error", err, "stack", mudcore.StackTrace(err))
	}
}
