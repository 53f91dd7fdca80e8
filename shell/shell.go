// Package shell implements the shell capability: working directory, home
// directory, directory stack and object expansion context.
package shell

import (
	"path"
	"strings"
	"sync"
)

// Dirs answers whether a path is a directory in the game file tree.
type Dirs interface {
	IsDir(dir string) bool
}

type DirsFunc func(dir string) bool

func (f DirsFunc) IsDir(dir string) bool {
	return f(dir)
}

type Shell struct {
	dirs Dirs

	mutex    sync.RWMutex
	cwd      string
	homedir  string
	dirstack []string
	context  string
}

func New(dirs Dirs) *Shell {
	return &Shell{
		dirs: dirs,
		cwd:  "/",
	}
}

func (s *Shell) Cwd() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.cwd
}

// SetCwd returns false, leaving the cwd unchanged, if dir is no directory.
func (s *Shell) SetCwd(dir string) bool {
	if !s.dirs.IsDir(dir) {
		return false
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.cwd = dir
	return true
}

func (s *Shell) Homedir() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.homedir
}

// SetHomedir returns false, leaving the homedir unchanged, if dir is no
// directory.
func (s *Shell) SetHomedir(dir string) bool {
	if !s.dirs.IsDir(dir) {
		return false
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.homedir = dir
	return true
}

// Expand resolves p against the cwd, with a leading ~ meaning the homedir.
func (s *Shell) Expand(p string) string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	switch {
	case p == "":
		return s.cwd
	case p == "~":
		return s.homedir
	case strings.HasPrefix(p, "~/"):
		return path.Join(s.homedir, p[2:])
	case path.IsAbs(p):
		return path.Clean(p)
	}
	return path.Join(s.cwd, p)
}

// Dirs returns the directory stack, most recently pushed first.
func (s *Shell) Dirs() []string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return append([]string{}, s.dirstack...)
}

func (s *Shell) PushDir(dir string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.dirstack = append([]string{dir}, s.dirstack...)
}

// PopDir returns false if the stack is empty.
func (s *Shell) PopDir() (string, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if len(s.dirstack) == 0 {
		return "", false
	}
	dir := s.dirstack[0]
	s.dirstack = s.dirstack[1:]
	return dir, true
}

func (s *Shell) ClearDirs() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.dirstack = nil
}

func (s *Shell) Context() string {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.context
}

func (s *Shell) SetContext(c string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.context = c
}
