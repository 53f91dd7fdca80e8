package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileLogger(t *testing.T) {
	dir := t.TempDir()
	c := DefaultConfig()
	c.Level = "warn"
	c.File = filepath.Join(dir, "mudcore.log")
	log, err := New(c)
	if err != nil {
		t.Fatal(err)
	}
	log.Infow("hidden")
	log.Warnw("shown", "key", "value")
	if err := log.Sync(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(c.File)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "hidden") || !strings.Contains(string(b), "shown") {
		t.Errorf("got %q", b)
	}
}

func TestBadLevel(t *testing.T) {
	if _, err := New(Config{Level: "loud"}); err == nil {
		t.Errorf("wanted error for unknown level")
	}
}

func TestOrNop(t *testing.T) {
	OrNop(nil).Infow("nowhere")
}
