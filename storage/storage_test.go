package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/bxcodec/faker/v4"
	"github.com/google/go-cmp/cmp"
)

func withStorage(t *testing.T, f func(s *Storage)) {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "mudcore.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	f(s)
}

func TestEnsureUser(t *testing.T) {
	withStorage(t, func(s *Storage) {
		ctx := context.Background()
		name := faker.Username()
		first, err := s.EnsureUser(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		second, err := s.EnsureUser(ctx, name)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("EnsureUser twice (-first +second):\n%s", diff)
		}
		got, err := s.Username(ctx, first.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got != name {
			t.Errorf("got %q, want %q", got, name)
		}
		users, err := s.Users(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(users) != 1 {
			t.Errorf("got %v users, want 1", users)
		}
	})
}

func TestMissing(t *testing.T) {
	withStorage(t, func(s *Storage) {
		ctx := context.Background()
		if _, err := s.LoadUser(ctx, "nobody"); !errors.Is(err, ErrNoSuchUser) {
			t.Errorf("got %v, want ErrNoSuchUser", err)
		}
		if _, err := s.Username(ctx, "nobody"); !errors.Is(err, ErrNoSuchUser) {
			t.Errorf("got %v, want ErrNoSuchUser", err)
		}
		if _, err := s.LoadPlayer(ctx, "nobody"); !errors.Is(err, ErrNoSuchPlayer) {
			t.Errorf("got %v, want ErrNoSuchPlayer", err)
		}
		if err := s.SetLastRoom(ctx, "nobody", "/void"); !errors.Is(err, ErrNoSuchPlayer) {
			t.Errorf("got %v, want ErrNoSuchPlayer", err)
		}
	})
}

func TestPlayers(t *testing.T) {
	withStorage(t, func(s *Storage) {
		ctx := context.Background()
		user, err := s.EnsureUser(ctx, faker.Username())
		if err != nil {
			t.Fatal(err)
		}
		players, err := s.Players(ctx, user.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(players) != 0 {
			t.Fatalf("got %v, want no players", players)
		}
		first, err := s.NewPlayer(ctx, user.ID)
		if err != nil {
			t.Fatal(err)
		}
		second, err := s.NewPlayer(ctx, user.ID)
		if err != nil {
			t.Fatal(err)
		}
		if err := s.SetLastSession(ctx, first.ID, "session-1"); err != nil {
			t.Fatal(err)
		}
		if err := s.SetLastRoom(ctx, first.ID, "/users/x/workroom"); err != nil {
			t.Fatal(err)
		}
		first.LastSession = "session-1"
		first.LastRoom = "/users/x/workroom"
		players, err = s.Players(ctx, user.ID)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff([]Player{*first, *second}, players); diff != "" {
			t.Errorf("Players (-want +got):\n%s", diff)
		}
		loaded, err := s.LoadPlayer(ctx, first.ID)
		if err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(first, loaded); diff != "" {
			t.Errorf("LoadPlayer (-want +got):\n%s", diff)
		}
	})
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mudcore.sqlite")
	s, err := New(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	user, err := s.EnsureUser(ctx, "ada")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s, err = New(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	loaded, err := s.LoadUser(ctx, "ada")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.ID != user.ID {
		t.Errorf("got %q, want %q", loaded.ID, user.ID)
	}
}
