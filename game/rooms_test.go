package game

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/cmds"
)

func TestLoadRooms(t *testing.T) {
	rooms, err := LoadRooms(cmds.FS)
	if err != nil {
		t.Fatal(err)
	}
	square, err := rooms.Load("/lobby//square/")
	if err != nil {
		t.Fatal(err)
	}
	if square.Name != "The square" || square.Zone() != "lobby" {
		t.Errorf("got %+v, want the lobby square", square)
	}
	if avatar, err := rooms.Avatar(square); err != nil || avatar != humanFlavor {
		t.Errorf("got %q, %v, want %q", avatar, err, humanFlavor)
	}

	workroom, err := rooms.Load(WorkroomPath("bess"))
	if err != nil {
		t.Fatal(err)
	}
	if workroom.Name != "Bess' workroom" || workroom.Zone() != "users" {
		t.Errorf("got %+v, want the workroom of bess", workroom)
	}
	if again, _ := rooms.Load(WorkroomPath("bess")); again != workroom {
		t.Errorf("workroom recreated")
	}

	for _, missing := range []string{"/nowhere", "/users/bess/kitchen", "/users/workroom"} {
		if _, err := rooms.Load(missing); !errors.Is(err, ErrNoSuchRoom) {
			t.Errorf("loading %q: got %v, want ErrNoSuchRoom", missing, err)
		}
	}
	if _, err := rooms.Avatar(&Room{Path: "/void/pit"}); !errors.Is(err, ErrNoSuchFlavor) {
		t.Errorf("got %v, want ErrNoSuchFlavor", err)
	}
	if diff := cmp.Diff([]string{"/lobby/square", "/users/bess/workroom"}, rooms.Paths()); diff != "" {
		t.Errorf("paths: %s", diff)
	}
}

func TestRoomsIsDir(t *testing.T) {
	rooms := NewRooms()
	rooms.Add(&Room{Path: "/lobby/hall/east"})
	for _, tc := range []struct {
		dir  string
		want bool
	}{
		{dir: "/", want: true},
		{dir: "/users", want: true},
		{dir: "/lobby", want: true},
		{dir: "/lobby/hall/", want: true},
		{dir: "/lobby/hall/east", want: false},
		{dir: "/lob", want: false},
		{dir: "/attic", want: false},
	} {
		if got := rooms.IsDir(tc.dir); got != tc.want {
			t.Errorf("IsDir(%q) = %v, want %v", tc.dir, got, tc.want)
		}
	}
}

func TestRoomsMove(t *testing.T) {
	rooms := NewRooms()
	hall, kitchen := &Room{Path: "/house/hall"}, &Room{Path: "/house/kitchen"}
	rooms.Add(hall)
	rooms.Add(kitchen)
	ada, bob := actor.New("Ada"), actor.New("Bob")

	rooms.Move(ada, hall)
	rooms.Move(bob, hall)
	rooms.Move(ada, kitchen)
	if got := rooms.Where(ada); got != kitchen {
		t.Errorf("ada in %v, want kitchen", got)
	}
	if got := hall.Occupants(); len(got) != 1 || got[0] != bob {
		t.Errorf("hall holds %v, want bob", got)
	}
	rooms.Remove(bob)
	rooms.Remove(bob)
	if len(hall.Occupants()) != 0 || rooms.Where(bob) != nil {
		t.Errorf("bob still in the hall")
	}
}
