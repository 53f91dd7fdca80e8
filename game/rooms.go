package game

import (
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/zond/mudcore"
	"github.com/zond/mudcore/actor"
	"github.com/zond/mudcore/lang"
	"gopkg.in/yaml.v3"
)

const (
	UsersDir     = "/users"
	workroomName = "workroom"
)

var (
	ErrNoSuchRoom   = fmt.Errorf("no such room")
	ErrNoSuchFlavor = fmt.Errorf("no flavor for zone")
)

type Room struct {
	Path        string `yaml:"path"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	occupants []*actor.Actor
}

// Zone is the first element of the room path.
func (r *Room) Zone() string {
	zone, _, _ := strings.Cut(strings.TrimPrefix(r.Path, "/"), "/")
	return zone
}

func (r *Room) Occupants() []*actor.Actor {
	return append([]*actor.Actor{}, r.occupants...)
}

type zoneSpec struct {
	Flavor string  `yaml:"flavor"`
	Rooms  []*Room `yaml:"rooms"`
}

type roomsSpec struct {
	Zones   map[string]zoneSpec `yaml:"zones"`
	Flavors map[string]string   `yaml:"flavors"`
}

// Rooms is the in memory world: rooms, the flavor of each zone, and where
// every identity is. Workrooms under UsersDir are created when first
// loaded.
type Rooms struct {
	rooms   map[string]*Room
	zones   map[string]string
	flavors map[string]string
	where   map[*actor.Actor]*Room
}

func NewRooms() *Rooms {
	return &Rooms{
		rooms:   map[string]*Room{},
		zones:   map[string]string{},
		flavors: map[string]string{},
		where:   map[*actor.Actor]*Room{},
	}
}

// LoadRooms reads rooms.yaml from fsys.
func LoadRooms(fsys fs.FS) (*Rooms, error) {
	data, err := fs.ReadFile(fsys, "rooms.yaml")
	if err != nil {
		return nil, mudcore.WithStack(err)
	}
	spec := &roomsSpec{}
	if err := yaml.Unmarshal(data, spec); err != nil {
		return nil, mudcore.WithStack(err)
	}
	r := NewRooms()
	for zone, z := range spec.Zones {
		r.SetFlavor(zone, z.Flavor)
		for _, room := range z.Rooms {
			room.Path = path.Clean(room.Path)
			r.Add(room)
		}
	}
	for flavor, avatar := range spec.Flavors {
		r.flavors[flavor] = avatar
	}
	return r, nil
}

func (r *Rooms) Add(room *Room) {
	r.rooms[room.Path] = room
}

func (r *Rooms) SetFlavor(zone string, flavor string) {
	r.zones[zone] = flavor
}

func (r *Rooms) SetAvatar(flavor string, avatar string) {
	r.flavors[flavor] = avatar
}

// Avatar returns the avatar factory name for the flavor of the room.
func (r *Rooms) Avatar(room *Room) (string, error) {
	flavor, found := r.zones[room.Zone()]
	if !found || flavor == "" {
		return "", mudcore.WithStack(fmt.Errorf("%w: %q", ErrNoSuchFlavor, room.Zone()))
	}
	avatar, found := r.flavors[flavor]
	if !found {
		return "", mudcore.WithStack(fmt.Errorf("%w: flavor %q has no avatar", ErrNoSuchFlavor, flavor))
	}
	return avatar, nil
}

func WorkroomPath(username string) string {
	return path.Join(UsersDir, username, workroomName)
}

func (r *Rooms) Load(roomPath string) (*Room, error) {
	roomPath = path.Clean(roomPath)
	if room, found := r.rooms[roomPath]; found {
		return room, nil
	}
	dir, base := path.Split(roomPath)
	if base == workroomName && path.Dir(path.Clean(dir)) == UsersDir {
		owner := path.Base(dir)
		room := &Room{
			Path:        roomPath,
			Name:        fmt.Sprintf("%s workroom", lang.Possessive(lang.Capitalize(owner))),
			Description: "A bare room with a desk, waiting to be furnished.",
		}
		r.Add(room)
		return room, nil
	}
	return nil, mudcore.WithStack(fmt.Errorf("%w: %q", ErrNoSuchRoom, roomPath))
}

func (r *Rooms) Where(a *actor.Actor) *Room {
	return r.where[a]
}

// Move puts a in room, leaving the room it was in.
func (r *Rooms) Move(a *actor.Actor, room *Room) {
	r.Remove(a)
	room.occupants = append(room.occupants, a)
	r.where[a] = room
}

func (r *Rooms) Remove(a *actor.Actor) {
	room, found := r.where[a]
	if !found {
		return
	}
	for idx, occupant := range room.occupants {
		if occupant == a {
			room.occupants = append(room.occupants[:idx], room.occupants[idx+1:]...)
			break
		}
	}
	delete(r.where, a)
}

// IsDir reports whether some room lives below dir.
func (r *Rooms) IsDir(dir string) bool {
	dir = path.Clean(dir)
	if dir == "/" || dir == UsersDir {
		return true
	}
	for roomPath := range r.rooms {
		if strings.HasPrefix(roomPath, dir+"/") {
			return true
		}
	}
	return false
}

func (r *Rooms) Paths() []string {
	result := make([]string, 0, len(r.rooms))
	for roomPath := range r.rooms {
		result = append(result, roomPath)
	}
	sort.Strings(result)
	return result
}
