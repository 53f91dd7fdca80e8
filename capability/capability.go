// Package capability defines the fixed set of capability tags an identity can
// carry. Presence of a tag is the only authorization check used for command
// access and message delivery.
package capability

import (
	"sort"
	"strings"
)

type Capability string

const (
	Avatar       Capability = "avatar"
	CommandGiver Capability = "commandGiver"
	Detail       Capability = "detail"
	ID           Capability = "id"
	Lock         Capability = "lock"
	Mobile       Capability = "mobile"
	Name         Capability = "name"
	Player       Capability = "player"
	Property     Capability = "property"
	Sensor       Capability = "sensor"
	Shell        Capability = "shell"
	Visible      Capability = "visible"
	Soul         Capability = "soul"
)

var known = map[Capability]bool{
	Avatar:       true,
	CommandGiver: true,
	Detail:       true,
	ID:           true,
	Lock:         true,
	Mobile:       true,
	Name:         true,
	Player:       true,
	Property:     true,
	Sensor:       true,
	Shell:        true,
	Visible:      true,
	Soul:         true,
}

// Known reports whether c is one of the enumerated tags.
func Known(c Capability) bool {
	return known[c]
}

// Set is an unordered collection of capabilities. The zero value is empty and
// ready to read, but must be made with Of or make before Add.
type Set map[Capability]struct{}

func Of(caps ...Capability) Set {
	s := make(Set, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

func (s Set) Has(c Capability) bool {
	_, found := s[c]
	return found
}

func (s Set) Add(caps ...Capability) {
	for _, c := range caps {
		s[c] = struct{}{}
	}
}

func (s Set) Remove(caps ...Capability) {
	for _, c := range caps {
		delete(s, c)
	}
}

// Sorted returns the capabilities in lexical order.
func (s Set) Sorted() []Capability {
	result := make([]Capability, 0, len(s))
	for c := range s {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i] < result[j]
	})
	return result
}

func (s Set) String() string {
	parts := make([]string, 0, len(s))
	for _, c := range s.Sorted() {
		parts = append(parts, string(c))
	}
	return "[" + strings.Join(parts, " ") + "]"
}
