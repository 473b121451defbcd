// Package layer names the keymap layers.
package layer

import (
	"fmt"
	"strings"
)

// Layer is a keymap layer index. Higher layers take precedence.
type Layer uint8

const (
	Work Layer = iota
	Qwer
	Game
	Symb
	Util
	Move
	Func

	// Count is the number of layers.
	Count
)

var names = [Count]string{"work", "qwer", "game", "symb", "util", "move", "func"}

func (l Layer) String() string {
	if l < Count {
		return names[l]
	}
	return fmt.Sprintf("layer(%d)", uint8(l))
}

// Parse resolves a layer name.
func Parse(s string) (Layer, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return Layer(i), nil
		}
	}
	return 0, fmt.Errorf("unknown layer %q", s)
}

// Set is a bitmask of active layers.
type Set uint8

// Has reports whether l is in the set.
func (s Set) Has(l Layer) bool { return s&(1<<l) != 0 }

// With returns s with l added.
func (s Set) With(l Layer) Set { return s | 1<<l }

// Without returns s with l removed.
func (s Set) Without(l Layer) Set { return s &^ (1 << l) }

// Highest returns the highest layer in the set, or Work when empty.
func (s Set) Highest() Layer {
	for l := Count - 1; l > Work; l-- {
		if s.Has(l) {
			return l
		}
	}
	return Work
}

// Layers lists the active layers, lowest first.
func (s Set) Layers() []Layer {
	var out []Layer
	for l := Work; l < Count; l++ {
		if s.Has(l) {
			out = append(out, l)
		}
	}
	return out
}

func (s Set) String() string {
	var parts []string
	for _, l := range s.Layers() {
		parts = append(parts, l.String())
	}
	return strings.Join(parts, ",")
}
