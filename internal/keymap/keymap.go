// Package keymap maps physical keys to output codes through a stack of
// layers.
package keymap

import (
	"errors"
	"fmt"
	"sort"

	"superkeys/internal/keycode"
	"superkeys/internal/layer"
)

// Stack is the set of active layers. Work is always on.
type Stack struct {
	active layer.Set
}

// NewStack returns a stack with only Work active.
func NewStack() *Stack {
	return &Stack{active: layer.Set(0).With(layer.Work)}
}

// On activates l.
func (s *Stack) On(l layer.Layer) {
	if l < layer.Count {
		s.active = s.active.With(l)
	}
}

// Off deactivates l. Work cannot be turned off.
func (s *Stack) Off(l layer.Layer) {
	if l != layer.Work {
		s.active = s.active.Without(l)
	}
}

// Active returns the active set.
func (s *Stack) Active() layer.Set { return s.active }

// Reset leaves only Work active.
func (s *Stack) Reset() { s.active = layer.Set(0).With(layer.Work) }

// Keymap holds per-layer overrides. A code missing from a layer, or mapped
// to Transparent, falls through to the next lower active layer. A code
// missing from every active layer maps to itself.
type Keymap struct {
	layers [layer.Count]map[keycode.Code]keycode.Code
}

// New returns an empty keymap.
func New() *Keymap {
	km := &Keymap{}
	for i := range km.layers {
		km.layers[i] = make(map[keycode.Code]keycode.Code)
	}
	return km
}

// Set maps from to to on layer l.
func (km *Keymap) Set(l layer.Layer, from, to keycode.Code) {
	if l < layer.Count {
		km.layers[l][from] = to
	}
}

// Lookup returns the mapping of code on layer l. Transparent entries report
// false.
func (km *Keymap) Lookup(l layer.Layer, code keycode.Code) (keycode.Code, bool) {
	if l >= layer.Count {
		return 0, false
	}
	to, ok := km.layers[l][code]
	if !ok || to == keycode.Transparent {
		return 0, false
	}
	return to, true
}

// Merge copies every entry of other over km.
func (km *Keymap) Merge(other *Keymap) {
	for l := layer.Work; l < layer.Count; l++ {
		for from, to := range other.layers[l] {
			km.layers[l][from] = to
		}
	}
}

// Len returns the number of entries on layer l.
func (km *Keymap) Len(l layer.Layer) int {
	if l >= layer.Count {
		return 0
	}
	return len(km.layers[l])
}

// Tables renders the keymap back into name tables, the form used in the
// config file.
func (km *Keymap) Tables() map[string]map[string]string {
	out := make(map[string]map[string]string)
	for l := layer.Work; l < layer.Count; l++ {
		if len(km.layers[l]) == 0 {
			continue
		}
		t := make(map[string]string, len(km.layers[l]))
		for from, to := range km.layers[l] {
			t[from.String()] = to.String()
		}
		out[l.String()] = t
	}
	return out
}

// FromTables builds a keymap from layer name → (key name → key name)
// tables. All errors are reported together.
func FromTables(tables map[string]map[string]string) (*Keymap, error) {
	km := New()
	var errs []error

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		l, err := layer.Parse(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for from, to := range tables[name] {
			fc, err := keycode.Parse(from)
			if err != nil {
				errs = append(errs, fmt.Errorf("keymap.%s: %w", name, err))
				continue
			}
			tc, err := keycode.Parse(to)
			if err != nil {
				errs = append(errs, fmt.Errorf("keymap.%s.%s: %w", name, from, err))
				continue
			}
			km.Set(l, fc, tc)
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return km, nil
}

// Resolver turns physical codes into output codes against a stack.
type Resolver struct {
	km    *Keymap
	stack *Stack

	// output each held key was resolved to on press
	held map[keycode.Code]keycode.Code
}

// NewResolver binds km to stack.
func NewResolver(km *Keymap, stack *Stack) *Resolver {
	return &Resolver{km: km, stack: stack, held: make(map[keycode.Code]keycode.Code)}
}

// SetKeymap swaps the keymap. Keys already held still release as what they
// were pressed as.
func (r *Resolver) SetKeymap(km *Keymap) { r.km = km }

// Keymap returns the current keymap.
func (r *Resolver) Keymap() *Keymap { return r.km }

// Resolve maps code. A release resolves to whatever its press did, so a
// layer change while the key is down cannot strand it.
func (r *Resolver) Resolve(code keycode.Code, pressed bool) keycode.Code {
	if !pressed {
		if out, ok := r.held[code]; ok {
			delete(r.held, code)
			return out
		}
		return r.lookup(code)
	}
	out := r.lookup(code)
	r.held[code] = out
	return out
}

// lookup walks down from the highest active layer.
func (r *Resolver) lookup(code keycode.Code) keycode.Code {
	active := r.stack.Active()
	for l := active.Highest(); ; l-- {
		if active.Has(l) || l == layer.Work {
			if to, ok := r.km.Lookup(l, code); ok {
				return to
			}
		}
		if l == layer.Work {
			return code
		}
	}
}

// Held returns the number of keys resolved on press and not yet released.
func (r *Resolver) Held() int { return len(r.held) }

// Reset forgets held keys.
func (r *Resolver) Reset() { clear(r.held) }
