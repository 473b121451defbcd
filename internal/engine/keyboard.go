package engine

import (
	"sort"

	"superkeys/internal/keycode"
)

// keyboard is the output keyboard state: keys passed through and still
// down, plus modifiers the state machine registered on its own. A modifier
// is down on the output while either holds it.
type keyboard struct {
	emit func(code keycode.Code, down bool)

	held map[keycode.Code]struct{}
	mods keycode.Mods
}

func newKeyboard(emit func(keycode.Code, bool)) *keyboard {
	return &keyboard{emit: emit, held: make(map[keycode.Code]struct{})}
}

func (k *keyboard) registered(c keycode.Code) bool {
	m := keycode.ModOf(c)
	return m != 0 && k.mods&m != 0
}

// Key applies a passed-through edge. Releases of keys that are not down,
// because Clear already let go of them, are dropped.
func (k *keyboard) Key(c keycode.Code, down bool) {
	_, isHeld := k.held[c]
	if down {
		k.held[c] = struct{}{}
		if !k.registered(c) {
			k.emit(c, true)
		}
		return
	}
	if !isHeld {
		return
	}
	delete(k.held, c)
	if !k.registered(c) {
		k.emit(c, false)
	}
}

func (k *keyboard) RegisterMods(m keycode.Mods) {
	for _, c := range (m &^ k.mods).Codes() {
		k.mods |= keycode.ModOf(c)
		if _, ok := k.held[c]; !ok {
			k.emit(c, true)
		}
	}
}

func (k *keyboard) UnregisterMods(m keycode.Mods) {
	for _, c := range (m & k.mods).Codes() {
		k.mods &^= keycode.ModOf(c)
		if _, ok := k.held[c]; !ok {
			k.emit(c, false)
		}
	}
}

func (k *keyboard) release(keep func(keycode.Code) bool) {
	codes := make([]keycode.Code, 0, len(k.held))
	for c := range k.held {
		if !keep(c) {
			codes = append(codes, c)
		}
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	for _, c := range codes {
		delete(k.held, c)
		if !k.registered(c) {
			k.emit(c, false)
		}
	}
}

// Clear releases everything.
func (k *keyboard) Clear() {
	k.release(func(keycode.Code) bool { return false })
	k.UnregisterMods(k.mods)
}

// ClearButMods releases every held key that is not a modifier.
func (k *keyboard) ClearButMods() {
	k.release(func(c keycode.Code) bool { return keycode.ModOf(c) != 0 })
}

func (k *keyboard) Tap(c keycode.Code) {
	k.emit(c, true)
	k.emit(c, false)
}

// Mods returns every modifier down on the output.
func (k *keyboard) Mods() keycode.Mods {
	m := k.mods
	for c := range k.held {
		m |= keycode.ModOf(c)
	}
	return m
}

// Held returns the number of passed-through keys still down.
func (k *keyboard) Held() int { return len(k.held) }
