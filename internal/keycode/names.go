package keycode

import (
	"fmt"
	"strconv"
	"strings"
)

var codeNames = map[Code]string{
	Esc: "ESC", Num1: "1", Num2: "2", Num3: "3", Num4: "4", Num5: "5", Num6: "6", Num7: "7",
	Num8: "8", Num9: "9", Num0: "0", Minus: "MINUS", Equal: "EQUAL", Backspace: "BACKSPACE",
	Tab: "TAB", Q: "Q", W: "W", E: "E", R: "R", T: "T", Y: "Y", U: "U", I: "I", O: "O", P: "P",
	LeftBrace: "LEFTBRACE", RightBrace: "RIGHTBRACE", Enter: "ENTER", LeftCtrl: "LEFTCTRL",
	A: "A", S: "S", D: "D", F: "F", G: "G", H: "H", J: "J", K: "K", L: "L",
	Semicolon: "SEMICOLON", Apostrophe: "APOSTROPHE", Grave: "GRAVE", LeftShift: "LEFTSHIFT",
	Backslash: "BACKSLASH", Z: "Z", X: "X", C: "C", V: "V", B: "B", N: "N", M: "M",
	Comma: "COMMA", Dot: "DOT", Slash: "SLASH", RightShift: "RIGHTSHIFT", KPAsterisk: "KPASTERISK",
	LeftAlt: "LEFTALT", Space: "SPACE", CapsLock: "CAPSLOCK",
	F1: "F1", F2: "F2", F3: "F3", F4: "F4", F5: "F5", F6: "F6", F7: "F7", F8: "F8", F9: "F9",
	F10: "F10", F11: "F11", F12: "F12", NumLock: "NUMLOCK", ScrollLock: "SCROLLLOCK",
	RightCtrl: "RIGHTCTRL", SysRq: "SYSRQ", RightAlt: "RIGHTALT", Home: "HOME", Up: "UP",
	PageUp: "PAGEUP", Left: "LEFT", Right: "RIGHT", End: "END", Down: "DOWN", PageDown: "PAGEDOWN",
	Insert: "INSERT", Delete: "DELETE", Mute: "MUTE", VolumeDown: "VOLUMEDOWN", VolumeUp: "VOLUMEUP",
	Power: "POWER", Pause: "PAUSE", LeftMeta: "LEFTMETA", RightMeta: "RIGHTMETA", Compose: "COMPOSE",
	Undo: "UNDO", Copy: "COPY", Paste: "PASTE", Find: "FIND", Cut: "CUT",

	SuperCtrl: "SUPER_CTRL", SuperAlt: "SUPER_ALT", SuperGui: "SUPER_GUI", Base: "BASE",
	Timeout: "TIMEOUT", Motion: "MOTION",
	MouseButton1: "MOUSE_BUTTON_1", MouseButton2: "MOUSE_BUTTON_2", MouseButton3: "MOUSE_BUTTON_3",
	MouseButton4: "MOUSE_BUTTON_4", MouseButton5: "MOUSE_BUTTON_5", MouseButton6: "MOUSE_BUTTON_6",
	MouseButton7: "MOUSE_BUTTON_7", MouseButton8: "MOUSE_BUTTON_8",
	WheelUp: "WHEEL_UP", WheelDown: "WHEEL_DOWN", WheelLeft: "WHEEL_LEFT", WheelRight: "WHEEL_RIGHT",
	MoSymb: "MO_SYMB", MoUtil: "MO_UTIL", MoMove: "MO_MOVE", MoFunc: "MO_FUNC",
	Transparent: "TRANSPARENT",
}

var nameCodes = func() map[string]Code {
	m := make(map[string]Code, len(codeNames)+16)
	for c, n := range codeNames {
		m[n] = c
	}
	for i := F13; i <= F24; i++ {
		n := "F" + strconv.Itoa(int(i-F13)+13)
		codeNames[i] = n
		m[n] = i
	}
	aliases := map[string]Code{
		"TRNS": Transparent, "_______": Transparent, "NO": None, "NONE": None,
		"LCTRL": LeftCtrl, "RCTRL": RightCtrl, "LSHIFT": LeftShift, "RSHIFT": RightShift,
		"LALT": LeftAlt, "RALT": RightAlt, "LGUI": LeftMeta, "RGUI": RightMeta,
		"LEFTGUI": LeftMeta, "RIGHTGUI": RightMeta, "ESCAPE": Esc, "CAPS": CapsLock,
		"DEL": Delete, "BSPC": Backspace, "PGUP": PageUp, "PGDN": PageDown,
	}
	for n, c := range aliases {
		m[n] = c
	}
	return m
}()

// Parse resolves a key name. Names are case insensitive and may carry a
// KEY_ or KC_ prefix; numeric values ("0x1e", "30") are accepted as-is.
func Parse(name string) (Code, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "KEY_")
	n = strings.TrimPrefix(n, "KC_")
	if c, ok := nameCodes[n]; ok {
		return c, nil
	}
	if v, err := strconv.ParseUint(n, 0, 16); err == nil {
		return Code(v), nil
	}
	return None, fmt.Errorf("unknown key name %q", name)
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("0x%04x", uint16(c))
}
