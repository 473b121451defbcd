// Package keycode defines the key codes superkeys works with and classifies
// them into the closed set of kinds the state machine reasons about.
//
// Physical codes use the Linux input-event numbering so values read from evdev
// can be used directly. Codes the daemon invents (super keys, timer and motion
// events, pointer edges, momentary layer keys) live in a reserved block that no
// kernel key uses.
package keycode

// Code is a physical or synthetic key code.
type Code uint16

// Linux key codes used by the default keymap and the name table.
const (
	None       Code = 0
	Esc        Code = 1
	Num1       Code = 2
	Num2       Code = 3
	Num3       Code = 4
	Num4       Code = 5
	Num5       Code = 6
	Num6       Code = 7
	Num7       Code = 8
	Num8       Code = 9
	Num9       Code = 10
	Num0       Code = 11
	Minus      Code = 12
	Equal      Code = 13
	Backspace  Code = 14
	Tab        Code = 15
	Q          Code = 16
	W          Code = 17
	E          Code = 18
	R          Code = 19
	T          Code = 20
	Y          Code = 21
	U          Code = 22
	I          Code = 23
	O          Code = 24
	P          Code = 25
	LeftBrace  Code = 26
	RightBrace Code = 27
	Enter      Code = 28
	LeftCtrl   Code = 29
	A          Code = 30
	S          Code = 31
	D          Code = 32
	F          Code = 33
	G          Code = 34
	H          Code = 35
	J          Code = 36
	K          Code = 37
	L          Code = 38
	Semicolon  Code = 39
	Apostrophe Code = 40
	Grave      Code = 41
	LeftShift  Code = 42
	Backslash  Code = 43
	Z          Code = 44
	X          Code = 45
	C          Code = 46
	V          Code = 47
	B          Code = 48
	N          Code = 49
	M          Code = 50
	Comma      Code = 51
	Dot        Code = 52
	Slash      Code = 53
	RightShift Code = 54
	KPAsterisk Code = 55
	LeftAlt    Code = 56
	Space      Code = 57
	CapsLock   Code = 58
	F1         Code = 59
	F2         Code = 60
	F3         Code = 61
	F4         Code = 62
	F5         Code = 63
	F6         Code = 64
	F7         Code = 65
	F8         Code = 66
	F9         Code = 67
	F10        Code = 68
	NumLock    Code = 69
	ScrollLock Code = 70
	KPDot      Code = 83
	Key102nd   Code = 86
	F11        Code = 87
	F12        Code = 88
	KPEnter    Code = 96
	RightCtrl  Code = 97
	KPSlash    Code = 98
	SysRq      Code = 99
	RightAlt   Code = 100
	Home       Code = 102
	Up         Code = 103
	PageUp     Code = 104
	Left       Code = 105
	Right      Code = 106
	End        Code = 107
	Down       Code = 108
	PageDown   Code = 109
	Insert     Code = 110
	Delete     Code = 111
	Mute       Code = 113
	VolumeDown Code = 114
	VolumeUp   Code = 115
	Power      Code = 116
	KPEqual    Code = 117
	Pause      Code = 119
	LeftMeta   Code = 125
	RightMeta  Code = 126
	Compose    Code = 127
	Undo       Code = 131
	Copy       Code = 133
	Paste      Code = 135
	Find       Code = 136
	Cut        Code = 137
	F13        Code = 183
	F24        Code = 194

	// BtnLeft is the first pointer button code; BtnLeft+i is button i.
	BtnLeft Code = 0x110
	BtnTask Code = 0x117

	// MaxPhysical is the highest code treated as a physical key.
	MaxPhysical Code = 0x2ff
)

// SyntheticBase starts the reserved block of daemon-defined codes.
const SyntheticBase Code = 0x7e00

const (
	SuperCtrl Code = SyntheticBase + iota
	SuperAlt
	SuperGui
	Base
	Timeout
	Motion
	MouseButton1
	MouseButton2
	MouseButton3
	MouseButton4
	MouseButton5
	MouseButton6
	MouseButton7
	MouseButton8
	WheelUp
	WheelDown
	WheelLeft
	WheelRight
	MoSymb
	MoUtil
	MoMove
	MoFunc
	syntheticEnd
)

// Transparent in a keymap layer defers to the next lower active layer.
const Transparent Code = 0xffff

// MouseButton returns the synthetic code for pointer button i (0 based).
func MouseButton(i int) Code {
	return MouseButton1 + Code(i)
}

// ButtonIndex returns the pointer button index of a MouseButton code.
func (c Code) ButtonIndex() (int, bool) {
	if c < MouseButton1 || c > MouseButton8 {
		return 0, false
	}
	return int(c - MouseButton1), true
}

// Kind is the closed classification of a code.
type Kind uint8

const (
	Other Kind = iota
	Modifiable
	Shift
	Modifier
	KindSuperCtrl
	KindSuperAlt
	KindSuperGui
	KindBase
	Momentary
	KindMouseButton
	KindWheel
	KindTimeout
	KindMotion
)

var kindNames = [...]string{
	Other:           "other",
	Modifiable:      "modifiable",
	Shift:           "shift",
	Modifier:        "modifier",
	KindSuperCtrl:   "super_ctrl",
	KindSuperAlt:    "super_alt",
	KindSuperGui:    "super_gui",
	KindBase:        "base",
	Momentary:       "momentary",
	KindMouseButton: "mouse_button",
	KindWheel:       "wheel",
	KindTimeout:     "timeout",
	KindMotion:      "motion",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// IsSuper reports whether k is one of the three super keys. Base is not a
// super key.
func (k Kind) IsSuper() bool {
	return k == KindSuperCtrl || k == KindSuperAlt || k == KindSuperGui
}

// IsInverse reports whether k is a pointer edge produced by the inverse
// mouse-key translator.
func (k Kind) IsInverse() bool {
	return k == KindMouseButton || k == KindWheel
}

// IsSynthetic reports whether k never comes from a physical key.
func (k Kind) IsSynthetic() bool {
	switch k {
	case KindMouseButton, KindWheel, KindTimeout, KindMotion,
		KindSuperCtrl, KindSuperAlt, KindSuperGui, KindBase:
		return true
	}
	return false
}

// Classify returns the kind of c.
func Classify(c Code) Kind {
	switch c {
	case SuperCtrl:
		return KindSuperCtrl
	case SuperAlt:
		return KindSuperAlt
	case SuperGui:
		return KindSuperGui
	case Base:
		return KindBase
	case Timeout:
		return KindTimeout
	case Motion:
		return KindMotion
	case LeftShift, RightShift:
		return Shift
	case LeftCtrl, RightCtrl, LeftAlt, RightAlt, LeftMeta, RightMeta:
		return Modifier
	case MoSymb, MoUtil, MoMove, MoFunc:
		return Momentary
	}
	switch {
	case c >= MouseButton1 && c <= MouseButton8:
		return KindMouseButton
	case c >= WheelUp && c <= WheelRight:
		return KindWheel
	case isModifiable(c):
		return Modifiable
	}
	return Other
}

// isModifiable covers the Linux codes of the HID keyboard-page keys from
// letters through F24: everything a held modifier can sensibly combine with.
// Japanese and Korean input keys, media and consumer keys fall outside.
func isModifiable(c Code) bool {
	switch {
	case c >= Esc && c <= KPDot:
		return true
	case c >= F13 && c <= F24:
		return true
	}
	switch c {
	case Key102nd, F11, F12, KPEnter, KPSlash, SysRq,
		Home, Up, PageUp, Left, Right, End, Down, PageDown, Insert, Delete,
		Power, KPEqual, Pause, Compose:
		return true
	}
	return false
}

// Reserved reports whether c lies in the daemon-defined block.
func (c Code) Reserved() bool {
	return c >= SyntheticBase && c < syntheticEnd
}
