package indicator

import "time"

// State is the resting indicator state after a transition.
type State uint8

const (
	StateOff State = iota
	StateBase
	StateOneshot
)

var stateNames = [...]string{"off", "base", "oneshot"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Transition is an animated change between resting states.
type Transition uint8

const (
	ToCtrl Transition = iota
	ToAlt
	ToGui
	ToQwer
	ToGame
	FromCtrl
	FromAlt
	FromGui
	FromQwer
	FromGame
	FromMultiple
	FlashNeutral
	FlashCtrl
	FlashAlt
	FlashGui
	FlashBitwig
	numTransitions
)

var transitionNames = [...]string{
	"to_ctrl", "to_alt", "to_gui", "to_qwer", "to_game",
	"from_ctrl", "from_alt", "from_gui", "from_qwer", "from_game", "from_multiple",
	"flash_neutral", "flash_ctrl", "flash_alt", "flash_gui", "flash_bitwig",
}

func (t Transition) String() string {
	if int(t) < len(transitionNames) {
		return transitionNames[t]
	}
	return "unknown"
}

// StateSpec describes a resting state. Breathing states swing between A and
// B, spending Period on each half.
type StateSpec struct {
	Breathing bool
	A, B      HSV
	Period    time.Duration
}

// TransitionSpec describes a transition: fade to Accent, hold it, then fade
// to the resting state.
type TransitionSpec struct {
	Accent  HSV
	FadeIn  time.Duration
	Hold    time.Duration
	FadeOut time.Duration
}

// Palette holds the named colors the tables are built from.
type Palette struct {
	Neutral         HSV
	OneshotA        HSV
	OneshotMidpoint HSV
	OneshotB        HSV
	Ctrl            HSV
	Alt             HSV
	Gui             HSV
	Qwer            HSV
	Game            HSV
	Bitwig          HSV
}

// DefaultPalette returns the stock colors at brightness limit.
func DefaultPalette(limit uint8) Palette {
	neutral := HSV{0, 0, limit}
	return Palette{
		Neutral:         neutral,
		OneshotA:        HSV{105, 255, limit},
		OneshotMidpoint: HSV{115, 255, limit},
		OneshotB:        HSV{125, 255, limit},
		Ctrl:            HSV{170, 255, limit},
		Alt:             HSV{80, 255, limit},
		Gui:             neutral,
		Qwer:            HSV{15, 255, limit},
		Game:            HSV{190, 255, limit},
		Bitwig:          HSV{8, 255, limit},
	}
}

// Timing is a fade-in/hold/fade-out triple.
type Timing struct {
	FadeIn, Hold, FadeOut time.Duration
}

// Stock timings.
var (
	TimingTo    = Timing{50 * time.Millisecond, 50 * time.Millisecond, 500 * time.Millisecond}
	TimingFrom  = Timing{50 * time.Millisecond, 0, 100 * time.Millisecond}
	TimingFlash = Timing{200 * time.Millisecond, 300 * time.Millisecond, 500 * time.Millisecond}
)

// Tables are the state and transition tables the animator runs.
type Tables struct {
	States      [3]StateSpec
	Transitions [numTransitions]TransitionSpec
}

// NewTables builds the tables from a palette and the three timings.
func NewTables(p Palette, to, from, flash Timing) Tables {
	spec := func(c HSV, tm Timing) TransitionSpec {
		return TransitionSpec{Accent: c, FadeIn: tm.FadeIn, Hold: tm.Hold, FadeOut: tm.FadeOut}
	}
	return Tables{
		States: [3]StateSpec{
			StateOff:     {A: HSV{}},
			StateBase:    {A: p.Neutral},
			StateOneshot: {Breathing: true, A: p.OneshotA, B: p.OneshotB, Period: 4 * time.Second},
		},
		Transitions: [numTransitions]TransitionSpec{
			ToCtrl:       spec(p.Ctrl, to),
			ToAlt:        spec(p.Alt, to),
			ToGui:        spec(p.Gui, to),
			ToQwer:       spec(p.Qwer, to),
			ToGame:       spec(p.Game, to),
			FromCtrl:     spec(p.Ctrl, from),
			FromAlt:      spec(p.Alt, from),
			FromGui:      spec(p.Gui, from),
			FromQwer:     spec(p.Qwer, from),
			FromGame:     spec(p.Game, from),
			FromMultiple: spec(p.OneshotMidpoint, from),
			FlashNeutral: spec(p.Neutral, flash),
			FlashCtrl:    spec(p.Ctrl, flash),
			FlashAlt:     spec(p.Alt, flash),
			FlashGui:     spec(p.Gui, flash),
			FlashBitwig:  spec(p.Bitwig, flash),
		},
	}
}

// DefaultTables returns the stock tables at full brightness.
func DefaultTables() Tables {
	return NewTables(DefaultPalette(255), TimingTo, TimingFrom, TimingFlash)
}
