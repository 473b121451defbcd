package fsm

import (
	"superkeys/internal/indicator"
	"superkeys/internal/keycode"
	"superkeys/internal/layer"
)

func (m *Machine) neutral(ev Event) action {
	if !ev.Pressed {
		return actPass
	}
	switch ev.Kind {
	case keycode.KindSuperCtrl:
		if m.deps.ButtonsHeld() {
			m.node = CtrlMouse
			m.deps.Keyboard.RegisterMods(keycode.LCtrl)
		} else {
			m.node = CtrlAmbiguous
			m.deps.Timer.Arm(m.params.CtrlTerm)
		}
		return actSuppress
	case keycode.KindSuperAlt:
		if m.deps.ButtonsHeld() {
			m.node = AltMouse
			m.deps.Keyboard.RegisterMods(keycode.LAlt)
		} else {
			m.node = AltAmbiguous
			m.deps.Timer.Arm(m.params.AltTerm)
			m.deps.Keyboard.ClearButMods()
			m.deps.Layers.On(layer.Move)
		}
		return actSuppress
	case keycode.KindSuperGui:
		m.node = GuiAmbiguous
		m.deps.Timer.Arm(m.params.GuiTerm)
		m.deps.Keyboard.ClearButMods()
		m.deps.Layers.On(layer.Func)
		return actSuppress
	case keycode.KindBase:
		if m.base == layer.Work {
			m.node = BaseAmbiguous
			m.deps.Timer.Arm(m.params.BaseTerm)
			return actSuppress
		}
		switch m.base {
		case layer.Qwer:
			m.indicate(indicator.FromQwer, indicator.StateOff)
			m.deps.Layers.Off(layer.Qwer)
		case layer.Game:
			m.indicate(indicator.FromGame, indicator.StateOff)
			m.deps.Layers.Off(layer.Game)
		}
		m.base = layer.Work
		m.toNeutral()
		return actSuppress
	}
	return actPass
}

// ctrlCombo handles the branches CtrlAmbiguous and CtrlHeld share: another
// key or a click turns the super key into Ctrl.
func (m *Machine) ctrlCombo(ev Event) (action, bool) {
	if !ev.Pressed {
		return 0, false
	}
	switch ev.Kind {
	case keycode.Modifiable:
		m.node = CtrlModifier
		m.deps.Timer.Disarm()
		m.deps.Keyboard.RegisterMods(keycode.LCtrl)
		return actPass, true
	case keycode.KindMouseButton:
		m.node = CtrlMouse
		m.deps.Timer.Disarm()
		m.deps.Keyboard.RegisterMods(keycode.LCtrl)
		m.deps.Buffer.On(ev.Time, m.params.BufferDuration)
		return actPass, true
	case keycode.KindWheel:
		m.node = CtrlMouse
		mods := keycode.LCtrl
		if m.persistent {
			mods |= keycode.LAlt
		}
		m.deps.Keyboard.RegisterMods(mods)
		m.deps.Timer.Disarm()
		m.deps.Buffer.On(ev.Time, m.params.BufferDuration)
		return actPass, true
	}
	return 0, false
}

func (m *Machine) ctrlAmbiguous(ev Event) action {
	if act, ok := m.ctrlCombo(ev); ok {
		return act
	}
	switch {
	case released(ev, keycode.KindSuperCtrl):
		m.node = UtilOneshotWaiting
		m.deps.Timer.Disarm()
		m.deps.Keyboard.ClearButMods()
		m.deps.Layers.On(layer.Util)
		m.deps.Passthrough.SetPointer(true, true)
		m.deps.Watcher.Arm(m.params.Deadzone)
		if m.persistent {
			m.deps.Scroller.On(m.params.BitwigScroll)
		} else {
			m.deps.Scroller.On(m.params.Scroll)
		}
		m.indicate(indicator.ToCtrl, indicator.StateOneshot)
		return actSuppress
	case ev.Kind == keycode.KindTimeout:
		m.node = CtrlHeld
		m.deps.Timer.Arm(m.params.LongHoldTerm)
		return actSuppress
	case superPress(ev):
		m.toNeutral()
		return actRedispatch
	}
	return actSuppress
}

func (m *Machine) ctrlHeld(ev Event) action {
	if act, ok := m.ctrlCombo(ev); ok {
		return act
	}
	switch {
	case ev.Kind == keycode.KindTimeout:
		m.setPersistent(!m.persistent)
		m.toNeutral()
		return actSuppress
	case released(ev, keycode.KindSuperCtrl):
		m.toNeutral()
		return actSuppress
	case superPress(ev):
		m.toNeutral()
		return actRedispatch
	}
	return actSuppress
}

// ctrlModifier covers CtrlModifier and, with mouse set, CtrlMouse.
func (m *Machine) ctrlModifier(ev Event, mouse bool) action {
	switch {
	case ev.Kind == keycode.Modifiable:
		return actPass
	case mouse && ev.Kind.IsInverse():
		return actPass
	case released(ev, keycode.KindSuperCtrl):
		m.toNeutral()
		return actSuppress
	case superPress(ev):
		m.toNeutral()
		return actRedispatch
	}
	return actSuppress
}

func (m *Machine) utilWaiting(ev Event) action {
	switch {
	case physicalPress(ev):
		m.node = UtilOneshotActive
		m.deps.Watcher.Disarm()
		return actPass
	case ev.Kind == keycode.KindMotion:
		m.node = Dragscroll
		m.deps.Watcher.Disarm()
		m.deps.Layers.Off(layer.Util)
		return actSuppress
	case ev.Pressed && ev.Kind == keycode.KindSuperCtrl:
		m.indicate(indicator.FromCtrl, m.resting())
		m.toNeutral()
		return actSuppress
	case superPress(ev):
		m.node = CompositeOneshotWaiting
		m.deps.Scroller.Off()
		m.deps.Passthrough.SetPointer(false, false)
		m.deps.Watcher.Disarm()
		m.deps.Layers.Off(layer.Util)
		if ev.Kind == keycode.KindSuperAlt {
			m.bits = keycode.LCtrl | keycode.LAlt
			m.indicate(indicator.FlashAlt, indicator.StateOneshot)
		} else {
			m.bits = keycode.LCtrl | keycode.LGui
			m.indicate(indicator.FlashGui, indicator.StateOneshot)
		}
		return actSuppress
	}
	return actSuppress
}

func (m *Machine) utilActive(ev Event) action {
	if !ev.Pressed {
		m.indicate(indicator.FromCtrl, m.resting())
		m.toNeutral()
	}
	return actSuppress
}

func (m *Machine) dragscroll(ev Event) action {
	switch {
	case ev.Pressed && ev.Kind == keycode.KindSuperCtrl:
		m.node = CtrlHeld
		m.deps.Scroller.Off()
		m.deps.Passthrough.SetPointer(false, false)
		m.indicate(indicator.FromCtrl, m.resting())
	case ev.Kind.IsSynthetic():
	case ev.Pressed:
		m.indicate(indicator.FromCtrl, m.resting())
		m.toNeutral()
	}
	return actSuppress
}

// altAmbiguous covers AltAmbiguous and, with ambiguous unset, AltHeld.
func (m *Machine) altAmbiguous(ev Event, ambiguous bool) action {
	switch {
	case physicalPress(ev) || ev.Kind == keycode.KindWheel:
		m.node = MoveMomentary
		if ambiguous {
			m.deps.Timer.Disarm()
		}
		if ev.Kind == keycode.KindWheel {
			m.deps.Keyboard.Tap(arrowFor(ev.Code))
			return actSuppress
		}
		return actPass
	case ev.Pressed && ev.Kind == keycode.KindMouseButton:
		m.node = AltMouse
		if ambiguous {
			m.deps.Timer.Disarm()
		}
		m.deps.Layers.Off(layer.Move)
		m.deps.Keyboard.RegisterMods(keycode.LAlt)
		m.deps.Buffer.On(ev.Time, m.params.BufferDuration)
		return actPass
	case released(ev, keycode.KindSuperAlt):
		if !ambiguous {
			m.toNeutral()
			return actSuppress
		}
		m.node = CompositeOneshotWaiting
		m.deps.Timer.Disarm()
		m.deps.Layers.Off(layer.Move)
		m.bits = keycode.LAlt
		m.indicate(indicator.ToAlt, indicator.StateOneshot)
		return actSuppress
	case ambiguous && ev.Kind == keycode.KindTimeout:
		m.node = AltHeld
		return actSuppress
	case superPress(ev):
		m.toNeutral()
		return actRedispatch
	}
	return actSuppress
}

func (m *Machine) moveMomentary(ev Event) action {
	switch {
	case !ev.Kind.IsSynthetic():
		return actPass
	case ev.Kind == keycode.KindWheel:
		m.deps.Keyboard.Tap(arrowFor(ev.Code))
		return actSuppress
	case released(ev, keycode.KindSuperAlt):
		m.toNeutral()
		return actSuppress
	case superPress(ev):
		m.toNeutral()
		return actRedispatch
	}
	return actSuppress
}

func (m *Machine) altMouse(ev Event) action {
	switch {
	case ev.Kind == keycode.Modifiable || ev.Kind.IsInverse():
		return actPass
	case released(ev, keycode.KindSuperAlt):
		m.toNeutral()
		return actSuppress
	case superPress(ev):
		m.toNeutral()
		return actRedispatch
	}
	return actSuppress
}

func (m *Machine) guiAmbiguous(ev Event) action {
	switch {
	case physicalPress(ev):
		m.node = FuncMomentary
		m.deps.Timer.Disarm()
		return actPass
	case released(ev, keycode.KindSuperGui):
		m.node = CompositeOneshotWaiting
		m.deps.Timer.Disarm()
		m.deps.Layers.Off(layer.Func)
		m.bits = keycode.LGui
		m.indicate(indicator.ToGui, indicator.StateOneshot)
		return actSuppress
	case ev.Kind == keycode.KindTimeout:
		m.node = GuiHeld
		return actSuppress
	case superPress(ev):
		m.toNeutral()
		return actRedispatch
	}
	return actSuppress
}

func (m *Machine) guiHeld(ev Event) action {
	switch {
	case physicalPress(ev):
		m.node = FuncMomentary
		return actPass
	case released(ev, keycode.KindSuperGui):
		m.toNeutral()
		return actSuppress
	case superPress(ev):
		m.toNeutral()
		return actRedispatch
	}
	return actSuppress
}

func (m *Machine) funcMomentary(ev Event) action {
	switch {
	case !ev.Kind.IsSynthetic():
		return actPass
	case released(ev, keycode.KindSuperGui):
		m.toNeutral()
		return actSuppress
	case superPress(ev):
		m.toNeutral()
		return actRedispatch
	}
	return actSuppress
}

var compositeBits = map[keycode.Kind]keycode.Mods{
	keycode.KindSuperCtrl: keycode.LCtrl,
	keycode.KindSuperAlt:  keycode.LAlt,
	keycode.KindSuperGui:  keycode.LGui,
}

var (
	flashFor = map[keycode.Mods]indicator.Transition{
		keycode.LCtrl: indicator.FlashCtrl,
		keycode.LAlt:  indicator.FlashAlt,
		keycode.LGui:  indicator.FlashGui,
	}
	fromFor = map[keycode.Mods]indicator.Transition{
		keycode.LCtrl: indicator.FromCtrl,
		keycode.LAlt:  indicator.FromAlt,
		keycode.LGui:  indicator.FromGui,
	}
)

// fromTransition picks the exit transition for the accumulated bits.
func fromTransition(bits keycode.Mods) indicator.Transition {
	if t, ok := fromFor[bits]; ok {
		return t
	}
	return indicator.FromMultiple
}

func (m *Machine) compositeWaiting(ev Event) action {
	if ev.Pressed && ev.Kind == keycode.Modifiable {
		m.node = CompositeOneshotActive
		m.deps.Keyboard.RegisterMods(m.bits)
		return actPass
	}
	if !superPress(ev) {
		return actSuppress
	}
	bit := compositeBits[ev.Kind]
	if m.bits&bit == 0 {
		m.bits |= bit
		m.indicate(flashFor[bit], indicator.StateOneshot)
		return actSuppress
	}
	// Pressing a super key that is already part of the composition cancels
	// all of it.
	m.indicate(fromTransition(m.bits), m.resting())
	m.toNeutral()
	return actSuppress
}

func (m *Machine) compositeActive(ev Event) action {
	if !ev.Pressed {
		m.indicate(fromTransition(m.bits), m.resting())
		m.toNeutral()
	}
	return actSuppress
}

func (m *Machine) baseAmbiguous(ev Event) action {
	switch {
	case ev.Kind == keycode.KindTimeout:
		m.base = layer.Game
		m.deps.Layers.Off(layer.Qwer)
		m.deps.Layers.On(layer.Game)
		m.indicate(indicator.ToGame, indicator.StateBase)
		m.toNeutral()
	case released(ev, keycode.KindBase):
		m.base = layer.Qwer
		m.deps.Layers.On(layer.Qwer)
		m.deps.Layers.Off(layer.Game)
		m.indicate(indicator.ToQwer, indicator.StateBase)
		m.toNeutral()
	}
	return actSuppress
}
