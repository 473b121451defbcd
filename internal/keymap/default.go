package keymap

import (
	"superkeys/internal/keycode"
	"superkeys/internal/layer"
)

// Default returns the stock layout.
func Default() *Keymap {
	km := New()

	km.Set(layer.Work, keycode.CapsLock, keycode.SuperCtrl)
	km.Set(layer.Work, keycode.LeftAlt, keycode.SuperAlt)
	km.Set(layer.Work, keycode.LeftMeta, keycode.SuperGui)
	km.Set(layer.Work, keycode.RightCtrl, keycode.Base)

	km.Set(layer.Move, keycode.I, keycode.Up)
	km.Set(layer.Move, keycode.J, keycode.Left)
	km.Set(layer.Move, keycode.K, keycode.Down)
	km.Set(layer.Move, keycode.L, keycode.Right)
	km.Set(layer.Move, keycode.U, keycode.Home)
	km.Set(layer.Move, keycode.O, keycode.End)
	km.Set(layer.Move, keycode.Y, keycode.PageUp)
	km.Set(layer.Move, keycode.H, keycode.PageDown)

	fkeys := []keycode.Code{
		keycode.F1, keycode.F2, keycode.F3, keycode.F4, keycode.F5, keycode.F6,
		keycode.F7, keycode.F8, keycode.F9, keycode.F10, keycode.F11, keycode.F12,
	}
	row := []keycode.Code{
		keycode.Num1, keycode.Num2, keycode.Num3, keycode.Num4, keycode.Num5, keycode.Num6,
		keycode.Num7, keycode.Num8, keycode.Num9, keycode.Num0, keycode.Minus, keycode.Equal,
	}
	for i, k := range row {
		km.Set(layer.Func, k, fkeys[i])
	}

	km.Set(layer.Util, keycode.Z, keycode.Undo)
	km.Set(layer.Util, keycode.X, keycode.Cut)
	km.Set(layer.Util, keycode.C, keycode.Copy)
	km.Set(layer.Util, keycode.V, keycode.Paste)
	km.Set(layer.Util, keycode.F, keycode.Find)

	return km
}
