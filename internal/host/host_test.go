package host

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"superkeys/internal/report"
)

func TestMatcher(t *testing.T) {
	kbd := DeviceInfo{Name: "AT Translated Set 2 keyboard", Keyboard: true}
	mouse := DeviceInfo{Name: "Logitech MX Master 3", Pointer: true}
	virt := DeviceInfo{Name: VirtualName, Keyboard: true, Pointer: true}

	all := Matcher{Keyboards: true, Pointers: true}
	assert.True(t, all.Match(kbd))
	assert.True(t, all.Match(mouse))
	assert.False(t, all.Match(virt))

	assert.False(t, Matcher{Keyboards: true}.Match(mouse))

	m := Matcher{Keyboards: true, Pointers: true, Include: []string{"logitech"}}
	assert.False(t, m.Match(kbd))
	assert.True(t, m.Match(mouse))

	m = Matcher{Keyboards: true, Pointers: true, Exclude: []string{"MX"}}
	assert.False(t, m.Match(mouse))
	assert.True(t, m.Match(kbd))
}

func TestWheelDetents(t *testing.T) {
	var w wheelDetents
	assert.Equal(t, int32(0), w.add(60))
	assert.Equal(t, int32(1), w.add(60))
	assert.Equal(t, int32(-1), w.add(-150))
	assert.Equal(t, int32(0), w.add(-60))
	assert.Equal(t, int32(-1), w.add(-60))
}

func TestButtonChanges(t *testing.T) {
	got := buttonChanges(0b0101, 0b0011)
	assert.Equal(t, []buttonChange{{index: 1, down: true}, {index: 2, down: false}}, got)
	assert.Empty(t, buttonChanges(3, 3))
}

func TestPointerBatch(t *testing.T) {
	var b pointerBatch
	_, ok := b.flush()
	assert.False(t, ok)

	b.move(3, 4)
	b.move(-1, 0)
	b.wheel(1, 0)
	b.button(0, true)
	m, ok := b.flush()
	assert.True(t, ok)
	assert.Equal(t, report.Mouse{Buttons: 1, X: 2, Y: 4, V: 120}, m)

	b.hires = true
	b.wheel(1, 0)
	b.wheelHiRes(30, -15)
	m, ok = b.flush()
	assert.True(t, ok)
	assert.Equal(t, report.Mouse{Buttons: 1, V: 30, H: -15}, m, "buttons persist across batches")

	b.button(0, false)
	m, _ = b.flush()
	assert.Zero(t, m.Buttons)
}
