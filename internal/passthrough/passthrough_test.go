package passthrough

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"superkeys/internal/report"
)

func TestStartupRouting(t *testing.T) {
	g := New()
	routed, direct := g.Split(report.Mouse{Buttons: 1, X: 5, Y: -3, V: 1, H: 2})
	assert.Equal(t, report.Mouse{Buttons: 1, V: 1, H: 2}, routed)
	assert.Equal(t, report.Mouse{X: 5, Y: -3}, direct)
}

func TestPointerRouting(t *testing.T) {
	g := New()
	g.SetPointer(true, true)
	routed, direct := g.Split(report.Mouse{X: 5, Y: -3})
	assert.Equal(t, report.Mouse{X: 5, Y: -3}, routed)
	assert.True(t, direct.IsZero())

	g.SetPointer(false, false)
	routed, direct = g.Split(report.Mouse{X: 5})
	assert.True(t, routed.IsZero())
	assert.Equal(t, report.Mouse{X: 5}, direct)
	assert.Equal(t, State{}, g.Pointer())
}

func TestButtonBlockWaitsForRelease(t *testing.T) {
	g := New()
	g.SetButtons(false, false)
	_, direct := g.Split(report.Mouse{Buttons: 1})
	assert.Equal(t, uint8(1), direct.Buttons)

	g.SetButtons(true, true)
	_, direct = g.Split(report.Mouse{Buttons: 1})
	assert.Equal(t, uint8(1), direct.Buttons, "held button keeps its direct path")
	assert.False(t, g.Buttons().Block)

	_, direct = g.Split(report.Mouse{})
	assert.Zero(t, direct.Buttons)
	assert.True(t, g.Buttons().Block)
}

func TestButtonSendOffWaitsForRelease(t *testing.T) {
	g := New()
	g.Split(report.Mouse{Buttons: 2})
	g.SetButtons(false, false)
	assert.True(t, g.Buttons().Send)

	routed, _ := g.Split(report.Mouse{})
	assert.Zero(t, routed.Buttons, "release still reaches the pipeline")
	assert.False(t, g.Buttons().Send)

	routed, direct := g.Split(report.Mouse{Buttons: 2})
	assert.Zero(t, routed.Buttons)
	assert.Equal(t, uint8(2), direct.Buttons)
}

func TestSendOnCancelsQueuedOff(t *testing.T) {
	g := New()
	g.Split(report.Mouse{Buttons: 1})
	g.SetButtons(false, true)
	g.SetButtons(true, true)
	g.Split(report.Mouse{})
	assert.True(t, g.Buttons().Send)
}

func TestReset(t *testing.T) {
	g := New()
	g.SetPointer(true, true)
	g.SetWheel(false, false)
	g.Reset()
	assert.Equal(t, State{}, g.Pointer())
	assert.Equal(t, State{Send: true, Block: true}, g.Wheel())
	assert.Equal(t, State{Send: true, Block: true}, g.Buttons())
}
