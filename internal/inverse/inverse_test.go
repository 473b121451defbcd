package inverse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"superkeys/internal/keycode"
	"superkeys/internal/report"
)

type edge struct {
	code    keycode.Code
	pressed bool
}

type recorder struct {
	edges    []edge
	suppress map[keycode.Code]bool
}

func (r *recorder) dispatch(code keycode.Code, pressed bool) bool {
	r.edges = append(r.edges, edge{code, pressed})
	return !r.suppress[code]
}

func TestButtonEdges(t *testing.T) {
	r := &recorder{}
	tr := New(r.dispatch)

	m := report.Mouse{Buttons: 0b101}
	tr.Task(&m)
	assert.Equal(t, []edge{{keycode.MouseButton1, true}, {keycode.MouseButton3, true}}, r.edges)
	assert.Equal(t, uint8(0b101), m.Buttons)

	r.edges = nil
	m = report.Mouse{Buttons: 0b101}
	tr.Task(&m)
	assert.Empty(t, r.edges, "held buttons produce no edges")

	m = report.Mouse{Buttons: 0b100}
	tr.Task(&m)
	assert.Equal(t, []edge{{keycode.MouseButton1, false}}, r.edges)
}

func TestSuppressedPressIsRetried(t *testing.T) {
	r := &recorder{suppress: map[keycode.Code]bool{keycode.MouseButton2: true}}
	tr := New(r.dispatch)

	for i := 0; i < 3; i++ {
		m := report.Mouse{Buttons: 0b10}
		tr.Task(&m)
		assert.Zero(t, m.Buttons)
	}
	assert.Len(t, r.edges, 3)

	r.suppress = nil
	m := report.Mouse{Buttons: 0b10}
	tr.Task(&m)
	assert.Equal(t, uint8(0b10), m.Buttons)
	assert.Len(t, r.edges, 4)
}

func TestWheelDirections(t *testing.T) {
	tests := []struct {
		name string
		in   report.Mouse
		want []edge
	}{
		{"up", report.Mouse{V: 120}, []edge{{keycode.WheelUp, true}}},
		{"down", report.Mouse{V: -1}, []edge{{keycode.WheelDown, true}}},
		{"right", report.Mouse{H: 3}, []edge{{keycode.WheelRight, true}}},
		{"left and down", report.Mouse{V: -2, H: -3}, []edge{{keycode.WheelDown, true}, {keycode.WheelLeft, true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &recorder{}
			m := tt.in
			New(r.dispatch).Task(&m)
			assert.Equal(t, tt.want, r.edges)
			assert.Equal(t, tt.in, m)
		})
	}
}

func TestSuppressedWheelIsZeroed(t *testing.T) {
	r := &recorder{suppress: map[keycode.Code]bool{keycode.WheelUp: true}}
	m := report.Mouse{V: 5, H: 2}
	New(r.dispatch).Task(&m)
	assert.Equal(t, report.Mouse{H: 2}, m)
}
