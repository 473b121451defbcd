package mousebuf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"superkeys/internal/report"
)

func TestBufferCoalesces(t *testing.T) {
	t0 := time.Unix(50, 0)
	b := New()
	b.On(t0, 50*time.Millisecond)

	m := report.Mouse{Buttons: 0b01, X: 3, V: 1}
	b.Task(t0.Add(10*time.Millisecond), &m)
	assert.Equal(t, report.Mouse{X: 3}, m, "motion is never held back")

	m = report.Mouse{Buttons: 0b10, V: 2, H: -1}
	b.Task(t0.Add(30*time.Millisecond), &m)
	assert.Equal(t, report.Mouse{}, m)
	assert.True(t, b.Active())

	m = report.Mouse{V: 1}
	b.Task(t0.Add(50*time.Millisecond), &m)
	assert.Equal(t, report.Mouse{Buttons: 0b11, V: 4, H: -1}, m)
	assert.False(t, b.Active())

	m = report.Mouse{Buttons: 0b01}
	b.Task(t0.Add(60*time.Millisecond), &m)
	assert.Equal(t, report.Mouse{Buttons: 0b01}, m)
}

func TestBufferOnExtendsWithoutClearing(t *testing.T) {
	t0 := time.Unix(50, 0)
	b := New()
	b.On(t0, 50*time.Millisecond)
	m := report.Mouse{Buttons: 1}
	b.Task(t0.Add(40*time.Millisecond), &m)

	b.On(t0.Add(45*time.Millisecond), 50*time.Millisecond)
	m = report.Mouse{}
	b.Task(t0.Add(60*time.Millisecond), &m)
	assert.Equal(t, report.Mouse{}, m)

	b.Task(t0.Add(95*time.Millisecond), &m)
	assert.Equal(t, report.Mouse{Buttons: 1}, m)
}

func TestInactiveBufferPassesThrough(t *testing.T) {
	b := New()
	m := report.Mouse{Buttons: 4, V: -3}
	b.Task(time.Unix(1, 0), &m)
	assert.Equal(t, report.Mouse{Buttons: 4, V: -3}, m)
}
