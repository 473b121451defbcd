//go:build linux

package host

import (
	"testing"

	"github.com/holoplot/go-evdev"
	"github.com/stretchr/testify/assert"

	"superkeys/internal/keycode"
)

func TestSinkKeys(t *testing.T) {
	keys := sinkKeys()
	assert.Len(t, keys, int(evdev.BTN_MISC)-1+8)
	assert.Contains(t, keys, evdev.EvCode(keycode.A))
	assert.Contains(t, keys, evdev.EvCode(keycode.F24))
	assert.Contains(t, keys, evdev.EvCode(evdev.BTN_LEFT))
	assert.Contains(t, keys, evdev.EvCode(evdev.BTN_TASK))
	assert.NotContains(t, keys, evdev.EvCode(0))
	assert.NotContains(t, keys, evdev.EvCode(evdev.BTN_MISC))
}
