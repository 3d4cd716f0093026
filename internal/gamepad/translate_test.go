package gamepad

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soar/padrelay/internal/controller"
)

func TestTranslateButton(t *testing.T) {
	m, err := NewButtonMap(map[string]int{"b": 0, "a": 1})
	require.NoError(t, err)

	name, err := TranslateButton(1, m)
	require.NoError(t, err)
	assert.Equal(t, "a", name)

	_, err = TranslateButton(7, m)
	require.ErrorIs(t, err, ErrUnmappedButton)
	var unmapped *UnmappedButtonError
	require.ErrorAs(t, err, &unmapped)
	assert.Equal(t, 7, unmapped.Index)
}

func TestTranslateHat(t *testing.T) {
	tests := []struct {
		hat  Hat
		want []ButtonUpdate
	}{
		{Hat{0, 0}, []ButtonUpdate{{"left", false}, {"right", false}, {"up", false}, {"down", false}}},
		{Hat{1, 0}, []ButtonUpdate{{"right", true}, {"up", false}, {"down", false}}},
		{Hat{-1, 0}, []ButtonUpdate{{"left", true}, {"up", false}, {"down", false}}},
		{Hat{0, 1}, []ButtonUpdate{{"left", false}, {"right", false}, {"up", true}}},
		{Hat{0, -1}, []ButtonUpdate{{"left", false}, {"right", false}, {"down", true}}},
		{Hat{1, 1}, []ButtonUpdate{{"right", true}, {"up", true}}},
		{Hat{-1, -1}, []ButtonUpdate{{"left", true}, {"down", true}}},
		{Hat{1, -1}, []ButtonUpdate{{"right", true}, {"down", true}}},
		{Hat{-1, 1}, []ButtonUpdate{{"left", true}, {"up", true}}},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%d,%d", tc.hat.H, tc.hat.V), func(t *testing.T) {
			assert.Equal(t, tc.want, TranslateHat(tc.hat))
		})
	}
}

func TestTranslateHatCoversBothAxes(t *testing.T) {
	for h := -1; h <= 1; h++ {
		for v := -1; v <= 1; v++ {
			seen := map[string]bool{}
			for _, u := range TranslateHat(Hat{h, v}) {
				assert.False(t, seen[u.Button], "button %q sent twice", u.Button)
				seen[u.Button] = true
			}
			assert.True(t, seen["left"] || seen["right"], "horizontal axis not asserted for %d,%d", h, v)
			assert.True(t, seen["up"] || seen["down"], "vertical axis not asserted for %d,%d", h, v)
		}
	}
}

func TestAxisToStick(t *testing.T) {
	assert.Equal(t, controller.StickPosition{H: 0, V: 4095}, AxisToStick(-1, -1))
	assert.Equal(t, controller.StickPosition{H: 4095, V: 0}, AxisToStick(1, 1))
	assert.Equal(t, controller.StickPosition{H: 2048, V: 2047}, AxisToStick(0, 0))

	// out of range and NaN inputs stay within the stick range
	for _, v := range []float64{-3, -1, -0.5, 0, 0.25, 1, 7} {
		p := AxisToStick(v, v)
		assert.LessOrEqual(t, p.H, uint16(controller.StickMax))
		assert.LessOrEqual(t, p.V, uint16(controller.StickMax))
	}
	assert.Equal(t, AxisToStick(0, 0), AxisToStick(math.NaN(), math.NaN()))
}

func TestAxisToButton(t *testing.T) {
	assert.True(t, AxisToButton(0, -0.5))
	assert.False(t, AxisToButton(-0.5, -0.5))
	assert.False(t, AxisToButton(-1, -0.5))
}
