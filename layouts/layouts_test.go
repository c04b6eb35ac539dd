package layouts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	assert.Equal(t, "Planar", Planar.String())
	assert.Equal(t, "ChannelsLast", ChannelsLast.String())
	assert.Equal(t, "Layout(99)", Layout(99).String())

	assert.False(t, Planar.IsBlocked())
	assert.False(t, ChannelsLast.IsBlocked())
	assert.True(t, Blocked8.IsBlocked())
	assert.True(t, Blocked16.IsBlocked())

	assert.Equal(t, 8, Blocked8.BlockSize())
	assert.Equal(t, 16, Blocked16.BlockSize())
	assert.Panics(t, func() { Planar.BlockSize() })
}

func TestMake(t *testing.T) {
	s := Make(Planar, 2, 3, 4)
	assert.Equal(t, 3, s.Rank())
	assert.Equal(t, 24, s.Size())
	assert.Equal(t, "Planar[2 3 4]", s.String())
	assert.Panics(t, func() { Make(Planar, 2, 0, 4) })
}

func TestBlockedDims(t *testing.T) {
	assert.Equal(t, []int{2, 3, 4}, Make(Planar, 2, 3, 4).BlockedDims())

	// Channel moves after the spatial axes.
	assert.Equal(t, []int{2, 4, 5, 3}, Make(ChannelsLast, 2, 3, 4, 5).BlockedDims())

	// Channel is ceil-divided into blocks, block size appended innermost.
	assert.Equal(t, []int{2, 2, 4, 8}, Make(Blocked8, 2, 16, 4).BlockedDims())
	assert.Equal(t, []int{2, 3, 4, 8}, Make(Blocked8, 2, 17, 4).BlockedDims())
	assert.Equal(t, []int{1, 2, 5, 5, 16}, Make(Blocked16, 1, 32, 5, 5).BlockedDims())

	require.Panics(t, func() { Make(ChannelsLast, 7).BlockedDims() })
}

func TestPhysicalSize(t *testing.T) {
	assert.Equal(t, 24, Make(Planar, 2, 3, 4).PhysicalSize())
	assert.Equal(t, 24, Make(ChannelsLast, 2, 3, 4).PhysicalSize())
	// Padded channels count toward the physical size.
	assert.Equal(t, 2*3*4*8, Make(Blocked8, 2, 17, 4).PhysicalSize())
}
