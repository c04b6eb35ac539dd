package xslices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIota(t *testing.T) {
	assert.Equal(t, []int{3, 4, 5, 6}, Iota(3, 4))
	assert.Equal(t, []float32{0, 1, 2}, Iota(float32(0), 3))
	assert.Empty(t, Iota(0, 0))
}

func TestProduct(t *testing.T) {
	assert.Equal(t, 24, Product([]int{2, 3, 4}))
	assert.Equal(t, 1, Product[int](nil))
	assert.Equal(t, 0, Product([]int{2, 0, 4}))
}

func TestFillSlice(t *testing.T) {
	s := make([]byte, 17)
	FillSlice(s, byte(0xAA))
	for i, v := range s {
		assert.Equalf(t, byte(0xAA), v, "element %d doesn't match", i)
	}
	FillSlice([]int{}, 1) // Must not panic.
}

func TestMap(t *testing.T) {
	in := Iota(0, 5)
	out := Map(in, func(v int) int32 { return int32(v * 2) })
	assert.Equal(t, []int32{0, 2, 4, 6, 8}, out)
}
