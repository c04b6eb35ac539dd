package shuffle

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/gomlx/chanshuffle/internal/workerspool"
	"github.com/gomlx/chanshuffle/layouts"
	"github.com/gomlx/chanshuffle/types/xslices"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func newTestExecutor(t *testing.T, layout layouts.Layout, dims []int, axis, group, elementSize int) *Executor {
	t.Helper()
	attrs, err := NewAttributes(layouts.Make(layout, dims...), axis, group, elementSize)
	require.NoError(t, err)
	plan, err := BuildPlan(attrs)
	require.NoError(t, err)
	exec, err := NewExecutor(plan, nil)
	require.NoError(t, err)
	return exec
}

// Planar rank-4 shuffle of 4 channels in 2 groups: input channels
// [c0, c1, c2, c3] come out as [c0, c2, c1, c3].
func TestExecutor_PlanarConcrete(t *testing.T) {
	exec := newTestExecutor(t, layouts.Planar, []int{1, 4, 2, 2}, 1, 2, 4)

	src := make([]byte, 16*4)
	for i := range 16 {
		binary.LittleEndian.PutUint32(src[i*4:], uint32(i))
	}
	dst := make([]byte, len(src))
	require.NoError(t, exec.Exec(src, dst, -1))

	got := make([]uint32, 16)
	for i := range got {
		got[i] = binary.LittleEndian.Uint32(dst[i*4:])
	}
	fmt.Printf("\tgot=%v\n", got)
	want := []uint32{
		0, 1, 2, 3, // c0
		8, 9, 10, 11, // c2
		4, 5, 6, 7, // c1
		12, 13, 14, 15, // c3
	}
	assert.Equal(t, want, got)
}

// Channels-last shuffle on the channel axis: element (n, s, c') must read
// from (n, s, cmap[c']) in physical (batch, spatial, channel) order.
func TestExecutor_ChannelsLastOnChannel(t *testing.T) {
	exec := newTestExecutor(t, layouts.ChannelsLast, []int{2, 4, 3}, 1, 2, 1)

	src := xslices.Iota(byte(0), 2*3*4)
	dst := make([]byte, len(src))
	require.NoError(t, exec.Exec(src, dst, -1))

	cmap := []int{0, 2, 1, 3}
	for n := range 2 {
		for s := range 3 {
			for c := range 4 {
				wantIdx := (n*3+s)*4 + cmap[c]
				gotIdx := (n*3+s)*4 + c
				require.Equal(t, src[wantIdx], dst[gotIdx], "n=%d s=%d c=%d", n, s, c)
			}
		}
	}
}

// Channels-last shuffle on a spatial axis: the channel axis stays physically
// innermost and untouched.
func TestExecutor_ChannelsLastOnSpatial(t *testing.T) {
	exec := newTestExecutor(t, layouts.ChannelsLast, []int{1, 3, 4}, 2, 2, 1)

	src := xslices.Iota(byte(0), 4*3)
	dst := make([]byte, len(src))
	require.NoError(t, exec.Exec(src, dst, -1))

	smap := []int{0, 2, 1, 3}
	for s := range 4 {
		for c := range 3 {
			require.Equal(t, src[smap[s]*3+c], dst[s*3+c], "s=%d c=%d", s, c)
		}
	}
}

// Blocked shuffle on a spatial axis, checked against a direct simulation on
// the physical (batch, channelBlock, spatial, block) indices.
func TestExecutor_BlockedOnSpatial(t *testing.T) {
	exec := newTestExecutor(t, layouts.Blocked8, []int{1, 16, 4}, 2, 2, 1)

	// Physical dims: [1, 2, 4, 8].
	src := xslices.Iota(byte(0), 2*4*8)
	dst := make([]byte, len(src))
	require.NoError(t, exec.Exec(src, dst, -1))

	smap := []int{0, 2, 1, 3}
	for cb := range 2 {
		for s := range 4 {
			for b := range 8 {
				wantIdx := (cb*4+smap[s])*8 + b
				gotIdx := (cb*4+s)*8 + b
				require.Equal(t, src[wantIdx], dst[gotIdx], "cb=%d s=%d b=%d", cb, s, b)
			}
		}
	}
}

// Shuffling with group=g and then with group=extent/g restores the original
// ordering byte-for-byte, on every layout.
func TestExecutor_RoundTrip(t *testing.T) {
	testCases := []struct {
		layout      layouts.Layout
		dims        []int
		axis, group int
		elementSize int
	}{
		{layouts.Planar, []int{2, 6, 3}, 1, 3, 1},
		{layouts.Planar, []int{6, 4}, 0, 2, 8},
		{layouts.Planar, []int{2, 6, 3}, 1, 6, 1}, // Maximal group.
		{layouts.ChannelsLast, []int{2, 8, 3}, 1, 2, 2},
		{layouts.ChannelsLast, []int{2, 3, 8}, 2, 4, 1},
		{layouts.Blocked8, []int{1, 8, 8}, 2, 2, 4},
		{layouts.Blocked16, []int{4, 16, 3}, 0, 2, 1},
	}
	for _, tc := range testCases {
		name := fmt.Sprintf("%s%v/axis=%d/group=%d", tc.layout, tc.dims, tc.axis, tc.group)
		forward := newTestExecutor(t, tc.layout, tc.dims, tc.axis, tc.group, tc.elementSize)
		inverseGroup := tc.dims[tc.axis] / tc.group
		backward := newTestExecutor(t, tc.layout, tc.dims, tc.axis, inverseGroup, tc.elementSize)

		numBytes := forward.Plan().SrcSize() * tc.elementSize
		src := make([]byte, numBytes)
		for i := range src {
			src[i] = byte(i * 31)
		}
		mid := make([]byte, numBytes)
		out := make([]byte, numBytes)
		require.NoError(t, forward.Exec(src, mid, -1), name)
		require.NoError(t, backward.Exec(mid, out, -1), name)
		require.Equal(t, src, out, name)
	}
}

// Float16 elements ride the 2-byte path unchanged.
func TestExecutor_Float16(t *testing.T) {
	exec := newTestExecutor(t, layouts.Planar, []int{1, 4, 3}, 1, 2, 2)

	values := make([]float16.Float16, 12)
	src := make([]byte, len(values)*2)
	for i := range values {
		values[i] = float16.Fromfloat32(float32(i) + 0.5)
		binary.LittleEndian.PutUint16(src[i*2:], values[i].Bits())
	}
	dst := make([]byte, len(src))
	require.NoError(t, exec.Exec(src, dst, -1))

	cmap := []int{0, 2, 1, 3}
	for c := range 4 {
		for s := range 3 {
			got := float16.Frombits(binary.LittleEndian.Uint16(dst[(c*3+s)*2:]))
			require.Equal(t, values[cmap[c]*3+s], got, "c=%d s=%d", c, s)
		}
	}
}

// A batch override processes only the leading batches and leaves the rest of
// the destination untouched.
func TestExecutor_BatchOverride(t *testing.T) {
	exec := newTestExecutor(t, layouts.Planar, []int{4, 4, 2}, 1, 2, 1)

	src := xslices.Iota(byte(0), 32)
	full := make([]byte, 32)
	require.NoError(t, exec.Exec(src, full, -1))

	dst := make([]byte, 32)
	xslices.FillSlice(dst, byte(0xAA))
	require.NoError(t, exec.Exec(src, dst, 2))

	assert.Equal(t, full[:16], dst[:16])
	for i := 16; i < 32; i++ {
		require.Equal(t, byte(0xAA), dst[i], "byte %d written beyond the batch override", i)
	}
}

func TestExecutor_BufferPreconditions(t *testing.T) {
	exec := newTestExecutor(t, layouts.Planar, []int{2, 6, 3}, 1, 2, 4)
	numBytes := exec.Plan().SrcSize() * 4

	err := exec.Exec(make([]byte, numBytes-1), make([]byte, numBytes), -1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrecondition))

	err = exec.Exec(make([]byte, numBytes), make([]byte, numBytes-1), -1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPrecondition))
}

func TestNewExecutor_RejectsBrokenPlan(t *testing.T) {
	attrs := must.M1(NewAttributes(layouts.Make(layouts.Planar, 2, 6, 3), 1, 2, 4))
	plan := must.M1(BuildPlan(attrs))
	plan.Order[0] = plan.Order[1] // No longer a bijection.
	_, err := NewExecutor(plan, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

// The striped parallel copy must produce exactly the serial result.
func TestExecutor_Parallel(t *testing.T) {
	attrs := must.M1(NewAttributes(layouts.Make(layouts.Planar, 16, 8, 32), 1, 2, 4))
	plan := must.M1(BuildPlan(attrs))
	serial := must.M1(NewExecutor(plan, nil))
	parallel := must.M1(NewExecutor(plan, workerspool.New()))

	numBytes := plan.SrcSize() * 4
	src := make([]byte, numBytes)
	for i := range src {
		src[i] = byte(i % 251)
	}
	dstSerial := make([]byte, numBytes)
	dstParallel := make([]byte, numBytes)
	require.NoError(t, serial.Exec(src, dstSerial, -1))
	require.NoError(t, parallel.Exec(src, dstParallel, -1))
	require.Equal(t, dstSerial, dstParallel)
}

func BenchmarkExecutor_Planar(b *testing.B) {
	attrs, _ := NewAttributes(layouts.Make(layouts.Planar, 4, 32, 28, 28), 1, 4, 4)
	plan, _ := BuildPlan(attrs)
	exec, _ := NewExecutor(plan, nil)
	numBytes := plan.SrcSize() * 4
	src := make([]byte, numBytes)
	dst := make([]byte, numBytes)
	b.SetBytes(int64(numBytes))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exec.Exec(src, dst, -1)
	}
}
