// Package layouts describes the physical memory arrangement of the tensors
// the shuffle engine operates on.
//
// A tensor is described by its logical per-axis extents plus a Layout tag.
// The logical axis convention is the usual one for channel operations:
// axis 0 is the batch axis, axis 1 the channel axis, and everything after
// axis 1 is spatial. The layout determines the physical extents
// (ShapeDescriptor.BlockedDims), which differ from the logical ones for
// channels-last and channel-blocked arrangements.
package layouts

import (
	"fmt"
	"slices"

	"github.com/gomlx/exceptions"
)

// Layout identifies one of the supported physical memory arrangements.
type Layout int

const (
	// Planar is plain row-major storage: logical and physical axis order match.
	Planar Layout = iota

	// ChannelsLast stores the channel axis (logical axis 1) innermost, after
	// all spatial axes.
	ChannelsLast

	// Blocked8 splits the channel axis into sub-blocks of 8 elements; the
	// block axis is stored innermost.
	Blocked8

	// Blocked16 is like Blocked8 with sub-blocks of 16 elements.
	Blocked16
)

// String implements fmt.Stringer.
func (l Layout) String() string {
	switch l {
	case Planar:
		return "Planar"
	case ChannelsLast:
		return "ChannelsLast"
	case Blocked8:
		return "Blocked8"
	case Blocked16:
		return "Blocked16"
	}
	return fmt.Sprintf("Layout(%d)", int(l))
}

// IsBlocked returns whether the layout packs the channel axis into fixed-size
// sub-blocks.
func (l Layout) IsBlocked() bool {
	return l == Blocked8 || l == Blocked16
}

// BlockSize returns the channel sub-block size for blocked layouts.
// It panics if called on a non-blocked layout.
func (l Layout) BlockSize() int {
	switch l {
	case Blocked8:
		return 8
	case Blocked16:
		return 16
	}
	exceptions.Panicf("layouts: BlockSize called on non-blocked layout %s", l)
	return 0
}

// ShapeDescriptor describes a tensor as the engine sees it: logical per-axis
// extents plus the physical layout they are stored in.
//
// Use Make to create one. See the package documentation for the axis
// convention.
type ShapeDescriptor struct {
	Dims   []int
	Layout Layout
}

// Make returns a ShapeDescriptor with the given layout and logical extents.
// It panics if any extent is <= 0.
func Make(layout Layout, dims ...int) ShapeDescriptor {
	for _, dim := range dims {
		if dim <= 0 {
			exceptions.Panicf("layouts.Make(%s, %v): extents must be > 0", layout, dims)
		}
	}
	return ShapeDescriptor{Dims: slices.Clone(dims), Layout: layout}
}

// Rank returns the number of logical axes.
func (s ShapeDescriptor) Rank() int { return len(s.Dims) }

// Size returns the number of elements, the product of the logical extents.
func (s ShapeDescriptor) Size() (size int) {
	size = 1
	for _, dim := range s.Dims {
		size *= dim
	}
	return
}

// String implements fmt.Stringer.
func (s ShapeDescriptor) String() string {
	return fmt.Sprintf("%s%v", s.Layout, s.Dims)
}

// BlockedDims returns the per-axis extents as physically laid out:
//
//   - Planar: a copy of the logical extents.
//   - ChannelsLast: the channel extent moves after the spatial ones.
//   - Blocked8/Blocked16: the channel extent is ceil-divided into blocks
//     (position 1 holds the number of blocks) and the block size is appended
//     as the innermost extent.
//
// It panics for non-planar layouts on tensors without a channel axis
// (rank < 2).
func (s ShapeDescriptor) BlockedDims() []int {
	if s.Layout != Planar && s.Rank() < 2 {
		exceptions.Panicf("layouts: %s requires a channel axis (rank >= 2), got %s", s.Layout, s)
	}
	switch {
	case s.Layout == ChannelsLast:
		dims := make([]int, 0, s.Rank())
		dims = append(dims, s.Dims[0])
		dims = append(dims, s.Dims[2:]...)
		dims = append(dims, s.Dims[1])
		return dims
	case s.Layout.IsBlocked():
		blkSize := s.Layout.BlockSize()
		dims := make([]int, 0, s.Rank()+1)
		dims = append(dims, s.Dims[0], (s.Dims[1]+blkSize-1)/blkSize)
		dims = append(dims, s.Dims[2:]...)
		dims = append(dims, blkSize)
		return dims
	}
	return slices.Clone(s.Dims)
}

// PhysicalSize returns the number of elements actually stored, the product of
// BlockedDims. For blocked layouts with a channel extent that is not a
// multiple of the block size this is larger than Size (padding).
func (s ShapeDescriptor) PhysicalSize() (size int) {
	size = 1
	for _, dim := range s.BlockedDims() {
		size *= dim
	}
	return
}
