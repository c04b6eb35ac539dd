package shuffle

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gomlx/chanshuffle/layouts"
	"github.com/pkg/errors"
)

// Attributes fully determines a shuffle execution plan: the physical layout,
// the normalized shuffle axis, the group count, the element size and the
// observed extents. It is the cache key: equality and the cache fingerprint
// are structural over all fields, including both extent sequences, so two
// observations differing only in a batch extent are distinct entries.
//
// Attributes is immutable once built; treat the slices as read-only.
type Attributes struct {
	Layout layouts.Layout
	Rank   int

	// Axis is the shuffle axis, already normalized to [0, Rank).
	Axis int

	// SpatialRank is the number of axes strictly after Axis.
	SpatialRank int

	// Group is the shuffle group count; it evenly divides Dims[Axis].
	Group int

	// ElementSize of one element, in bytes.
	ElementSize int

	// Dims are the logical per-axis extents.
	Dims []int

	// BlockedDims are the extents as physically laid out (layout applied).
	BlockedDims []int
}

// NewAttributes validates and builds the Attributes for one observation of
// (shape, layout) under the given shuffle parameters.
//
// A negative axis counts from the end (axis += rank). It returns
// ErrConfiguration if the axis is out of range, the group is not positive or
// does not evenly divide the extent at the shuffle axis, or the element size
// is not positive.
func NewAttributes(desc layouts.ShapeDescriptor, axis, group, elementSize int) (Attributes, error) {
	rank := desc.Rank()
	if rank < 1 {
		return Attributes{}, errors.Wrapf(ErrConfiguration, "shape %s must have rank >= 1", desc)
	}
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return Attributes{}, errors.Wrapf(ErrConfiguration, "axis %d out of range for rank %d", axis, rank)
	}
	if group <= 0 {
		return Attributes{}, errors.Wrapf(ErrConfiguration, "group must be > 0, got %d", group)
	}
	if desc.Dims[axis]%group != 0 {
		return Attributes{}, errors.Wrapf(ErrConfiguration,
			"extent %d at axis %d is not divisible by group %d", desc.Dims[axis], axis, group)
	}
	if elementSize <= 0 {
		return Attributes{}, errors.Wrapf(ErrConfiguration, "element size must be > 0, got %d bytes", elementSize)
	}
	if desc.Layout != layouts.Planar && rank < 3 {
		// Non-planar layouts need a channel axis and at least one spatial axis.
		return Attributes{}, errors.Wrapf(ErrConfiguration, "layout %s requires rank >= 3, got %s", desc.Layout, desc)
	}
	return Attributes{
		Layout:      desc.Layout,
		Rank:        rank,
		Axis:        axis,
		SpatialRank: rank - axis - 1,
		Group:       group,
		ElementSize: elementSize,
		Dims:        slices.Clone(desc.Dims),
		BlockedDims: desc.BlockedDims(),
	}, nil
}

// Equal reports structural (field-wise) equality, including both extent
// sequences.
func (a Attributes) Equal(other Attributes) bool {
	return a.Layout == other.Layout && a.Rank == other.Rank &&
		a.Axis == other.Axis && a.SpatialRank == other.SpatialRank &&
		a.Group == other.Group && a.ElementSize == other.ElementSize &&
		slices.Equal(a.Dims, other.Dims) &&
		slices.Equal(a.BlockedDims, other.BlockedDims)
}

// CacheKey returns a deterministic fingerprint of the attributes: equal
// attributes produce equal keys, distinct attributes produce distinct keys.
// It can index a map directly, in place of a hash-combine.
func (a Attributes) CacheKey() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|%d|%d|%d|%d|%d|%v|%v",
		int(a.Layout), a.Rank, a.Axis, a.SpatialRank, a.Group, a.ElementSize, a.Dims, a.BlockedDims)
	return sb.String()
}

// String implements fmt.Stringer, for logs and error messages.
func (a Attributes) String() string {
	return fmt.Sprintf("shuffle(axis=%d, group=%d, shape=%s%v, %dB elements)",
		a.Axis, a.Group, a.Layout, a.Dims, a.ElementSize)
}
