package shuffle

import (
	"github.com/gomlx/chanshuffle/layouts"
	"github.com/gomlx/chanshuffle/types/xslices"
	"github.com/pkg/errors"
)

// Plan is the derived reshape+permutation schedule, independent of any
// specific buffer. It is immutable once built and memoized per distinct
// Attributes value.
//
// Invariants: Order is a bijection on [0, ReshapedRank) and
// DstBlockDims[i] == SrcBlockDims[Order[i]] for every i.
type Plan struct {
	// ReshapedRank is the working rank after decomposing the shuffle axis in
	// two and folding the trailing spatial axes into one.
	ReshapedRank int

	// Order maps each destination axis to the source axis that supplies it.
	Order []int

	// SrcBlockDims and DstBlockDims are the extents of the reshaped source
	// and (Order-applied) destination.
	SrcBlockDims []int
	DstBlockDims []int

	// SrcBlockOrder and DstBlockOrder are identity in this design; they are
	// carried so the executor contract allows block order to diverge from
	// Order.
	SrcBlockOrder []int
	DstBlockOrder []int

	// ElementSize of one element, in bytes.
	ElementSize int
}

// Equal reports structural equality of two plans.
func (p *Plan) Equal(other *Plan) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.ReshapedRank == other.ReshapedRank &&
		p.ElementSize == other.ElementSize &&
		equalIntSlices(p.Order, other.Order) &&
		equalIntSlices(p.SrcBlockDims, other.SrcBlockDims) &&
		equalIntSlices(p.DstBlockDims, other.DstBlockDims) &&
		equalIntSlices(p.SrcBlockOrder, other.SrcBlockOrder) &&
		equalIntSlices(p.DstBlockOrder, other.DstBlockOrder)
}

func equalIntSlices(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SrcSize returns the number of elements the plan reads, the product of
// SrcBlockDims.
func (p *Plan) SrcSize() int { return xslices.Product(p.SrcBlockDims) }

// BuildPlan derives the permutation plan for the given attributes. It is a
// pure function: deterministic, no I/O.
//
// The recipe ("decompose and transpose"): the shuffle axis of extent E is
// split into two adjacent axes of extents (group, E/group) which are then
// swapped, interleaving the group blocks; axes strictly before the shuffle
// axis pass through in order; axes strictly after it move together and are
// folded into a single axis of extent equal to their product. Where the
// decomposition lands, and what the folded axis absorbs, depends on the
// physical layout, because for channels-last and blocked layouts the logical
// axis order does not match the physical one.
//
// For blocked layouts with no spatial axes the plan still allocates a
// trailing axis (of extent blockSize) so the channel-block factor stays
// representable; ReshapedRank accounts for it.
func BuildPlan(attrs Attributes) (*Plan, error) {
	switch attrs.Layout {
	case layouts.Planar, layouts.ChannelsLast, layouts.Blocked8, layouts.Blocked16:
	default:
		return nil, errors.Wrapf(ErrConfiguration, "unsupported layout %s", attrs.Layout)
	}
	if attrs.Group <= 0 || attrs.Dims[attrs.Axis]%attrs.Group != 0 {
		return nil, errors.Wrapf(ErrConfiguration,
			"extent %d at axis %d is not divisible by group %d", attrs.Dims[attrs.Axis], attrs.Axis, attrs.Group)
	}
	if attrs.Layout.IsBlocked() && attrs.Axis == 1 {
		// The channel axis is physically split in two for blocked layouts;
		// it cannot be shuffled in place.
		return nil, errors.Wrapf(ErrConfiguration, "layout %s cannot shuffle the channel axis", attrs.Layout)
	}

	isBlocked := attrs.Layout.IsBlocked()
	isChannelsLast := attrs.Layout == layouts.ChannelsLast
	batchRank := attrs.Axis

	// 2 for the decomposed axis, 1 for the folded spatial axis, and for
	// blocked layouts with no spatial axes 1 for the trailing block axis.
	reshapedRank := batchRank + 2
	if attrs.SpatialRank != 0 {
		reshapedRank++
	}
	if isBlocked && attrs.SpatialRank == 0 {
		reshapedRank++
	}

	plan := &Plan{
		ReshapedRank:  reshapedRank,
		Order:         make([]int, reshapedRank),
		SrcBlockDims:  make([]int, reshapedRank),
		DstBlockDims:  make([]int, reshapedRank),
		SrcBlockOrder: xslices.Iota(0, reshapedRank),
		DstBlockOrder: xslices.Iota(0, reshapedRank),
		ElementSize:   attrs.ElementSize,
	}

	groupSize := attrs.Dims[attrs.Axis] / attrs.Group
	spatialSize := 1
	if attrs.SpatialRank != 0 {
		spatialSize = xslices.Product(attrs.Dims[batchRank+1:])
	}

	// decomposeAndTranspose splits the shuffle axis into (group, groupSize)
	// at the given reshaped position and swaps the two halves.
	decomposeAndTranspose := func(axis int) {
		plan.SrcBlockDims[axis] = attrs.Group
		plan.SrcBlockDims[axis+1] = groupSize
		plan.Order[axis] = axis + 1
		plan.Order[axis+1] = axis
	}

	const channelAxis = 1
	switch {
	case isBlocked:
		blkSize := attrs.BlockedDims[len(attrs.BlockedDims)-1]
		channelBlocks := attrs.BlockedDims[1]
		if attrs.Axis > channelAxis { // Shuffling a spatial axis.
			for i := 0; i < batchRank; i++ {
				plan.Order[i] = i
				plan.SrcBlockDims[i] = attrs.BlockedDims[i]
			}
			decomposeAndTranspose(batchRank)
			// The folded axis absorbs the block size (and is just the block
			// size when there are no spatial axes left).
			plan.Order[batchRank+2] = batchRank + 2
			plan.SrcBlockDims[batchRank+2] = spatialSize * blkSize
		} else { // Shuffling the batch axis.
			decomposeAndTranspose(0)
			spatialSize = channelBlocks * blkSize
			for i := 2; i < attrs.Rank; i++ {
				spatialSize *= attrs.Dims[i]
			}
			plan.Order[2] = 2
			plan.SrcBlockDims[2] = spatialSize
		}

	case isChannelsLast:
		switch {
		case attrs.Axis == channelAxis: // Shuffling the channel axis.
			plan.Order[0] = 0
			plan.SrcBlockDims[0] = attrs.Dims[0]
			plan.Order[1] = 1
			plan.SrcBlockDims[1] = spatialSize
			decomposeAndTranspose(2)
		case attrs.Axis > channelAxis: // Shuffling a spatial axis.
			for i := 0; i < batchRank; i++ {
				switch {
				case i == 0:
					plan.Order[0] = 0
					plan.SrcBlockDims[0] = attrs.Dims[0]
				case i == channelAxis:
					// Channels-last stores the channel innermost, so logical
					// axis 1 is routed to the last reshaped position.
					plan.Order[reshapedRank-1] = reshapedRank - 1
					plan.SrcBlockDims[reshapedRank-1] = attrs.Dims[i]
				default:
					plan.Order[i-1] = i - 1
					plan.SrcBlockDims[i-1] = attrs.Dims[i]
				}
			}
			decomposeAndTranspose(batchRank - 1)
			if attrs.SpatialRank != 0 {
				plan.Order[batchRank+1] = batchRank + 1
				plan.SrcBlockDims[batchRank+1] = spatialSize
			}
		default: // Shuffling the batch axis.
			decomposeAndTranspose(0)
			plan.Order[2] = 2
			plan.SrcBlockDims[2] = spatialSize
		}

	default: // Planar.
		for i := 0; i < batchRank; i++ {
			plan.Order[i] = i
			plan.SrcBlockDims[i] = attrs.Dims[i]
		}
		decomposeAndTranspose(batchRank)
		if attrs.SpatialRank != 0 {
			plan.Order[batchRank+2] = batchRank + 2
			plan.SrcBlockDims[batchRank+2] = spatialSize
		}
	}

	for i, o := range plan.Order {
		plan.DstBlockDims[i] = plan.SrcBlockDims[o]
	}
	return plan, nil
}
