package shuffle

import (
	"sync"

	"github.com/gomlx/chanshuffle/internal/workerspool"
	"github.com/gomlx/chanshuffle/types/xslices"
	"github.com/pkg/errors"
)

// Executor performs the generic strided permutation copy for one Plan.
//
// It borrows the source and destination buffers only for the duration of an
// Exec call and holds no internal lock: calls on the same destination buffer
// must not overlap (caller's responsibility). Output cells are disjoint, so
// the copy itself is striped over worker goroutines along the outermost
// reshaped axis.
type Executor struct {
	plan *Plan
	pool *workerspool.Pool

	// srcStrides are the row-major byte strides of the reshaped source;
	// srcStridesOnDst re-indexes them per destination axis
	// (srcStridesOnDst[i] = srcStrides[Order[i]]). Neither depends on the
	// extent of axis 0, so a batch override never invalidates them.
	srcStrides      []int
	srcStridesOnDst []int

	// contiguousInner is set when the innermost destination axis reads the
	// innermost source axis, allowing whole rows to be copied at once.
	contiguousInner bool
}

// NewExecutor compiles an Executor for the given plan. The pool may be nil,
// in which case the copy runs on the calling goroutine.
//
// It returns ErrConfiguration if the plan breaks its own invariants (Order
// not a bijection, inconsistent dims, non-positive element size).
func NewExecutor(plan *Plan, pool *workerspool.Pool) (*Executor, error) {
	if err := validatePlan(plan); err != nil {
		return nil, err
	}
	rank := plan.ReshapedRank
	e := &Executor{
		plan:            plan,
		pool:            pool,
		srcStrides:      make([]int, rank),
		srcStridesOnDst: make([]int, rank),
	}
	stride := plan.ElementSize
	for i := rank - 1; i >= 0; i-- {
		e.srcStrides[i] = stride
		stride *= plan.SrcBlockDims[i]
	}
	for i, o := range plan.Order {
		e.srcStridesOnDst[i] = e.srcStrides[o]
	}
	e.contiguousInner = plan.Order[rank-1] == rank-1
	return e, nil
}

func validatePlan(plan *Plan) error {
	if plan == nil {
		return errors.Wrapf(ErrConfiguration, "nil plan")
	}
	rank := plan.ReshapedRank
	if rank < 1 || len(plan.Order) != rank || len(plan.SrcBlockDims) != rank || len(plan.DstBlockDims) != rank {
		return errors.Wrapf(ErrConfiguration, "plan has inconsistent rank %d", rank)
	}
	if plan.ElementSize <= 0 {
		return errors.Wrapf(ErrConfiguration, "plan element size must be > 0, got %d", plan.ElementSize)
	}
	seen := make([]bool, rank)
	for i, o := range plan.Order {
		if o < 0 || o >= rank || seen[o] {
			return errors.Wrapf(ErrConfiguration, "plan order %v is not a permutation of [0, %d)", plan.Order, rank)
		}
		seen[o] = true
		if plan.DstBlockDims[i] != plan.SrcBlockDims[o] {
			return errors.Wrapf(ErrConfiguration,
				"plan dims mismatch: dstBlockDims[%d]=%d != srcBlockDims[%d]=%d",
				i, plan.DstBlockDims[i], o, plan.SrcBlockDims[o])
		}
	}
	return nil
}

// Plan returns the plan this executor was compiled for.
func (e *Executor) Plan() *Plan { return e.plan }

// Exec copies src into dst, relocating ElementSize-byte cells through the
// plan's permutation. No arithmetic is performed on the element contents.
//
// batchOverride >= 0 replaces the extent of the outermost reshaped axis
// (dynamic batching); pass a negative value to use the plan's own extent.
// Overriding is only meaningful when the outermost axis passes through the
// permutation unchanged, which holds for every plan whose shuffle axis is
// not the batch axis.
//
// It returns ErrPrecondition if either buffer is too small for the plan
// (after the override is applied).
func (e *Executor) Exec(src, dst []byte, batchOverride int) error {
	plan := e.plan
	dstDims := plan.DstBlockDims
	srcBatch := plan.SrcBlockDims[0]
	if batchOverride >= 0 && batchOverride != dstDims[0] {
		dstDims = append([]int(nil), dstDims...)
		dstDims[0] = batchOverride
		if plan.Order[0] == 0 {
			srcBatch = batchOverride
		}
	}

	elementSize := plan.ElementSize
	srcBytes := srcBatch * xslices.Product(plan.SrcBlockDims[1:]) * elementSize
	dstBytes := xslices.Product(dstDims) * elementSize
	if len(src) < srcBytes {
		return errors.Wrapf(ErrPrecondition, "source buffer has %d bytes, plan needs %d", len(src), srcBytes)
	}
	if len(dst) < dstBytes {
		return errors.Wrapf(ErrPrecondition, "destination buffer has %d bytes, plan needs %d", len(dst), dstBytes)
	}

	batch := dstDims[0]
	if e.pool == nil || !e.pool.IsEnabled() || batch <= 1 {
		e.copyRange(src, dst, dstDims, 0, batch)
		return nil
	}

	// Stripe the copy over the outermost destination axis.
	splitSize := 1
	if !e.pool.IsUnlimited() {
		splitSize = (batch + e.pool.MaxParallelism() - 1) / e.pool.MaxParallelism()
	}
	var wg sync.WaitGroup
	for start := 0; start < batch; start += splitSize {
		end := min(start+splitSize, batch)
		wg.Add(1)
		e.pool.WaitToStart(func() {
			defer wg.Done()
			e.copyRange(src, dst, dstDims, start, end)
		})
	}
	wg.Wait()
	return nil
}

// copyRange copies the destination slices [batchStart, batchEnd) of the
// outermost reshaped axis.
//
// The destination is written sequentially; only the source needs the
// odometer walk (row-major multi-index increment with incremental flat
// offsets).
func (e *Executor) copyRange(src, dst []byte, dstDims []int, batchStart, batchEnd int) {
	if batchEnd <= batchStart {
		return
	}
	elementSize := e.plan.ElementSize
	rank := e.plan.ReshapedRank

	// With a contiguous innermost axis whole rows are copied at once.
	chunk := elementSize
	iterRank := rank
	if e.contiguousInner {
		chunk = dstDims[rank-1] * elementSize
		iterRank--
		if iterRank == 0 {
			copy(dst[:chunk], src[:chunk])
			return
		}
	}

	dstRowBytes := chunk
	for axis := 1; axis < iterRank; axis++ {
		dstRowBytes *= dstDims[axis]
	}

	perAxisIdx := make([]int, iterRank)
	perAxisIdx[0] = batchStart
	srcOffset := batchStart * e.srcStridesOnDst[0]
	dstOffset := batchStart * dstRowBytes

	for {
		copy(dst[dstOffset:dstOffset+chunk], src[srcOffset:srcOffset+chunk])
		dstOffset += chunk

		// Advance the source odometer, innermost axis first.
		axis := iterRank - 1
		for ; axis >= 0; axis-- {
			perAxisIdx[axis]++
			srcOffset += e.srcStridesOnDst[axis]
			limit := dstDims[axis]
			if axis == 0 {
				limit = batchEnd
			}
			if perAxisIdx[axis] < limit {
				break
			}
			if axis == 0 {
				return
			}
			// Rewind this axis; the next outer axis is bumped instead.
			perAxisIdx[axis] = 0
			srcOffset -= dstDims[axis] * e.srcStridesOnDst[axis]
		}
	}
}
