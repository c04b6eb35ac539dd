// Package chanshuffle implements a layout-aware channel-shuffle permutation
// engine: it splits a chosen tensor axis into group x groupSize sub-axes,
// transposes them (interleaving the group blocks) and executes the resulting
// index permutation against raw memory, for planar (row-major),
// channels-last and channel-blocked physical layouts.
//
// Usage mirrors the lifecycle of an operator node in a graph runtime:
//
//	ctx := chanshuffle.NewContext()
//	op := must.M1(chanshuffle.New( /* axis= */ 1, /* group= */ 2, /* rank= */ 4))
//	desc := layouts.Make(layouts.Planar, 1, 4, 2, 2)
//	must.M(op.Prepare(ctx, desc, dtypes.Float32))
//	must.M(op.Execute(src, dst, -1))
//
// New is called once per operator configuration, Prepare once per observed
// runtime shape (compiled plans are memoized in the Context's cache) and
// Execute once per batch of data. The heavy lifting -- plan derivation,
// caching and the strided copy -- lives in the shuffle sub-package.
package chanshuffle

import (
	"slices"

	"github.com/gomlx/chanshuffle/internal/workerspool"
	"github.com/gomlx/chanshuffle/layouts"
	"github.com/gomlx/chanshuffle/shuffle"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Context owns the runtime cache of compiled shuffle executors and the
// worker pool they stripe their copies on. It plays the role of the
// per-device execution context: create one per device (or share one across
// operators of the same device) and drop it to release everything.
type Context struct {
	workers *workerspool.Pool
	cache   *shuffle.Cache
}

// NewContext returns a Context with an empty cache and a worker pool sized
// to runtime.NumCPU().
func NewContext() *Context {
	pool := workerspool.New()
	return &Context{
		workers: pool,
		cache:   shuffle.NewCache(pool),
	}
}

// Workers exposes the pool, so callers can tune parallelism before the first
// Prepare.
func (ctx *Context) Workers() *workerspool.Pool { return ctx.workers }

// Cache exposes the plan cache.
func (ctx *Context) Cache() *shuffle.Cache { return ctx.cache }

// supportedElementSizes gates the element byte-sizes the executor handles.
var supportedElementSizes = []int{1, 2, 4, 8, 16}

// Shuffler is the node adapter: it holds the per-operator configuration
// (axis, group) and, after a successful Prepare, the executor compiled for
// the last observed shape.
//
// A Shuffler is not safe for concurrent use; the Context and its cache are.
type Shuffler struct {
	axis, group, rank int

	// dynamicBatch: batch overrides only make sense when the batch axis
	// passes through the permutation untouched.
	dynamicBatch bool

	exec *shuffle.Executor
}

// New creates a Shuffler for the given operator configuration. A negative
// axis counts from the end (axis += rank). Dynamic batching (the batch
// argument of Execute) is supported iff the normalized axis is not 0.
func New(axis, group, rank int) (*Shuffler, error) {
	if rank < 1 {
		return nil, errors.Wrapf(shuffle.ErrConfiguration, "rank must be >= 1, got %d", rank)
	}
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return nil, errors.Wrapf(shuffle.ErrConfiguration, "axis %d out of range for rank %d", axis, rank)
	}
	if group <= 0 {
		return nil, errors.Wrapf(shuffle.ErrConfiguration, "group must be > 0, got %d", group)
	}
	return &Shuffler{
		axis:         axis,
		group:        group,
		rank:         rank,
		dynamicBatch: axis != 0,
	}, nil
}

// Axis returns the normalized shuffle axis.
func (s *Shuffler) Axis() int { return s.axis }

// Group returns the shuffle group count.
func (s *Shuffler) Group() int { return s.group }

// DynamicBatch returns whether Execute accepts a batch override.
func (s *Shuffler) DynamicBatch() bool { return s.dynamicBatch }

// Prepare resolves (building or fetching from the Context's cache) the
// executor for the given shape and dtype. Call it again whenever the runtime
// shape changes; unchanged shapes hit the cache.
//
// It returns ErrConfiguration for unsupported element sizes, a non-divisible
// group, blocked layouts shuffling the channel axis, or a shape whose rank
// does not match the one given to New.
func (s *Shuffler) Prepare(ctx *Context, desc layouts.ShapeDescriptor, dtype dtypes.DType) error {
	if desc.Rank() != s.rank {
		return errors.Wrapf(shuffle.ErrConfiguration,
			"shape %s has rank %d, operator was built for rank %d", desc, desc.Rank(), s.rank)
	}
	elementSize := int(dtype.Memory())
	if !slices.Contains(supportedElementSizes, elementSize) {
		return errors.Wrapf(shuffle.ErrConfiguration,
			"unsupported element size %d bytes (dtype %s)", elementSize, dtype)
	}
	attrs, err := shuffle.NewAttributes(desc, s.axis, s.group, elementSize)
	if err != nil {
		return err
	}
	exec, err := ctx.cache.GetOrCreate(attrs)
	if err != nil {
		return err
	}
	s.exec = exec
	return nil
}

// Execute runs the shuffle: src is read, dst is written, both at least as
// large as the prepared plan requires. batch overrides the outermost extent
// when >= 0 and dynamic batching is supported; it is ignored otherwise. Pass
// a negative batch to process the full prepared shape.
//
// It returns ErrPrecondition if called before a successful Prepare, or if
// the buffers are too small.
func (s *Shuffler) Execute(src, dst []byte, batch int) error {
	if s.exec == nil {
		return errors.Wrapf(shuffle.ErrPrecondition, "Execute called before a successful Prepare")
	}
	if !s.dynamicBatch {
		batch = -1
	}
	return s.exec.Exec(src, dst, batch)
}
