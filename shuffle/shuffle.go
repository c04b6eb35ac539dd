// Package shuffle implements the core of the channel-shuffle permutation
// engine: it derives an index-permutation plan from the shuffle parameters
// and the physical memory layout, caches the compiled executors by the
// structural attributes, and executes the resulting generic strided copy
// against raw byte buffers.
//
// The pieces, in the order they are used:
//
//   - Attributes: the immutable per-execution-context key, one per distinct
//     (operation configuration, runtime shape) observation.
//   - BuildPlan: pure derivation of the reshape+permutation schedule (Plan)
//     from Attributes.
//   - Cache: memoizes Attributes -> *Executor with single-flight semantics.
//   - Executor: walks the permutation and relocates elementSize-byte cells.
//
// Callers normally go through the chanshuffle package, which adds the
// node-adapter plumbing (axis normalization, element-size gating, dynamic
// batch rules).
package shuffle

import (
	"github.com/pkg/errors"
)

// Error taxonomy of the engine. All errors are synchronous, surfaced to the
// immediate caller and never retried internally.
var (
	// ErrConfiguration indicates an invalid shuffle configuration: a group
	// that does not divide the shuffle-axis extent, an unsupported layout or
	// element size. Retrying cannot help without changing the input.
	ErrConfiguration = errors.New("invalid shuffle configuration")

	// ErrPrecondition indicates an API ordering or buffer precondition
	// violated by the caller: executing before a plan exists, or buffers too
	// small for the plan.
	ErrPrecondition = errors.New("precondition violated")

	// ErrNotFound indicates the cache could not produce an executor for a
	// key. Failed builds are never cached, so a retry with corrected
	// attributes can succeed.
	ErrNotFound = errors.New("no executor found for key")
)
