package engine

import (
	"context"
	"fmt"

	"github.com/llbuild2/llbuild2-go/action"
)

/***************************************
 * Compute context (§4.7 "fi")
 *
 * Passed to Key.Compute as fi: the surface a key's own logic uses to read
 * resources, spawn actions, and request child keys, all of it routed
 * back through the owning Engine so every suspension point is visible to
 * cancellation, in-flight dedup, and cycle detection. Grounded on
 * utils.BuildContext (the teacher's equivalent surface passed to
 * Buildable.Build), generalized from a single build-graph method set to
 * the engine's resource/action/child-key trio.
 ***************************************/

// ComputeContext is the per-compute handle a Key receives; it is not
// safe to retain past the Compute call that received it.
type ComputeContext struct {
	engine *Engine
	fp     Fingerprint
	// path is the chain of ancestor fingerprints (root first, ending in
	// fp) leading to this compute, threaded down so a failing child's
	// ValueComputationError.PathToKey (§7) records the requesting chain.
	path []Fingerprint
}

// Resource returns the named resource iff it is listed in entitlements,
// which the caller passes (normally its key's ResourceEntitlements());
// the key itself is not consulted. Unentitled access returns ok=false and
// leaves the response (often an error) to the caller, per §4.7.
func (fi *ComputeContext) Resource(key ResourceKey, entitlements []ResourceKey) (Resource, bool) {
	entitled := false
	for _, e := range entitlements {
		if e == key {
			entitled = true
			break
		}
	}
	if !entitled {
		return nil, false
	}
	return fi.engine.resources.find(key)
}

// Spawn schedules an action (§4.4) through the engine's executor. Spawn
// itself runs the action every time it's called; a key that wants the
// engine's memoization for a given action result wraps the ActionSpec in
// a Key of its own so the action's output gets the same fingerprint/cache
// treatment as any other computed Value.
func (fi *ComputeContext) Spawn(ctx context.Context, req action.ActionExecutionRequest) (*action.ExecutionResult, error) {
	if fi.engine.executor == nil {
		return nil, fmt.Errorf("engine: no action executor configured")
	}
	return fi.engine.executor.Execute(ctx, req)
}

// Request evaluates a child key, registering a dependency edge from the
// requesting key's fingerprint to the child's so the engine's cycle
// detector sees it.
func (fi *ComputeContext) Request(ctx context.Context, key Key) (Value, error) {
	return fi.engine.evaluate(ctx, fi.path, key)
}
