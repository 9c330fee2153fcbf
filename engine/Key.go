package engine

import (
	"context"

	"github.com/llbuild2/llbuild2-go/action"
	"github.com/llbuild2/llbuild2-go/cas"
	"github.com/llbuild2/llbuild2-go/internal/base"
)

var LogEngine = base.NewLogCategory("Engine")

/***************************************
 * Key / value contract (§4.5)
 *
 * Grounded on the teacher's own "dynamic polymorphic codec" idiom
 * (internal/base/Serializable.go's type-tag factory, RegisterSerializable)
 * and on utils.Buildable (Build(BuildContext) error): a Key is the engine's
 * generic stand-in for a Buildable, with the CommandFlagsVisitor-driven
 * fingerprint replaced by the fully reflective flag encoder in Flags.go,
 * since the spec asks for a fingerprint of *any* key type, not just the
 * ones wired through explicit Flags() declarations.
 ***************************************/

// TypeID globally identifies a Key's (or Value's) concrete type. Keys and
// values register at startup the same way internal/base's serializable
// factory registers concrete types by name, and lookups that can't resolve
// a TypeID fail with UnknownKeyIdentifier rather than panicking.
type TypeID string

// Key is the generic unit of work the engine evaluates. Implementations
// are plain structs (no embedded state, no pointers back into the
// engine): the engine owns all identity and caching concerns, a Key only
// describes what to compute and how to compute it.
type Key interface {
	// TypeID names this key's concrete type for the fingerprint and for
	// decoding a cached result back into the right shape.
	TypeID() TypeID

	// Version is this key type's own declared version; bumping it
	// invalidates every cached value for this type.
	Version() int

	// VersionDependencies lists other key types (by their zero-field
	// TypeID) whose effective version folds into this key's effective
	// version (§4.5 aggregatedVersion).
	VersionDependencies() []TypeID

	// ActionDependencies lists action specs whose fingerprints fold into
	// this key's effective version, for keys that spawn actions whose
	// shape is known ahead of computation.
	ActionDependencies() []action.ActionSpec

	// Volatile keys are never read from or written to the function cache,
	// though they are still deduplicated in-flight (§4.5).
	Volatile() bool

	// ResourceEntitlements lists the resource keys this key's Compute is
	// allowed to access via ComputeContext.Resource.
	ResourceEntitlements() []ResourceKey

	// Compute runs the key's logic, producing a Value. fi exposes
	// resource access, action spawning, and child-key requests; ctx
	// carries cancellation.
	Compute(fi *ComputeContext, ctx context.Context) (Value, error)
}

// Value is anything a Key's Compute can produce. Every value encodes to
// (refs[], codableValue) and thus to one CAS object (§4.5): refs is the
// fixed sequence of DataIDs reachable from the value (so the engine can
// walk/GC/export them uniformly), codableValue is everything else.
type Value interface {
	TypeID() TypeID
	Refs() []cas.DataID
	CodableValue() []byte
}

// ValidatingValue is an optional extension a Value can implement to
// participate in the validate/fixCached hooks of §4.8.
type ValidatingValue interface {
	// ValidateCache rejects a cache hit even though its fingerprint
	// matched, e.g. because referenced content has gone stale by some
	// out-of-band signal.
	ValidateCache(ctx context.Context) bool
}

// FixableKey is the companion hook on the Key side: a key whose cached
// value was rejected by ValidateCache gets one chance to repair it before
// the engine falls back to full recomputation.
type FixableKey interface {
	FixCached(fi *ComputeContext, ctx context.Context, rejected Value) (fixed Value, ok bool)
}
