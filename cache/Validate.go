package cache

import (
	"context"

	"github.com/llbuild2/llbuild2-go/cas"
)

/***************************************
 * Validate & repair (§4.8)
 *
 * Optional per-key hooks run after a cache hit and before the value
 * reaches waiters. The engine (engine/Engine.go) is the actual caller of
 * these during its evaluate algorithm; this file just gives the hook
 * signatures and the small helper that applies them, so the engine's hot
 * path reads as "cache.Lookup(...)" rather than reimplementing the
 * hit/validate/fix dance at every call site.
 ***************************************/

// ValidateFunc rejects a cache hit even though its fingerprint matched.
type ValidateFunc func(value cas.DataID) bool

// FixFunc offers a replacement for a rejected cache hit; returning
// ok=false forces recomputation.
type FixFunc func(ctx context.Context, value cas.DataID) (fixed cas.DataID, ok bool)

// LookupResult distinguishes the three outcomes of Lookup so a caller
// doesn't have to reverse-engineer them from a DataID/bool pair.
type LookupResult int

const (
	LOOKUP_MISS LookupResult = iota
	LOOKUP_HIT
	LOOKUP_FIXED
)

// Lookup performs a cache read followed by the validate/fixCached sequence
// of §4.8: a plain hit returns LOOKUP_HIT; a hit rejected by validate and
// repaired by fix returns LOOKUP_FIXED with the re-stored value, and
// re-records it in the cache under the same fingerprint; anything else is
// LOOKUP_MISS.
func Lookup(ctx context.Context, backend Backend, fingerprint Fingerprint, validate ValidateFunc, fix FixFunc) (cas.DataID, LookupResult) {
	value, ok := backend.Get(ctx, fingerprint)
	if !ok {
		return cas.NilDataID, LOOKUP_MISS
	}
	if validate == nil || validate(value) {
		return value, LOOKUP_HIT
	}
	if fix == nil {
		return cas.NilDataID, LOOKUP_MISS
	}
	fixed, ok := fix(ctx, value)
	if !ok {
		return cas.NilDataID, LOOKUP_MISS
	}
	_ = backend.Update(ctx, fingerprint, fixed) // last-writer-wins, safe to ignore a race here
	return fixed, LOOKUP_FIXED
}
