package cache

import (
	"context"

	"github.com/llbuild2/llbuild2-go/cas"
	"github.com/llbuild2/llbuild2-go/internal/base"
)

var LogCache = base.NewLogCategory("Cache")

/***************************************
 * Function cache (§4.6)
 *
 * Maps a key's fingerprint to the DataID of its computed value. Both
 * operations are idempotent: a miss (including an I/O error reading a
 * backend) is reported as "not found", never as an error -- the cache is
 * an optimization the engine can always fall back from, not a source of
 * truth it depends on.
 ***************************************/

// Fingerprint is a key's stable hash (§4.5): the same blake3 digest type as
// a CAS DataID, used both as the cache's key and the engine's in-flight
// dedup key.
type Fingerprint = cas.DataID

type Backend interface {
	// Get reports the DataID last recorded for fingerprint, or ok=false on
	// a miss (not-found or any backend I/O failure alike).
	Get(ctx context.Context, fingerprint Fingerprint) (value cas.DataID, ok bool)

	// Update records value under fingerprint. Concurrent writers for the
	// same fingerprint race harmlessly: since values are content-addressed,
	// every writer for a given fingerprint computed the same value, so the
	// "last writer wins" outcome is observationally invisible.
	Update(ctx context.Context, fingerprint Fingerprint, value cas.DataID) error
}
