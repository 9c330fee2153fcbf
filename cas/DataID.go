package cas

import (
	"github.com/llbuild2/llbuild2-go/internal/base"
)

/***************************************
 * DataID: opaque, stably-comparable identifier for a CAS object
 *
 * Backed by base.Digest (blake3-256). DataID is deliberately a thin alias
 * rather than a new type so CAS objects and engine key fingerprints (§4.5)
 * share one hashing/serialization story end to end.
 ***************************************/

type DataID = base.Digest

// NilDataID is the zero id: never produced by Identify, used as a sentinel
// for "no object" (e.g. an action output that was never written).
var NilDataID DataID

func IsNilDataID(id DataID) bool {
	return !id.Valid()
}
