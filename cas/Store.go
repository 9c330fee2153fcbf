package cas

import "context"

/***************************************
 * Store: the CAS interface (§4.1)
 *
 * Only the interface is in scope here -- concrete backends (in-memory,
 * filesystem, remote) are external collaborators. Put/Get/Contains are the
 * only durable storage operations the rest of the engine relies on; every
 * CAS failure surfaces as a TransientError or PermanentError (Errors.go) so
 * callers up the stack (import, cache, engine) can react without sniffing
 * error strings.
 ***************************************/

type Store interface {
	// Put stores (refs,data), returning the id it would also return from
	// Identify. Idempotent: storing the same content twice is a no-op that
	// still returns the correct id.
	Put(ctx context.Context, refs []DataID, data []byte) (DataID, error)

	// Get returns the object for id, or (nil,nil) if id is genuinely absent.
	Get(ctx context.Context, id DataID) (*Object, error)

	// Contains reports whether id is currently stored. Consistent with Get
	// only at the instant of the call -- no cross-time guarantee.
	Contains(ctx context.Context, id DataID) (bool, error)

	// Identify computes the id Put would assign, without any I/O.
	Identify(refs []DataID, data []byte) DataID
}

// PutObject is a small convenience wrapper over Put for callers that already
// hold an assembled Object (the file-tree codec almost always does).
func PutObject(ctx context.Context, store Store, obj Object) (DataID, error) {
	return store.Put(ctx, obj.Refs, obj.Data)
}
