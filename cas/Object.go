package cas

import (
	"encoding/binary"

	"github.com/llbuild2/llbuild2-go/internal/base"
)

/***************************************
 * CAS object: (refs, data) pair
 *
 * Immutable once stored. Put is idempotent: identical (refs,data) always
 * identifies to the same DataID, so Identify can be computed without I/O
 * and used as a cache key ahead of any backend round-trip (§4.1).
 ***************************************/

type Object struct {
	Refs []DataID
	Data []byte
}

func MakeObject(data []byte, refs ...DataID) Object {
	return Object{Refs: refs, Data: data}
}

func (o Object) Size() int {
	return len(o.Data)
}

func (o Object) ID() DataID {
	return Identify(o.Refs, o.Data)
}

// Identify is a pure function (no I/O): the id Put would assign to
// (refs,data), computed by hashing a canonical length-prefixed encoding so
// that DataID boundaries never blur between the ref list and the payload.
func Identify(refs []DataID, data []byte) DataID {
	digester := base.DigesterPool.Allocate()
	defer base.DigesterPool.Release(digester)

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(refs)))
	digester.Write(lenBuf[:])
	for _, ref := range refs {
		digester.Write(ref.Slice())
	}

	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	digester.Write(lenBuf[:])
	digester.Write(data)

	var result DataID
	copy(result[:], digester.Sum(nil))
	return result
}

// DirectHash builds a DataID from literal bytes rather than hashing them --
// used when a caller already holds a trusted digest (e.g. re-importing a
// previously exported tree) and wants to avoid rehashing large content.
func DirectHash(raw []byte) (id DataID, ok bool) {
	if len(raw) != base.DigestSize {
		return NilDataID, false
	}
	copy(id[:], raw)
	return id, true
}
