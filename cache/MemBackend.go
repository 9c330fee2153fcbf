package cache

import (
	"context"

	"github.com/llbuild2/llbuild2-go/cas"
	"github.com/llbuild2/llbuild2-go/internal/base"
)

/***************************************
 * MemBackend: in-memory function cache
 *
 * Grounded on the same SharedMapT-backed registry idiom as cas.MemStore
 * and internal/base's own Serializable type registry: a concurrent map is
 * enough, since the whole point of this backend is a process-lifetime
 * cache with no durability story.
 ***************************************/

type MemBackend struct {
	entries base.SharedMapT[Fingerprint, cas.DataID]
}

func NewMemBackend() *MemBackend {
	return &MemBackend{entries: *base.NewSharedMap[Fingerprint, cas.DataID](0)}
}

func (m *MemBackend) Get(ctx context.Context, fingerprint Fingerprint) (cas.DataID, bool) {
	return m.entries.Get(fingerprint)
}

func (m *MemBackend) Update(ctx context.Context, fingerprint Fingerprint, value cas.DataID) error {
	m.entries.Add(fingerprint, value)
	return nil
}

func (m *MemBackend) Len() int {
	return m.entries.Len()
}
