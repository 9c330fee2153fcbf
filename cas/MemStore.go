package cas

import (
	"context"

	"github.com/llbuild2/llbuild2-go/internal/base"
)

/***************************************
 * MemStore: in-memory CAS backend
 *
 * Backed by base.SharedMapT, the mutex-guarded concurrent map from
 * internal/base -- a small object store is read-mostly, with occasional
 * inserts and no iteration on the hot path.
 ***************************************/

type MemStore struct {
	objects base.SharedMapT[DataID, Object]
}

func NewMemStore() *MemStore {
	return &MemStore{objects: *base.NewSharedMap[DataID, Object](0)}
}

func (s *MemStore) Identify(refs []DataID, data []byte) DataID {
	return Identify(refs, data)
}

func (s *MemStore) Put(ctx context.Context, refs []DataID, data []byte) (DataID, error) {
	id := Identify(refs, data)
	if _, loaded := s.objects.Get(id); !loaded {
		// copy refs/data: the caller may reuse or mutate its buffers after Put
		// returns, and objects are meant to be immutable once stored.
		storedRefs := make([]DataID, len(refs))
		copy(storedRefs, refs)
		storedData := make([]byte, len(data))
		copy(storedData, data)
		s.objects.Add(id, Object{Refs: storedRefs, Data: storedData})
	}
	return id, nil
}

func (s *MemStore) Get(ctx context.Context, id DataID) (*Object, error) {
	if obj, ok := s.objects.Get(id); ok {
		result := obj
		return &result, nil
	}
	return nil, nil
}

func (s *MemStore) Contains(ctx context.Context, id DataID) (bool, error) {
	_, ok := s.objects.Get(id)
	return ok, nil
}

func (s *MemStore) Len() int {
	return s.objects.Len()
}
