package cas

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/llbuild2/llbuild2-go/internal/base"
)

/***************************************
 * FileStore: filesystem-backed CAS
 *
 * Layout mirrors the action cache's own sharded path scheme (root/shard/id):
 * two hex chars of the id name a shard directory, keeping any single
 * directory from growing past a few thousand entries. Each object is one
 * file: a small header (ref count, ref bytes) followed by the raw payload,
 * so Get never needs a second file to recover the ref list.
 ***************************************/

var LogCAS = base.NewLogCategory("CAS")

type FileStore struct {
	root string
}

func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o777); err != nil {
		return nil, Permanent(err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Identify(refs []DataID, data []byte) DataID {
	return Identify(refs, data)
}

func (s *FileStore) path(id DataID) string {
	hex := id.String()
	return filepath.Join(s.root, hex[:2], hex[2:])
}

func (s *FileStore) Put(ctx context.Context, refs []DataID, data []byte) (DataID, error) {
	id := Identify(refs, data)
	dst := s.path(id)

	if _, err := os.Stat(dst); err == nil {
		return id, nil
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o777); err != nil {
		return NilDataID, Permanent(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "obj-*.tmp")
	if err != nil {
		return NilDataID, Transient(err)
	}
	defer os.Remove(tmp.Name())

	if err := writeObject(tmp, refs, data); err != nil {
		tmp.Close()
		return NilDataID, Permanent(err)
	}
	if err := tmp.Close(); err != nil {
		return NilDataID, Transient(err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil && !os.IsExist(err) {
		return NilDataID, Transient(err)
	}
	return id, nil
}

func (s *FileStore) Get(ctx context.Context, id DataID) (*Object, error) {
	f, err := os.Open(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, Transient(err)
	}
	defer f.Close()

	refs, data, err := readObject(f)
	if err != nil {
		return nil, Permanent(fmt.Errorf("cas: corrupt object %s: %w", id.ShortString(), err))
	}
	return &Object{Refs: refs, Data: data}, nil
}

func (s *FileStore) Contains(ctx context.Context, id DataID) (bool, error) {
	_, err := os.Stat(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, Transient(err)
	}
	return true, nil
}

func writeObject(w io.Writer, refs []DataID, data []byte) error {
	var header [8]byte
	binary.LittleEndian.PutUint64(header[:], uint64(len(refs)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	for _, ref := range refs {
		if _, err := w.Write(ref.Slice()); err != nil {
			return err
		}
	}
	_, err := w.Write(data)
	return err
}

func readObject(r io.Reader) (refs []DataID, data []byte, err error) {
	var header [8]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return nil, nil, err
	}
	count := binary.LittleEndian.Uint64(header[:])
	if count > 1<<20 {
		return nil, nil, fmt.Errorf("unreasonable ref count %d", count)
	}

	refs = make([]DataID, count)
	for i := range refs {
		if _, err = io.ReadFull(r, refs[i][:]); err != nil {
			return nil, nil, err
		}
	}

	data, err = io.ReadAll(r)
	if err != nil {
		return nil, nil, err
	}
	return refs, data, nil
}
