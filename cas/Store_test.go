package cas

import (
	"context"
	"os"
	"testing"

	"github.com/llbuild2/llbuild2-go/internal/base"
)

func testStorePutGetContains(t *testing.T, store Store) {
	ctx := context.Background()

	id, err := store.Put(ctx, nil, []byte("hello world"))
	if err != nil {
		t.Fatal(err)
	}

	if ok, err := store.Contains(ctx, id); err != nil || !ok {
		t.Fatalf("expected contains=true, got %v, err=%v", ok, err)
	}

	obj, err := store.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if obj == nil {
		t.Fatal("expected object, got nil")
	}
	if string(obj.Data) != "hello world" {
		t.Fatalf("unexpected data: %q", obj.Data)
	}
	if len(obj.Refs) != 0 {
		t.Fatalf("unexpected refs: %v", obj.Refs)
	}

	missing := base.StringDigest("not stored")
	if ok, err := store.Contains(ctx, missing); err != nil || ok {
		t.Fatalf("expected contains=false, got %v, err=%v", ok, err)
	}
	if obj, err := store.Get(ctx, missing); err != nil || obj != nil {
		t.Fatalf("expected (nil,nil) for missing object, got %v, %v", obj, err)
	}
}

func testStorePutIdempotent(t *testing.T, store Store) {
	ctx := context.Background()
	refs := []DataID{base.StringDigest("child-a"), base.StringDigest("child-b")}
	data := []byte("a directory's worth of bytes")

	id1, err := store.Put(ctx, refs, data)
	if err != nil {
		t.Fatal(err)
	}
	id2, err := store.Put(ctx, refs, data)
	if err != nil {
		t.Fatal(err)
	}
	if id1 != id2 {
		t.Fatalf("put is not idempotent: %v != %v", id1, id2)
	}
	if id1 != store.Identify(refs, data) {
		t.Fatal("identify disagrees with the id put assigned")
	}

	obj, err := store.Get(ctx, id1)
	if err != nil || obj == nil {
		t.Fatalf("expected object after put, got %v, %v", obj, err)
	}
	if len(obj.Refs) != 2 || obj.Refs[0] != refs[0] || obj.Refs[1] != refs[1] {
		t.Fatalf("refs not round-tripped: %v", obj.Refs)
	}
}

func TestMemStore(t *testing.T) {
	store := NewMemStore()
	testStorePutGetContains(t, store)
	testStorePutIdempotent(t, store)
}

func TestFileStore(t *testing.T) {
	dir, err := os.MkdirTemp("", "cas-filestore-test-")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	testStorePutGetContains(t, store)
	testStorePutIdempotent(t, store)
}

func TestIdentifyPure(t *testing.T) {
	refs := []DataID{base.StringDigest("x")}
	data := []byte("payload")

	id1 := Identify(refs, data)
	id2 := Identify(refs, data)
	if id1 != id2 {
		t.Fatal("identify is not pure/deterministic")
	}

	other := Identify(nil, data)
	if id1 == other {
		t.Fatal("identify must distinguish ref lists from payload bytes")
	}
}
