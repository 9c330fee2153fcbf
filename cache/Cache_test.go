package cache

import (
	"context"
	"os"
	"testing"

	"github.com/llbuild2/llbuild2-go/cas"
)

func dataIDOf(b byte) cas.DataID {
	var id cas.DataID
	for i := range id {
		id[i] = b
	}
	return id
}

func TestMemBackendGetUpdateMiss(t *testing.T) {
	ctx := context.Background()
	backend := NewMemBackend()

	fp := dataIDOf(0x11)
	if _, ok := backend.Get(ctx, fp); ok {
		t.Fatalf("expected miss before any Update")
	}

	value := dataIDOf(0x22)
	if err := backend.Update(ctx, fp, value); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, ok := backend.Get(ctx, fp)
	if !ok {
		t.Fatalf("expected hit after Update")
	}
	if got != value {
		t.Fatalf("got %v, want %v", got, value)
	}

	if backend.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", backend.Len())
	}
}

func TestMemBackendLastWriterWins(t *testing.T) {
	ctx := context.Background()
	backend := NewMemBackend()
	fp := dataIDOf(0x33)

	first := dataIDOf(0x44)
	second := dataIDOf(0x55)

	if err := backend.Update(ctx, fp, first); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := backend.Update(ctx, fp, second); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, ok := backend.Get(ctx, fp)
	if !ok || got != second {
		t.Fatalf("got (%v, %v), want (%v, true)", got, ok, second)
	}
}

func TestFileBackendGetUpdateMiss(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	backend, err := NewFileBackend(root, "v1")
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}

	fp := dataIDOf(0x66)
	if _, ok := backend.Get(ctx, fp); ok {
		t.Fatalf("expected miss for unwritten fingerprint")
	}

	value := dataIDOf(0x77)
	if err := backend.Update(ctx, fp, value); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, ok := backend.Get(ctx, fp)
	if !ok {
		t.Fatalf("expected hit after Update")
	}
	if got != value {
		t.Fatalf("got %v, want %v", got, value)
	}
}

func TestFileBackendIdempotentRewrite(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	backend, err := NewFileBackend(root, "v1")
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}

	fp := dataIDOf(0x88)
	value := dataIDOf(0x99)

	if err := backend.Update(ctx, fp, value); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := backend.Update(ctx, fp, value); err != nil {
		t.Fatalf("Update (again): %v", err)
	}

	got, ok := backend.Get(ctx, fp)
	if !ok || got != value {
		t.Fatalf("got (%v, %v), want (%v, true)", got, ok, value)
	}
}

func TestFileBackendMalformedEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	backend, err := NewFileBackend(root, "v1")
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}

	fp := dataIDOf(0xaa)

	// Write a truncated entry directly at the path the backend would use,
	// bypassing Update to simulate on-disk corruption.
	corruptPath := backend.path(fp)
	if err := os.WriteFile(corruptPath, []byte("short"), 0o666); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, ok := backend.Get(ctx, fp); ok {
		t.Fatalf("expected miss for malformed entry")
	}
}

func TestFileBackendVersionNamespacing(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	v1, err := NewFileBackend(root, "v1")
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}
	v2, err := NewFileBackend(root, "v2")
	if err != nil {
		t.Fatalf("NewFileBackend: %v", err)
	}

	fp := dataIDOf(0xbb)
	value := dataIDOf(0xcc)
	if err := v1.Update(ctx, fp, value); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if _, ok := v2.Get(ctx, fp); ok {
		t.Fatalf("expected a version bump to invalidate entries from the old version")
	}
}

func TestLookupPlainHit(t *testing.T) {
	ctx := context.Background()
	backend := NewMemBackend()
	fp := dataIDOf(0xdd)
	value := dataIDOf(0xee)

	if err := backend.Update(ctx, fp, value); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, result := Lookup(ctx, backend, fp, nil, nil)
	if result != LOOKUP_HIT {
		t.Fatalf("result = %v, want LOOKUP_HIT", result)
	}
	if got != value {
		t.Fatalf("got %v, want %v", got, value)
	}
}

func TestLookupMiss(t *testing.T) {
	ctx := context.Background()
	backend := NewMemBackend()
	fp := dataIDOf(0x01)

	_, result := Lookup(ctx, backend, fp, nil, nil)
	if result != LOOKUP_MISS {
		t.Fatalf("result = %v, want LOOKUP_MISS", result)
	}
}

func TestLookupRejectedAndFixed(t *testing.T) {
	ctx := context.Background()
	backend := NewMemBackend()
	fp := dataIDOf(0x02)
	stale := dataIDOf(0x03)
	fresh := dataIDOf(0x04)

	if err := backend.Update(ctx, fp, stale); err != nil {
		t.Fatalf("Update: %v", err)
	}

	validate := func(value cas.DataID) bool { return value != stale }
	fix := func(ctx context.Context, value cas.DataID) (cas.DataID, bool) { return fresh, true }

	got, result := Lookup(ctx, backend, fp, validate, fix)
	if result != LOOKUP_FIXED {
		t.Fatalf("result = %v, want LOOKUP_FIXED", result)
	}
	if got != fresh {
		t.Fatalf("got %v, want %v", got, fresh)
	}

	// the fixed value should now be what a plain Get reports.
	stored, ok := backend.Get(ctx, fp)
	if !ok || stored != fresh {
		t.Fatalf("backend.Get after fix = (%v, %v), want (%v, true)", stored, ok, fresh)
	}
}

func TestLookupRejectedWithNoFix(t *testing.T) {
	ctx := context.Background()
	backend := NewMemBackend()
	fp := dataIDOf(0x05)
	stale := dataIDOf(0x06)

	if err := backend.Update(ctx, fp, stale); err != nil {
		t.Fatalf("Update: %v", err)
	}

	validate := func(value cas.DataID) bool { return false }

	_, result := Lookup(ctx, backend, fp, validate, nil)
	if result != LOOKUP_MISS {
		t.Fatalf("result = %v, want LOOKUP_MISS", result)
	}
}
