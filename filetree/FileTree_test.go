package filetree

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/llbuild2/llbuild2-go/cas"
)

func writeTestTree(t *testing.T, root string) {
	t.Helper()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}

	must(os.MkdirAll(filepath.Join(root, "a", "b"), 0o777))
	must(os.WriteFile(filepath.Join(root, "top.txt"), []byte("top level file"), 0o666))
	must(os.WriteFile(filepath.Join(root, "a", "nested.txt"), []byte("nested file content, long enough to span more than one tiny chunk if configured so"), 0o666))
	must(os.WriteFile(filepath.Join(root, "a", "b", "script.sh"), []byte("#!/bin/sh\necho hi\n"), 0o777))
	must(os.WriteFile(filepath.Join(root, "empty.txt"), []byte{}, 0o666))
	must(os.Symlink("top.txt", filepath.Join(root, "link-to-top")))
}

func TestImportExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := cas.NewMemStore()

	srcRoot := t.TempDir()
	writeTestTree(t, srcRoot)

	importer := NewImporter(store)
	rootID, err := importer.Import(ctx, srcRoot)
	if err != nil {
		t.Fatal(err)
	}
	if importer.Phase() != PHASE_IMPORTSUCCEEDED {
		t.Fatalf("expected ImportSucceeded, got %v", importer.Phase())
	}

	dstRoot := t.TempDir()
	if err := Export(ctx, store, rootID, dstRoot); err != nil {
		t.Fatal(err)
	}

	assertSameFile(t, filepath.Join(srcRoot, "top.txt"), filepath.Join(dstRoot, "top.txt"))
	assertSameFile(t, filepath.Join(srcRoot, "a", "nested.txt"), filepath.Join(dstRoot, "a", "nested.txt"))
	assertSameFile(t, filepath.Join(srcRoot, "a", "b", "script.sh"), filepath.Join(dstRoot, "a", "b", "script.sh"))
	assertSameFile(t, filepath.Join(srcRoot, "empty.txt"), filepath.Join(dstRoot, "empty.txt"))

	srcInfo, err := os.Lstat(filepath.Join(srcRoot, "a", "b", "script.sh"))
	if err != nil {
		t.Fatal(err)
	}
	dstInfo, err := os.Lstat(filepath.Join(dstRoot, "a", "b", "script.sh"))
	if err != nil {
		t.Fatal(err)
	}
	if (srcInfo.Mode()&0o111 == 0) != (dstInfo.Mode()&0o111 == 0) {
		t.Fatalf("executable bit not preserved: src=%v dst=%v", srcInfo.Mode(), dstInfo.Mode())
	}

	target, err := os.Readlink(filepath.Join(dstRoot, "link-to-top"))
	if err != nil {
		t.Fatal(err)
	}
	if target != "top.txt" {
		t.Fatalf("symlink target not preserved: %q", target)
	}
}

func TestImportExportRoundTripChunked(t *testing.T) {
	ctx := context.Background()
	store := cas.NewMemStore()

	srcRoot := t.TempDir()
	big := make([]byte, 10000)
	for i := range big {
		big[i] = byte(i % 251)
	}
	if err := os.WriteFile(filepath.Join(srcRoot, "big.bin"), big, 0o666); err != nil {
		t.Fatal(err)
	}

	importer := NewImporter(store, ImportOptionChunkSize(1024), ImportOptionCompressed(true))
	rootID, err := importer.Import(ctx, srcRoot)
	if err != nil {
		t.Fatal(err)
	}

	dstRoot := t.TempDir()
	if err := Export(ctx, store, rootID, dstRoot); err != nil {
		t.Fatal(err)
	}
	assertSameFile(t, filepath.Join(srcRoot, "big.bin"), filepath.Join(dstRoot, "big.bin"))
}

func assertSameFile(t *testing.T, expected, actual string) {
	t.Helper()
	a, err := os.ReadFile(expected)
	if err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(actual)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Fatalf("content mismatch for %s: %q != %q", filepath.Base(expected), a, b)
	}
}

func TestMergeLastWins(t *testing.T) {
	ctx := context.Background()
	store := cas.NewMemStore()

	base := t.TempDir()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	dirA := filepath.Join(base, "a")
	dirB := filepath.Join(base, "b")
	must(os.MkdirAll(dirA, 0o777))
	must(os.MkdirAll(dirB, 0o777))
	must(os.WriteFile(filepath.Join(dirA, "shared.txt"), []byte("from A"), 0o666))
	must(os.WriteFile(filepath.Join(dirA, "only-a.txt"), []byte("only in A"), 0o666))
	must(os.WriteFile(filepath.Join(dirB, "shared.txt"), []byte("from B"), 0o666))
	must(os.WriteFile(filepath.Join(dirB, "only-b.txt"), []byte("only in B"), 0o666))

	importer := NewImporter(store)
	idA, err := importer.Import(ctx, dirA)
	if err != nil {
		t.Fatal(err)
	}
	idB, err := importer.Import(ctx, dirB)
	if err != nil {
		t.Fatal(err)
	}

	mergedID, err := Merge(ctx, store, idA, idB)
	if err != nil {
		t.Fatal(err)
	}

	outRoot := t.TempDir()
	if err := Export(ctx, store, mergedID, outRoot); err != nil {
		t.Fatal(err)
	}

	shared, err := os.ReadFile(filepath.Join(outRoot, "shared.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(shared) != "from B" {
		t.Fatalf("expected last tree to win, got %q", shared)
	}
	if _, err := os.Stat(filepath.Join(outRoot, "only-a.txt")); err != nil {
		t.Fatalf("expected only-a.txt to survive the merge: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outRoot, "only-b.txt")); err != nil {
		t.Fatalf("expected only-b.txt to survive the merge: %v", err)
	}
}

func TestMergeDirectoriesRecurse(t *testing.T) {
	ctx := context.Background()
	store := cas.NewMemStore()

	base := t.TempDir()
	dirA := filepath.Join(base, "a")
	dirB := filepath.Join(base, "b")
	if err := os.MkdirAll(filepath.Join(dirA, "sub"), 0o777); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(dirB, "sub"), 0o777); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dirA, "sub", "one.txt"), []byte("one"), 0o666); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dirB, "sub", "two.txt"), []byte("two"), 0o666); err != nil {
		t.Fatal(err)
	}

	importer := NewImporter(store)
	idA, err := importer.Import(ctx, dirA)
	if err != nil {
		t.Fatal(err)
	}
	idB, err := importer.Import(ctx, dirB)
	if err != nil {
		t.Fatal(err)
	}

	mergedID, err := Merge(ctx, store, idA, idB)
	if err != nil {
		t.Fatal(err)
	}

	outRoot := t.TempDir()
	if err := Export(ctx, store, mergedID, outRoot); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(outRoot, "sub", "one.txt")); err != nil {
		t.Fatalf("expected sub/one.txt to survive directory-recursive merge: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outRoot, "sub", "two.txt")); err != nil {
		t.Fatalf("expected sub/two.txt to survive directory-recursive merge: %v", err)
	}
}

func TestLookupEntryBinarySearch(t *testing.T) {
	entries := []DirectoryEntry{
		{Name: "alpha"}, {Name: "bravo"}, {Name: "charlie"}, {Name: "delta"},
	}
	if idx, ok := LookupEntry(entries, "charlie"); !ok || idx != 2 {
		t.Fatalf("expected charlie at index 2, got %d,%v", idx, ok)
	}
	if _, ok := LookupEntry(entries, "missing"); ok {
		t.Fatal("expected lookup miss")
	}
}

func TestInsertAndRemoveAtPath(t *testing.T) {
	ctx := context.Background()
	store := cas.NewMemStore()

	srcRoot := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcRoot, "file.txt"), []byte("payload"), 0o666); err != nil {
		t.Fatal(err)
	}
	importer := NewImporter(store)
	baseID, err := importer.Import(ctx, srcRoot)
	if err != nil {
		t.Fatal(err)
	}

	insertedID, err := InsertAtPath(ctx, store, baseID, "deep/nested/dir", baseID, 0)
	if err != nil {
		t.Fatal(err)
	}

	outRoot := t.TempDir()
	if err := Export(ctx, store, insertedID, outRoot); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(outRoot, "deep", "nested", "dir", "file.txt")); err != nil {
		t.Fatalf("expected inserted subtree to be reachable: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outRoot, "file.txt")); err != nil {
		t.Fatalf("expected original tree to survive the merge half of insert: %v", err)
	}

	removedID, err := RemoveAtPath(ctx, store, insertedID, "file.txt")
	if err != nil {
		t.Fatal(err)
	}
	removedRoot := t.TempDir()
	if err := Export(ctx, store, removedID, removedRoot); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(removedRoot, "file.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected file.txt to be removed, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(removedRoot, "deep", "nested", "dir", "file.txt")); err != nil {
		t.Fatalf("expected unrelated path to survive removal: %v", err)
	}
}
