package base

import (
	"bytes"
	"strings"
	"testing"
)

func TestRecycler_AllocateRelease(t *testing.T) {
	type testStruct struct{ x int }
	var released bool

	recycler := NewRecycler(
		func() testStruct { return testStruct{x: 42} },
		func(ts testStruct) { released = true },
	)

	item := recycler.Allocate()
	if item.x != 42 {
		t.Errorf("expected 42, got %d", item.x)
	}
	released = false
	recycler.Release(item)
	if !released {
		t.Error("release function was not called")
	}
}

func TestBytesRecycler_AllocateRelease(t *testing.T) {
	stride := 128
	recycler := newBytesRecycler(stride)
	buf := recycler.Allocate()
	if len(buf) != stride {
		t.Errorf("expected buffer of length %d, got %d", stride, len(buf))
	}
	recycler.Release(buf)
}

func TestGetBytesRecyclerBySize(t *testing.T) {
	tests := []struct {
		size   int64
		expect int
	}{
		{100, TransientPage4KiB.Stride()},
		{65 << 10, TransientPage64KiB.Stride()},
		{300 << 10, TransientPage256KiB.Stride()},
		{2 << 20, TransientPage1MiB.Stride()},
	}
	for _, tt := range tests {
		r := GetBytesRecyclerBySize(tt.size)
		if r.Stride() != tt.expect {
			t.Errorf("for size %d, expected stride %d, got %d", tt.size, tt.expect, r.Stride())
		}
	}
}

func TestTransientBuffer(t *testing.T) {
	buf := TransientBuffer.Allocate()
	if buf == nil {
		t.Fatal("expected non-nil buffer")
	}
	buf.WriteString("hello")
	TransientBuffer.Release(buf)
	buf2 := TransientBuffer.Allocate()
	if buf2.Len() != 0 {
		t.Error("expected buffer to be reset")
	}
	TransientBuffer.Release(buf2)
}

func TestTransientIoCopy(t *testing.T) {
	src := strings.NewReader(strings.Repeat("a", 1024))
	dst := &bytes.Buffer{}
	pageAlloc := newBytesRecycler(256)
	n, err := TransientIoCopy(dst, src, pageAlloc, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 1024 {
		t.Errorf("expected 1024 bytes copied, got %d", n)
	}
	if dst.Len() != 1024 {
		t.Errorf("expected dst.Len() == 1024, got %d", dst.Len())
	}
}

func TestTransientIoCopyAsync(t *testing.T) {
	src := strings.NewReader(strings.Repeat("b", 512))
	dst := &bytes.Buffer{}
	pageAlloc := newBytesRecycler(128)
	n, err := TransientIoCopy(dst, src, pageAlloc, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 512 {
		t.Errorf("expected 512 bytes copied, got %d", n)
	}
	if dst.Len() != 512 {
		t.Errorf("expected dst.Len() == 512, got %d", dst.Len())
	}
}

func TestOverwrite(t *testing.T) {
	x := 1
	if Overwrite(&x, 1) {
		t.Error("expected no change when value is identical")
	}
	if !Overwrite(&x, 2) {
		t.Error("expected change to be reported")
	}
	if x != 2 {
		t.Errorf("expected x == 2, got %d", x)
	}
}
