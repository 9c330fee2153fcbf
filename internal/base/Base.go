package base

import (
	"fmt"
	"io"
	"reflect"
	"time"
	"unsafe"
)

var LogBase = NewLogCategory("Base")

var StartedAt = Memoize(func() time.Time {
	return time.Now()
})

// Recover turns a panic raised inside scope into a regular error instead of
// unwinding the calling goroutine; ArchiveBinaryRead/ArchiveBinaryWrite use
// it so a failing archive reports an error. The evaluation engine calls
// Key.Compute without it.
func Recover(scope func() error) (result error) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(error); ok {
				result = err
			} else {
				result = fmt.Errorf("%v", r)
			}
		}
	}()
	result = scope()
	return
}

type emptyInterface struct {
	typ unsafe.Pointer
	ptr unsafe.Pointer
}

func getEmptyInterface(v interface{}) *emptyInterface {
	return (*emptyInterface)(unsafe.Pointer(&v))
}

func GetTypeptr(v interface{}) (uintptr, bool) {
	iface := getEmptyInterface(v)
	if iface.ptr != nil {
		return uintptr(iface.typ), true
	}
	return 0, false
}

func GetTypename(v interface{}) string {
	rt := reflect.TypeOf(v)
	if rt.Kind() == reflect.Pointer {
		rt = rt.Elem()
	}
	return rt.Name()
}

func GetTypenameT[T any]() string {
	var defaultValue T
	return GetTypename(defaultValue)
}

// IsNil reports whether an interface value is nil, including the case where
// it holds a typed nil pointer -- https://mangatmodi.medium.com/go-check-nil-interface-the-right-way-d142776edef1
func IsNil(v interface{}) bool {
	if v == nil {
		return true
	}
	_, ok := GetTypeptr(v)
	return !ok
}

func AnyError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

type WriteReseter interface {
	Reset(io.Writer) error
	io.WriteCloser
}

type ReadReseter interface {
	Reset(io.Reader) error
	io.ReadCloser
}

type Closable interface {
	Close() error
}

type Flushable interface {
	Flush() error
}

func FlushWriterIFP(w io.Writer) (err error) {
	if flush, ok := w.(Flushable); ok {
		err = flush.Flush()
	}
	return
}

type Equatable[T any] interface {
	Equals(other T) bool
}

type Comparable[T any] interface {
	Compare(other T) int
}

type OrderedComparable[T any] interface {
	Comparable[T]
	comparable
}

func Range[T any](transform func(int) T, n int) (dst []T) {
	dst = make([]T, n)
	for i := 0; i < n; i++ {
		dst[i] = transform(i)
	}
	return dst
}

func Blend[T any](ifFalse, ifTrue T, selector bool) T {
	if selector {
		return ifTrue
	}
	return ifFalse
}
