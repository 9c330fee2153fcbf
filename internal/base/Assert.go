package base

import (
	"fmt"
	"reflect"
)

/***************************************
 * Assertions
 *
 * Used for invariants that indicate a programming error rather than a
 * recoverable runtime fault -- a cycle that the dependency walker should
 * have already rejected, a cache record written by this same process in
 * an unexpected shape, etc.
 ***************************************/

var LogAssert = NewLogCategory("Assert")

func AssertErr(pred func() error) {
	if err := pred(); err != nil {
		Panic(err)
	}
}

func Assert(pred func() bool) {
	if !pred() {
		Panicf("failed assertion")
	}
}

func AssertSameType[T any](a, b T) {
	if ta, tb := reflect.TypeOf(a), reflect.TypeOf(b); ta != tb {
		Panicf("expected type <%v> but got <%v>", ta, tb)
	}
}

func AssertIn[T comparable](elt T, values ...T) {
	if !Contains(values, elt) {
		Panicf("element <%v> is not in the slice", elt)
	}
}

func AssertNotIn[T comparable](elt T, values ...T) {
	if Contains(values, elt) {
		Panicf("element <%v> is already in the slice", elt)
	}
}

func NotImplemented(m string, a ...interface{}) {
	LogWarning(LogAssert, "not implemented: "+m, a...)
}

func UnreachableCode() {
	Panicf("unreachable code")
}

func UnexpectedType(expected reflect.Type, given interface{}) {
	if reflect.TypeOf(given) != expected {
		Panicf("expected type <%v>, given %#v <%T>", expected, given, given)
	}
}

func UnexpectedValueErrf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
