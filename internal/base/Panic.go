package base

import "fmt"

type PanicResult int32

const (
	PANIC_ABORT PanicResult = iota
	PANIC_HANDLED
	PANIC_REENTRANCY
)

// OnPanic lets a host process intercept Panic()/Panicf() calls (e.g. a
// worker loop that wants to turn an action's internal assertion failure
// into a diagnostic instead of crashing the whole process).
var OnPanic func(error) PanicResult

func Panicf(msg string, args ...interface{}) {
	Panic(fmt.Errorf(msg, args...))
}

func Panic(err error) {
	result := PANIC_ABORT
	if OnPanic != nil {
		result = OnPanic(err)
	}

	switch result {
	case PANIC_ABORT:
		panic(err)
	case PANIC_HANDLED:
		LogError(LogBase, "handled panic: %v", err)
	case PANIC_REENTRANCY:
		panic(fmt.Errorf("panic reentrancy: %v", err))
	}
}
