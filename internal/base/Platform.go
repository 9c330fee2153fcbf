package base

import "runtime"

func IfWindows(fn func()) {
	if runtime.GOOS == "windows" {
		fn()
	}
}
func IfLinux(fn func()) {
	if runtime.GOOS == "linux" {
		fn()
	}
}
func IfDarwin(fn func()) {
	if runtime.GOOS == "darwin" {
		fn()
	}
}
