//go:build windows

package base

import (
	"os"
	"syscall"
	"time"
)

var getCurrentThreadIdSyscall = Memoize(func() *syscall.LazyProc {
	kernel32DLL := syscall.NewLazyDLL("kernel32.dll")
	return kernel32DLL.NewProc("GetCurrentThreadId")
})

func isErrorErrnoNoError(err error) bool {
	errno, ok := err.(syscall.Errno)
	return ok && errno == 0
}

func GetCurrentThreadId() uintptr {
	procGetCurrentThreadId := getCurrentThreadIdSyscall()
	if ret, _, err := procGetCurrentThreadId.Call(); err == nil || isErrorErrnoNoError(err) {
		return ret
	} else {
		panic(err)
	}
}

// SetMTime sets a file's last-write time to mtime. File-tree objects record
// no mtime and the exporter does not call it.
func SetMTime(file *os.File, mtime time.Time) (err error) {
	mtime = mtime.Local()
	wtime := syscall.NsecToFiletime(mtime.UnixNano())
	return syscall.SetFileTime(syscall.Handle(file.Fd()), nil, nil, &wtime)
}

var startedAt = time.Now()

func Elapsed() time.Duration {
	return time.Since(startedAt)
}
