//go:build darwin

package base

import (
	"os"
	"syscall"
	"time"
)

func GetCurrentThreadId() uintptr {
	tid, _, _ := syscall.Syscall(syscall.SYS_GETTID, 0, 0, 0)
	return tid
}

// SetMTime sets a file's access and modification times to mtime. File-tree
// objects record no mtime and the exporter does not call it.
func SetMTime(file *os.File, mtime time.Time) error {
	mtime = mtime.Local()
	return os.Chtimes(file.Name(), mtime, mtime)
}

var startedAt = time.Now()

func Elapsed() time.Duration {
	return time.Since(startedAt)
}
