//go:build linux

package base

import (
	"os"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

func GetCurrentThreadId() uintptr {
	tid, _, _ := syscall.Syscall(syscall.SYS_GETTID, 0, 0, 0)
	return tid
}

func futimens_(fd int, times *[2]unix.Timespec, flags int) (err error) {
	_, _, e1 := unix.Syscall6(unix.SYS_UTIMENSAT, uintptr(fd), uintptr(0), uintptr(unsafe.Pointer(times)), uintptr(flags), 0, 0)
	if e1 != 0 {
		err = syscall.EAGAIN
	}
	return
}

// SetMTime sets a file's access and modification times to mtime. File-tree
// objects record no mtime and the exporter does not call it.
func SetMTime(file *os.File, mtime time.Time) error {
	tspec, err := unix.TimeToTimespec(mtime)
	if err != nil {
		return err
	}
	times := [2]unix.Timespec{tspec, tspec}
	return futimens_(int(file.Fd()), &times, 0)
}

var startedAt = time.Now()

func Elapsed() time.Duration {
	return time.Since(startedAt)
}
