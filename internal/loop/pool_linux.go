//go:build linux

package loop

import (
	"errors"
	"syscall"
	"tinyfs/internal/stat"

	"golang.org/x/sys/unix"
)

// Runs one slot's operation with blocking syscalls. Called on pool workers only.
func execute(s *Slot) int32 {
	fd := int(s.fd)

	switch s.Opcode {
	case OpOpen:
		var nfd int
		err := restart(func() (err error) {
			nfd, err = unix.Open(s.path, int(s.flags)|unix.O_CLOEXEC, s.mode)
			return
		})
		return result(nfd, err)

	case OpClose:
		// never restarted, the fd is gone after the first attempt either way
		return result(0, unix.Close(fd))

	case OpRead:
		n, err := unix.Pread(fd, s.buf, s.pos)
		return result(n, err)

	case OpWrite:
		n, err := unix.Pwrite(fd, s.buf, s.pos)
		return result(n, err)

	case OpReadv:
		n, err := unix.Preadv(fd, s.bufs, s.pos)
		return result(n, err)

	case OpWritev:
		n, err := unix.Pwritev(fd, s.bufs, s.pos)
		return result(n, err)

	case OpFtruncate:
		return result(0, restart(func() error { return unix.Ftruncate(fd, s.pos) }))

	case OpMkdir:
		return result(0, unix.Mkdir(s.path, s.mode))

	case OpRmdir:
		return result(0, unix.Rmdir(s.path))

	case OpUnlink:
		return result(0, unix.Unlink(s.path))

	case OpStat:
		return result(0, restart(func() error {
			return unix.Statx(unix.AT_FDCWD, s.path, 0, stat.STATX_MASK, &s.stx)
		}))

	case OpLstat:
		return result(0, restart(func() error {
			return unix.Statx(unix.AT_FDCWD, s.path, unix.AT_SYMLINK_NOFOLLOW, stat.STATX_MASK, &s.stx)
		}))

	case OpFstat:
		return result(0, restart(func() error {
			return unix.Statx(fd, "", unix.AT_EMPTY_PATH, stat.STATX_MASK, &s.stx)
		}))
	}

	return -int32(unix.EINVAL)
}

// EINTR means the call was interrupted before it did anything, not that it failed.
func restart(fn func() error) error {
	for {
		err := fn()
		if errors.Is(err, syscall.EINTR) {
			continue
		}
		return err
	}
}

// errno-style result: n on success, -errno on failure
func result(n int, err error) int32 {
	if err == nil {
		return int32(n)
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return -int32(unix.EIO)
}
