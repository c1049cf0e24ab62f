//go:build unix

// Platform flag and mode bits handed out to hosts. Values are whatever the
// running platform uses, hosts must not hardcode them.
package consts

import (
	"runtime"

	"golang.org/x/sys/unix"
)

const (
	O_RDWR   = unix.O_RDWR
	O_RDONLY = unix.O_RDONLY
	O_WRONLY = unix.O_WRONLY
	O_CREAT  = unix.O_CREAT
	O_TRUNC  = unix.O_TRUNC
	O_APPEND = unix.O_APPEND
	O_EXCL   = unix.O_EXCL
)

const (
	S_IFMT   = unix.S_IFMT
	S_IFREG  = unix.S_IFREG
	S_IFDIR  = unix.S_IFDIR
	S_IFCHR  = unix.S_IFCHR
	S_IFLNK  = unix.S_IFLNK
	S_IFBLK  = unix.S_IFBLK
	S_IFIFO  = unix.S_IFIFO
	S_IFSOCK = unix.S_IFSOCK
)

// Result code for a missing entry, already negated.
const ENOENT = -int32(unix.ENOENT)

// Path separator and errno numbering follow this.
const IS_WINDOWS = runtime.GOOS == "windows"

func Sep() string {
	if IS_WINDOWS {
		return "\\"
	}
	return "/"
}

// Table returns every exported constant by name. IS_WINDOWS is 0 or 1.
func Table() map[string]int64 {
	win := int64(0)
	if IS_WINDOWS {
		win = 1
	}
	return map[string]int64{
		"O_RDWR":     O_RDWR,
		"O_RDONLY":   O_RDONLY,
		"O_WRONLY":   O_WRONLY,
		"O_CREAT":    O_CREAT,
		"O_TRUNC":    O_TRUNC,
		"O_APPEND":   O_APPEND,
		"O_EXCL":     O_EXCL,
		"S_IFMT":     S_IFMT,
		"S_IFREG":    S_IFREG,
		"S_IFDIR":    S_IFDIR,
		"S_IFCHR":    S_IFCHR,
		"S_IFLNK":    S_IFLNK,
		"S_IFBLK":    S_IFBLK,
		"S_IFIFO":    S_IFIFO,
		"S_IFSOCK":   S_IFSOCK,
		"ENOENT":     int64(ENOENT),
		"IS_WINDOWS": win,
	}
}
