//go:build linux

package stat

import (
	"golang.org/x/sys/unix"
)

// Everything a Record needs, birth time included where the filesystem has one.
const STATX_MASK = unix.STATX_BASIC_STATS | unix.STATX_BTIME

// Linux has no st_flags or st_gen, both stay 0.
func FromStatx(stx *unix.Statx_t) Record {
	var r Record
	r[F_DEV] = unix.Mkdev(stx.Dev_major, stx.Dev_minor)
	r[F_MODE] = uint64(stx.Mode)
	r[F_NLINK] = uint64(stx.Nlink)
	r[F_UID] = uint64(stx.Uid)
	r[F_GID] = uint64(stx.Gid)
	r[F_RDEV] = unix.Mkdev(stx.Rdev_major, stx.Rdev_minor)
	r[F_INO] = stx.Ino
	r[F_SIZE] = stx.Size
	r[F_BLKSIZE] = uint64(stx.Blksize)
	r[F_BLOCKS] = stx.Blocks
	r[F_ATIME] = TimeToMs(stx.Atime.Sec, stx.Atime.Nsec)
	r[F_MTIME] = TimeToMs(stx.Mtime.Sec, stx.Mtime.Nsec)
	r[F_CTIME] = TimeToMs(stx.Ctime.Sec, stx.Ctime.Nsec)
	r[F_BIRTHTIME] = TimeToMs(stx.Btime.Sec, stx.Btime.Nsec)
	return r
}
