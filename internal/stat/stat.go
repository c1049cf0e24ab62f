// Stat records: a fixed sequence of 16 u64s that hosts can read without knowing
// anything about the platform's stat struct.
package stat

import (
	c "tinyfs/internal"
	"tinyfs/internal/consts"

	"time"

	"github.com/negrel/assert"
)

// Field indexes. The order is part of the wire contract, do not reorder.
const (
	F_DEV = iota
	F_MODE
	F_NLINK
	F_UID
	F_GID
	F_RDEV
	F_INO
	F_SIZE
	F_BLKSIZE
	F_BLOCKS
	F_FLAGS
	F_GEN
	F_ATIME
	F_MTIME
	F_CTIME
	F_BIRTHTIME
)

var FieldNames = [c.STAT_FIELDS]string{
	"dev", "mode", "nlink", "uid", "gid", "rdev", "ino", "size",
	"blksize", "blocks", "flags", "gen", "atimeMs", "mtimeMs", "ctimeMs", "birthtimeMs",
}

type Record [c.STAT_FIELDS]uint64

// Whole milliseconds, truncating. Pre-epoch times wrap like the u64 they end up in.
func TimeToMs(sec int64, nsec uint32) uint64 {
	return uint64(sec*1000 + int64(nsec/1_000_000))
}

// Writes the record into out. out must hold STAT_BUF_SIZE bytes.
func (r *Record) Encode(out []byte) {
	assert.GreaterOrEqual(len(out), c.STAT_BUF_SIZE, "stat buffer too small")
	_ = out[c.STAT_BUF_SIZE-1]
	for i, v := range r {
		c.Bin.PutUint64(out[i*c.LEN_U64:], v)
	}
}

func Decode(buf []byte) Record {
	assert.GreaterOrEqual(len(buf), c.STAT_BUF_SIZE, "stat buffer too small")
	var r Record
	for i := range r {
		r[i] = c.Bin.Uint64(buf[i*c.LEN_U64:])
	}
	return r
}

// Stats is the decoded, typed view of a Record.
type Stats struct {
	Dev			uint64
	Mode		uint64
	Nlink		uint64
	Uid			uint64
	Gid			uint64
	Rdev		uint64
	Ino			uint64
	Size		uint64
	Blksize		uint64
	Blocks		uint64
	Flags		uint64
	Gen			uint64
	AtimeMs		uint64
	MtimeMs		uint64
	CtimeMs		uint64
	BirthtimeMs	uint64
}

func (r *Record) Stats() *Stats {
	return &Stats{
		Dev:         r[F_DEV],
		Mode:        r[F_MODE],
		Nlink:       r[F_NLINK],
		Uid:         r[F_UID],
		Gid:         r[F_GID],
		Rdev:        r[F_RDEV],
		Ino:         r[F_INO],
		Size:        r[F_SIZE],
		Blksize:     r[F_BLKSIZE],
		Blocks:      r[F_BLOCKS],
		Flags:       r[F_FLAGS],
		Gen:         r[F_GEN],
		AtimeMs:     r[F_ATIME],
		MtimeMs:     r[F_MTIME],
		CtimeMs:     r[F_CTIME],
		BirthtimeMs: r[F_BIRTHTIME],
	}
}

// Inverse of Record.Stats
func (s *Stats) Record() Record {
	return Record{
		F_DEV: s.Dev, F_MODE: s.Mode, F_NLINK: s.Nlink, F_UID: s.Uid, F_GID: s.Gid,
		F_RDEV: s.Rdev, F_INO: s.Ino, F_SIZE: s.Size, F_BLKSIZE: s.Blksize, F_BLOCKS: s.Blocks,
		F_FLAGS: s.Flags, F_GEN: s.Gen, F_ATIME: s.AtimeMs, F_MTIME: s.MtimeMs,
		F_CTIME: s.CtimeMs, F_BIRTHTIME: s.BirthtimeMs,
	}
}

// Shorthand for Decode(buf).Stats()
func Parse(buf []byte) *Stats {
	r := Decode(buf)
	return r.Stats()
}

func msTime(ms uint64) time.Time { return time.UnixMilli(int64(ms)) }

func (s *Stats) Atime() time.Time 		{ return msTime(s.AtimeMs) }
func (s *Stats) Mtime() time.Time 		{ return msTime(s.MtimeMs) }
func (s *Stats) Ctime() time.Time 		{ return msTime(s.CtimeMs) }
func (s *Stats) Birthtime() time.Time 	{ return msTime(s.BirthtimeMs) }

func (s *Stats) kind() uint64 { return s.Mode & consts.S_IFMT }

func (s *Stats) IsDirectory() bool 			{ return s.kind() == consts.S_IFDIR }
func (s *Stats) IsFile() bool 				{ return s.kind() == consts.S_IFREG }
func (s *Stats) IsBlockDevice() bool 		{ return s.kind() == consts.S_IFBLK }
func (s *Stats) IsCharacterDevice() bool 	{ return s.kind() == consts.S_IFCHR }
func (s *Stats) IsFIFO() bool 				{ return s.kind() == consts.S_IFIFO }
func (s *Stats) IsSymbolicLink() bool 		{ return s.kind() == consts.S_IFLNK }
func (s *Stats) IsSocket() bool 			{ return s.kind() == consts.S_IFSOCK }

// Permission bits only
func (s *Stats) Perm() uint32 { return uint32(s.Mode &^ consts.S_IFMT) }
