// Constants
package internal

import (
	"encoding/binary"
)

const LEN_U16 	= 0x02
const LEN_U32 	= 0x04
const LEN_U64 	= 0x08

// Longest path the dispatcher accepts, in bytes, not counting a terminator.
const PATH_MAX 		= 0x1000

// A stat record is STAT_FIELDS u64s, so callers hand us at least STAT_BUF_SIZE bytes.
const STAT_FIELDS 	= 0x10
const STAT_BUF_SIZE = STAT_FIELDS * LEN_U64

// Positions and lengths arrive as two u32 words. high*2^32 + low
func Position(low uint32, high uint32) int64 {
	return int64(uint64(high)<<32 | uint64(low))
}

// Inverse of Position
func SplitPosition(pos int64) (low uint32, high uint32) {
	return uint32(uint64(pos)), uint32(uint64(pos) >> 32)
}

// Stat records are written in native order so a host can view the buffer as []uint64 directly.
// Everything that touches raw slot/stat bytes goes through this alias.
var Bin = binary.NativeEndian
