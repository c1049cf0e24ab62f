//go:build unix

package host

import (
	"fmt"
	"tinyfs/internal/consts"

	"golang.org/x/sys/unix"
)

const DEFAULT_FILE_MODE	= 0o666
const DEFAULT_DIR_MODE	= 0o777

// An errno itself, so it turns into a result code like every other failure.
var ErrInvalidArg error = unix.EINVAL

// Turns the usual fopen-style flag strings into open(2) flags.
func ParseFlags(flags string) (int32, error) {
	var f int
	switch flags {
	case "r":		f = consts.O_RDONLY
	case "r+":		f = consts.O_RDWR
	case "w":		f = consts.O_WRONLY | consts.O_CREAT | consts.O_TRUNC
	case "w+":		f = consts.O_RDWR   | consts.O_CREAT | consts.O_TRUNC
	case "wx":		f = consts.O_WRONLY | consts.O_CREAT | consts.O_TRUNC | consts.O_EXCL
	case "wx+":		f = consts.O_RDWR   | consts.O_CREAT | consts.O_TRUNC | consts.O_EXCL
	case "a":		f = consts.O_WRONLY | consts.O_CREAT | consts.O_APPEND
	case "a+":		f = consts.O_RDWR   | consts.O_CREAT | consts.O_APPEND
	case "ax":		f = consts.O_WRONLY | consts.O_CREAT | consts.O_APPEND | consts.O_EXCL
	case "ax+":		f = consts.O_RDWR   | consts.O_CREAT | consts.O_APPEND | consts.O_EXCL
	default:
		return 0, fmt.Errorf("unknown flags %q: %w", flags, ErrInvalidArg)
	}
	return int32(f), nil
}
