//go:build unix

// Turns the signed result codes delivered on completion into names and descriptions.
package errs

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

const UNKNOWN = "UNKNOWN"

// Symbolic errno name for a negative result code, e.g. -2 -> "ENOENT".
func Name(code int32) string {
	if code >= 0 {
		return UNKNOWN
	}
	name := unix.ErrnoName(syscall.Errno(-code))
	if name == "" {
		return UNKNOWN
	}
	return name
}

// Human readable text for a negative result code.
func Describe(code int32) string {
	if code >= 0 || unix.ErrnoName(syscall.Errno(-code)) == "" {
		return fmt.Sprintf("unknown system error %d", code)
	}
	return syscall.Errno(-code).Error()
}

// [name, description]
func Lookup(code int32) [2]string {
	return [2]string{Name(code), Describe(code)}
}

// Error carries a failed completion result.
type Error struct {
	Errno	int32 	// negative
	Code 	string	// symbolic name
	Op		string	// optional, set by callers that know what failed
}

// Converts a completion result into an error. Non-negative results are not errors.
func FromResult(res int32) error {
	if res >= 0 {
		return nil
	}
	return &Error{Errno: res, Code: Name(res)}
}

// Same as FromResult but records which operation produced the result.
func FromOp(op string, res int32) error {
	if res >= 0 {
		return nil
	}
	return &Error{Errno: res, Code: Name(res), Op: op}
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Code, Describe(e.Errno))
	}
	return fmt.Sprintf("%s: %s", e.Code, Describe(e.Errno))
}

// Unwraps to the syscall.Errno so errors.Is matches fs.ErrNotExist, unix.EBADF etc.
func (e *Error) Unwrap() error {
	return syscall.Errno(-e.Errno)
}
