//go:build linux

package loop

import (
	"github.com/iceber/iouring-go"
)

// Asks the kernel for a throwaway ring. Only for reporting, CreateLoop makes its own decision
// and falls back to the pool when the ring can't be had.
func RingSupported() bool {
	ring, err := iouring.New(1)
	if err != nil {
		return false
	}
	ring.Close()
	return true
}
