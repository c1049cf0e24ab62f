//go:build linux

package loop

import (
	"fmt"

	"golang.org/x/sys/unix"
)

const ALIGN			= 0x1000
const MMAP_MODE   	= unix.MAP_ANON  | unix.MAP_PRIVATE
const MMAP_PROT   	= unix.PROT_READ | unix.PROT_WRITE

// Page aligned read/write buffer outside the Go heap. size is rounded up to ALIGN, the returned
// slice has exactly size bytes.
//
// Slabs hold bytes only, never Go pointers: the GC doesn't scan them. Slots live in an Arena.
func AllocSlab(size int) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("slab of %d bytes: %w", size, unix.EINVAL)
	}
	mapped := (size + ALIGN - 1) &^ (ALIGN - 1)
	raw, err := unix.Mmap(-1, 0, mapped, MMAP_PROT, MMAP_MODE)
	if err != nil {
		return nil, fmt.Errorf("mmap slab of %d bytes: %w", mapped, err)
	}
	return raw[:size], nil
}

// Unmaps a slab from AllocSlab. No read or write may still target it.
func DeallocSlab(slab []byte) error {
	if err := unix.Munmap(slab[:cap(slab)]); err != nil {
		return fmt.Errorf("munmap slab: %w", err)
	}
	return nil
}
