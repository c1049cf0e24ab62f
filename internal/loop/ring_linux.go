//go:build linux

package loop

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Data path ops go straight to the ring, metadata ops always take the pool.
func isRingOp(op OpCode) bool {
	switch op {
	case OpRead, OpWrite, OpReadv, OpWritev:
		return true
	}
	return false
}

func bufAddr(b []byte) uintptr {
	if len(b) == 0 { return 0 }
	return uintptr(unsafe.Pointer(&b[0]))
}

func iovAddr(iov []unix.Iovec) uintptr {
	if len(iov) == 0 { return 0 }
	return uintptr(unsafe.Pointer(&iov[0]))
}

// The slot address is the user data, slots never move (see Arena).
func slotFromUserData(ud uint64) *Slot {
	return (*Slot)(unsafe.Pointer(uintptr(ud)))
}

// false if the SQ had no free entry, nothing was prepared in that case
func (m *Loop) prepSQE(s *Slot) bool {
	sqe := m.ring.GetSQE()
	if sqe == nil { return false }

	switch s.Opcode {
	case OpRead:
		sqe.PrepareRead(int(s.fd), bufAddr(s.buf), uint32(len(s.buf)), uint64(s.pos))
	case OpWrite:
		sqe.PrepareWrite(int(s.fd), bufAddr(s.buf), uint32(len(s.buf)), uint64(s.pos))
	case OpReadv:
		iov := s.iovecs()
		sqe.PrepareReadv(int(s.fd), iovAddr(iov), uint32(len(iov)), uint64(s.pos))
	case OpWritev:
		iov := s.iovecs()
		sqe.PrepareWritev(int(s.fd), iovAddr(iov), uint32(len(iov)), uint64(s.pos))
	default:
		// isRingOp guards every caller
		panic("prepSQE: not a ring op: " + s.Opcode.String())
	}
	sqe.UserData = uint64(uintptr(unsafe.Pointer(s)))
	return true
}
