//go:build linux

package loop

import (
	c "tinyfs/internal"

	"fmt"

	"github.com/negrel/assert"
	"golang.org/x/sys/unix"
)

// Every method here returns immediately. The result shows up later through the registered
// callback as (slot.Id, result), on the loop goroutine. Argument problems this layer can see
// (oversized path, short stat buffer, out of range buffer window, negative position) complete
// with a negative errno instead of running.

// Claims the slot for one operation.
func (m *Loop) prep(s *Slot, op OpCode) {
	if !s.state.CompareAndSwap(SLOT_IDLE, SLOT_INFLIGHT) {
		panic(fmt.Sprintf("slot reused while in flight, id %d op %s", s.Id, s.Opcode))
	}
	s.Opcode = op
	s.res = 0
}

// Paths longer than PATH_MAX are rejected with ENAMETOOLONG, never truncated.
func (m *Loop) withPath(s *Slot, path string) bool {
	if len(path) > c.PATH_MAX {
		m.complete(s, -int32(unix.ENAMETOOLONG))
		return false
	}
	s.path = path
	return true
}

func (m *Loop) withPosition(s *Slot, low uint32, high uint32) bool {
	pos := c.Position(low, high)
	if pos < 0 {
		// no "current position" mode through here
		m.complete(s, -int32(unix.EINVAL))
		return false
	}
	s.pos = pos
	return true
}

func (m *Loop) withStatOut(s *Slot, out []byte) bool {
	assert.GreaterOrEqual(len(out), c.STAT_BUF_SIZE, "stat buffer too small")
	if len(out) < c.STAT_BUF_SIZE {
		m.complete(s, -int32(unix.EINVAL))
		return false
	}
	s.out = out
	return true
}

func (m *Loop) Open(s *Slot, path string, flags int32, mode uint32) {
	m.prep(s, OpOpen)
	if !m.withPath(s, path) { return }
	s.flags = flags
	s.mode = mode
	m.enqueue(s)
}

// Named CloseFd since Close shuts the loop down.
func (m *Loop) CloseFd(s *Slot, fd int) {
	m.prep(s, OpClose)
	s.fd = int32(fd)
	m.enqueue(s)
}

// Reads up to length bytes into buf[offset:] from file position high*2^32+low.
func (m *Loop) Read(s *Slot, fd int, buf []byte, offset uint32, length uint32, posLow uint32, posHigh uint32) {
	m.rw(s, OpRead, fd, buf, offset, length, posLow, posHigh)
}

func (m *Loop) Write(s *Slot, fd int, buf []byte, offset uint32, length uint32, posLow uint32, posHigh uint32) {
	m.rw(s, OpWrite, fd, buf, offset, length, posLow, posHigh)
}

func (m *Loop) rw(s *Slot, op OpCode, fd int, buf []byte, offset uint32, length uint32, posLow uint32, posHigh uint32) {
	m.prep(s, op)
	end := uint64(offset) + uint64(length)
	assert.LessOrEqual(end, uint64(len(buf)), "buffer window out of range")
	if end > uint64(len(buf)) {
		m.complete(s, -int32(unix.EINVAL))
		return
	}
	if !m.withPosition(s, posLow, posHigh) { return }
	s.fd = int32(fd)
	s.buf = buf[offset:end:end]
	m.enqueue(s)
}

// An empty bufs is fine and completes with 0.
func (m *Loop) Readv(s *Slot, fd int, bufs [][]byte, posLow uint32, posHigh uint32) {
	m.rwv(s, OpReadv, fd, bufs, posLow, posHigh)
}

func (m *Loop) Writev(s *Slot, fd int, bufs [][]byte, posLow uint32, posHigh uint32) {
	m.rwv(s, OpWritev, fd, bufs, posLow, posHigh)
}

func (m *Loop) rwv(s *Slot, op OpCode, fd int, bufs [][]byte, posLow uint32, posHigh uint32) {
	m.prep(s, op)
	if !m.withPosition(s, posLow, posHigh) { return }
	if len(bufs) == 0 {
		m.complete(s, 0)
		return
	}
	s.fd = int32(fd)
	s.bufs = bufs
	m.enqueue(s)
}

func (m *Loop) Ftruncate(s *Slot, fd int, lenLow uint32, lenHigh uint32) {
	m.prep(s, OpFtruncate)
	s.fd = int32(fd)
	s.pos = c.Position(lenLow, lenHigh)
	m.enqueue(s)
}

func (m *Loop) Mkdir(s *Slot, path string, mode uint32) {
	m.prep(s, OpMkdir)
	if !m.withPath(s, path) { return }
	s.mode = mode
	m.enqueue(s)
}

func (m *Loop) Rmdir(s *Slot, path string) {
	m.prep(s, OpRmdir)
	if !m.withPath(s, path) { return }
	m.enqueue(s)
}

func (m *Loop) Unlink(s *Slot, path string) {
	m.prep(s, OpUnlink)
	if !m.withPath(s, path) { return }
	m.enqueue(s)
}

// On success out[:STAT_BUF_SIZE] holds the stat record, on failure out is not touched.
func (m *Loop) Stat(s *Slot, path string, out []byte) {
	m.prep(s, OpStat)
	if !m.withPath(s, path) { return }
	if !m.withStatOut(s, out) { return }
	m.enqueue(s)
}

func (m *Loop) Lstat(s *Slot, path string, out []byte) {
	m.prep(s, OpLstat)
	if !m.withPath(s, path) { return }
	if !m.withStatOut(s, out) { return }
	m.enqueue(s)
}

func (m *Loop) Fstat(s *Slot, fd int, out []byte) {
	m.prep(s, OpFstat)
	if !m.withStatOut(s, out) { return }
	s.fd = int32(fd)
	m.enqueue(s)
}
