//go:build linux

package loop

import (
	c "tinyfs/internal"

	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

type OpCode uint8
const (
	OpNone 	OpCode = iota
	OpOpen
	OpClose
	OpRead
	OpWrite
	OpReadv
	OpWritev
	OpFtruncate
	OpMkdir
	OpRmdir
	OpStat
	OpLstat
	OpFstat
	OpUnlink
)

var opNames = [...]string{
	OpNone: "none", OpOpen: "open", OpClose: "close", OpRead: "read", OpWrite: "write",
	OpReadv: "readv", OpWritev: "writev", OpFtruncate: "ftruncate", OpMkdir: "mkdir",
	OpRmdir: "rmdir", OpStat: "stat", OpLstat: "lstat", OpFstat: "fstat", OpUnlink: "unlink",
}

func (o OpCode) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "invalid"
}

func (o OpCode) isStat() bool {
	return o == OpStat || o == OpLstat || o == OpFstat
}

const (
	SLOT_IDLE 		= uint32(0)
	SLOT_INFLIGHT 	= uint32(1)
)

// Descriptors for up to this many buffers live inside the slot, longer lists spill to the heap.
const SLOT_IOV_INLINE = 8

// A Slot is the control block for one operation. Callers own it, the loop only borrows it
// between submission and completion. It doubles as the carrier for the caller's correlation id.
//
// WARN: a slot MUST have a fixed address and MUST NOT be resubmitted before its completion fires.
// Allocate them from an Arena.
type Slot struct {
	next	*Slot 		// intrusive list link, owned by the loop

	path	string
	buf		[]byte
	bufs	[][]byte
	out		[]byte 		// stat output
	iovx	[]unix.Iovec

	iov		[SLOT_IOV_INLINE]unix.Iovec
	stx		unix.Statx_t

	pos		int64 		// file position, or the length for ftruncate
	fd		int32
	flags	int32
	mode	uint32
	res		int32

	Opcode	OpCode
	state	atomic.Uint32

	Id		uint32
}

// Published layout. A host may allocate SLOT_SIZE bytes per slot (see Arena) and write the
// correlation id as a native-order u32 at SLOT_ID_OFFSET.
const SLOT_SIZE 		= unsafe.Sizeof(Slot{})
const SLOT_ID_OFFSET 	= unsafe.Offsetof(Slot{}.Id)

func (s *Slot) Inflight() bool {
	return s.state.Load() == SLOT_INFLIGHT
}

// Result of the last completed operation. Only meaningful once the completion has fired.
func (s *Slot) Result() int32 {
	return s.res
}

// Drops everything the slot borrowed from the caller so the GC isn't held up by idle slots.
func (s *Slot) release() {
	s.next = nil
	s.path = ""
	s.buf = nil
	s.bufs = nil
	s.out = nil
	s.iovx = nil
	clear(s.iov[:])
}

// Builds the descriptor list for readv/writev. It lives in the slot until completion.
func (s *Slot) iovecs() []unix.Iovec {
	var iov []unix.Iovec
	if len(s.bufs) <= SLOT_IOV_INLINE {
		iov = s.iov[:len(s.bufs)]
	} else {
		s.iovx = make([]unix.Iovec, len(s.bufs))
		iov = s.iovx
	}
	for i, b := range s.bufs {
		if len(b) > 0 {
			iov[i].Base = &b[0]
		} else {
			iov[i].Base = nil
		}
		iov[i].SetLen(len(b))
	}
	return iov
}

// Arena is a fixed-address block of slots. Nothing in this package allocates slots on its own.
type Arena struct {
	slots	[]Slot
}

func CreateArena(n int) *Arena {
	return &Arena{slots: make([]Slot, n)}
}

func (a *Arena) Len() int {
	return len(a.slots)
}

func (a *Arena) Slot(i int) *Slot {
	return &a.slots[i]
}

// Raw bytes backing the arena, SLOT_SIZE per slot. Only the id field may be written through this.
func (a *Arena) Raw() []byte {
	if len(a.slots) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&a.slots[0])), uintptr(len(a.slots))*SLOT_SIZE)
}

func (a *Arena) PutId(i int, id uint32) {
	c.Bin.PutUint32(a.Raw()[uintptr(i)*SLOT_SIZE+SLOT_ID_OFFSET:], id)
}

func (a *Arena) GetId(i int) uint32 {
	return c.Bin.Uint32(a.Raw()[uintptr(i)*SLOT_SIZE+SLOT_ID_OFFSET:])
}

// FIFO of slots threaded through Slot.next
type slotList struct {
	head	*Slot
	tail	*Slot
}

func (l *slotList) empty() bool {
	return l.head == nil
}

func (l *slotList) push(s *Slot) {
	s.next = nil
	if l.tail == nil {
		l.head = s
	} else {
		l.tail.next = s
	}
	l.tail = s
}

func (l *slotList) pushFront(s *Slot) {
	s.next = l.head
	l.head = s
	if l.tail == nil {
		l.tail = s
	}
}

func (l *slotList) pop() *Slot {
	s := l.head
	if s == nil {
		return nil
	}
	l.head = s.next
	if l.head == nil {
		l.tail = nil
	}
	s.next = nil
	return s
}

// Moves every entry out, leaving l empty
func (l *slotList) take() slotList {
	out := *l
	l.head, l.tail = nil, nil
	return out
}
