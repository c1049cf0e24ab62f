//go:build linux

package loop

import (
	"fmt"
	"strings"
	"unsafe"
)

func (s *Slot) String() string {
	if s == nil {
		return "<nil>"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Slot | Id: 0x%08x, Opcode: %v, Fd: %d, Inflight: %v, Res: %d | @0x%x\n",
		s.Id, s.Opcode, s.fd, s.Inflight(), s.res, uintptr(unsafe.Pointer(s)))

	switch s.Opcode {
	case OpOpen:
		fmt.Fprintf(&b, "   > OPEN      [ Path: %q | Flags: 0x%x | Mode: 0%o ]\n", s.path, s.flags, s.mode)
	case OpMkdir:
		fmt.Fprintf(&b, "   > MKDIR     [ Path: %q | Mode: 0%o ]\n", s.path, s.mode)
	case OpRmdir, OpUnlink, OpStat, OpLstat:
		fmt.Fprintf(&b, "   > %-9s [ Path: %q ]\n", strings.ToUpper(s.Opcode.String()), s.path)
	case OpRead, OpWrite:
		fmt.Fprintf(&b, "   > %-9s [ Buf: @0x%x | Len: 0x%08x | Pos: 0x%016x ]\n",
			strings.ToUpper(s.Opcode.String()), bufAddr(s.buf), len(s.buf), s.pos)
	case OpReadv, OpWritev:
		for i, buf := range s.bufs {
			fmt.Fprintf(&b, "   | [%02d] %-6s [ Buf: @0x%x | Len: 0x%08x ]\n",
				i, strings.ToUpper(s.Opcode.String()), bufAddr(buf), len(buf))
		}
		fmt.Fprintf(&b, "   > Pos: 0x%016x\n", s.pos)
	case OpFtruncate:
		fmt.Fprintf(&b, "   > FTRUNCATE [ Len: 0x%016x ]\n", s.pos)
	}

	return b.String()
}
