//go:build linux

package loop

import (
	"sync/atomic"
	"tinyfs/internal/stat"
)

// Callback receives every completion in the process: the id found in the slot and the
// operation's errno-style result.
type Callback func(id uint32, res int32)

// There is exactly one consumer per process. It demultiplexes by id.
var onResponse atomic.Pointer[Callback]

// Registers the process-wide completion callback, replacing any previous one.
func Init(cb Callback) {
	if cb == nil {
		onResponse.Store(nil)
		return
	}
	onResponse.Store(&cb)
}

// Runs on the loop goroutine only. The slot is idle again before the callback runs, so the
// callback may resubmit it.
func (m *Loop) notify(s *Slot) {
	id := s.Id
	res := s.res

	if res == 0 && s.Opcode.isStat() {
		r := stat.FromStatx(&s.stx)
		r.Encode(s.out)
	}

	s.release()
	s.state.Store(SLOT_IDLE)

	cb := onResponse.Load()
	if cb == nil {
		m.log.Warn("completion dropped, no callback registered", "id", id, "res", res)
		return
	}
	(*cb)(id, res)
}
