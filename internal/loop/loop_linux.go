//go:build linux

package loop

import (
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/aethne0/giouring"
	"golang.org/x/sys/unix"
)

const RING_ENTRIES 	= 0x100
const POOL_WORKERS 	= 4
const POOL_Q_SIZE	= 0x100

var (
	ErrClosed = errors.New("loop closed")
)

type Config struct {
	RingEntries	uint32
	Workers		int
	Cpu			int 	// pin the loop thread to this cpu, -1 leaves it alone
	NoRing		bool 	// force everything through the worker pool
}

func DefaultConfig() Config {
	return Config{
		RingEntries: 	RING_ENTRIES,
		Workers: 		POOL_WORKERS,
		Cpu: 			-1,
	}
}

// Loop owns one ring manager goroutine. Every completion is delivered on it.
type Loop struct {
	log			*slog.Logger
	cfg			Config

	ring 		*giouring.Ring // nil when running on the pool alone
	ringCap		uint

	mu			sync.Mutex
	pending		slotList 	// submitted, not yet picked up by ringlord
	done		slotList 	// finished by a worker, not yet notified
	rejected	slotList 	// settled at dispatch, never ran
	closing		bool 		// Close was called, still draining
	sealed		bool 		// drained and stopped, submissions panic

	wake		chan struct{}
	poolQ		chan *Slot
	workers		sync.WaitGroup
	exited		chan struct{}
}

func CreateLoop(cfg Config) (*Loop, error) {
	log := slog.With("src", "Loop")

	if cfg.RingEntries == 0 { cfg.RingEntries = RING_ENTRIES }
	if cfg.Workers <= 0 { cfg.Workers = POOL_WORKERS }

	m := Loop {
		log: 		log,
		cfg: 		cfg,
		wake: 		make(chan struct{}, 1),
		poolQ: 		make(chan *Slot, POOL_Q_SIZE),
		exited: 	make(chan struct{}),
	}

	if !cfg.NoRing {
		ring, err := giouring.CreateRing(cfg.RingEntries)
		if err != nil {
			log.Warn("io_uring unavailable, using worker pool only", "err", err)
		} else {
			m.ring = ring
			m.ringCap = uint(cfg.RingEntries)
		}
	}

	for i := range cfg.Workers {
		m.workers.Add(1)
		go m.worker(i)
	}

	go m.ringlord()
	log.Debug("CreateLoop", "backend", m.Backend(), "workers", cfg.Workers, "entries", cfg.RingEntries)
	return &m, nil
}

func (m *Loop) Backend() string {
	if m.ring != nil {
		return "io_uring"
	}
	return "pool"
}

// Close waits until every submitted operation has been notified and the loop is idle, then
// stops it. Work submitted while draining (callbacks chaining follow-ups) joins the drain.
// Submitting after Close returns panics with ErrClosed.
func (m *Loop) Close() {
	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		<- m.exited
		return
	}
	m.closing = true
	m.mu.Unlock()
	m.poke()
	<- m.exited
}

func (m *Loop) poke() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Hands a slot to ringlord. Never blocks on capacity.
func (m *Loop) enqueue(s *Slot) {
	m.mu.Lock()
	if m.sealed {
		m.mu.Unlock()
		s.state.Store(SLOT_IDLE)
		panic(ErrClosed)
	}
	m.pending.push(s)
	m.mu.Unlock()
	m.poke()
}

// Completes a slot without running it. The notification still happens on the loop goroutine.
func (m *Loop) complete(s *Slot, res int32) {
	s.res = res
	m.log.Debug("Rejected at dispatch", "res", res, "slot", s)
	m.mu.Lock()
	if m.sealed {
		m.mu.Unlock()
		s.state.Store(SLOT_IDLE)
		panic(ErrClosed)
	}
	m.rejected.push(s)
	m.mu.Unlock()
	m.poke()
}

// Called by workers
func (m *Loop) finish(s *Slot) {
	m.mu.Lock()
	m.done.push(s)
	m.mu.Unlock()
	m.poke()
}

func (m *Loop) worker(id int) {
	defer m.workers.Done()
	for s := range m.poolQ {
		s.res = execute(s)
		m.finish(s)
	}
}

// "Those who sow the good seed
// Shall surely reap"
func (m *Loop) ringlord() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if m.cfg.Cpu >= 0 {
		var cpuSet unix.CPUSet
		cpuSet.Zero()
		cpuSet.Set(m.cfg.Cpu)
		err := unix.SchedSetaffinity(0, &cpuSet)
		if err != nil { m.log.Warn("Couldn't set core affinity for ring manager", "cpu", m.cfg.Cpu, "err", err) }
	}

	var queued   uint = 0 // SQEs that we have "got" and prepared
	var inflight uint = 0 // SQEs that have been SUBMITTED
	var working  uint = 0 // slots handed to the pool and not back yet
	var ringWait slotList // ring ops waiting for room in the SQ
	var backlog  slotList // pool ops the pool queue couldn't take yet

	// Same three phases as always, plus the pool:
	// 1. collect newly submitted slots, prepare SQEs while the ring has room, everything else
	//    goes to the pool
	// 2. submit
	// 3. reap CQEs and finished pool slots, notify
	// While SQEs are in flight we spin on the CQ, otherwise we sleep until poked.
	for {
		// STAGE 1
		m.mu.Lock()
		fresh := m.pending.take()
		finished := m.done.take()
		rejected := m.rejected.take()
		closing := m.closing
		m.mu.Unlock()

		for s := ringWait.pop(); s != nil; s = ringWait.pop() {
			if queued + inflight >= m.ringCap || !m.prepSQE(s) {
				ringWait.push(s)
				break
			}
			queued++
		}
		for s := fresh.pop(); s != nil; s = fresh.pop() {
			if m.ring != nil && isRingOp(s.Opcode) {
				if !ringWait.empty() || queued + inflight >= m.ringCap || !m.prepSQE(s) {
					ringWait.push(s)
					continue
				}
				queued++
			} else {
				backlog.push(s)
				working++
			}
		}
		FEED: for !backlog.empty() {
			s := backlog.pop()
			select {
			case m.poolQ <- s:
			default:
				backlog.pushFront(s)
				break FEED
			}
		}

		// STAGE 2
		if queued > 0 {
			submitted, err := m.ring.Submit()
			if err != nil && err != unix.ETIME && err != unix.EINTR && err != unix.EAGAIN && err != unix.EBUSY {
				m.log.Error("Submit", "err", err)
			}
			queued   -= submitted
			inflight += submitted
		}

		// STAGE 3
		for inflight > 0 {
			cqe, err := m.ring.PeekCQE()
			if err == unix.EAGAIN || err == unix.EINTR || err == unix.ETIME {
				break
			} else if err != nil {
				m.log.Error("Peek cqe fatal error", "err", err)
				panic("Something wrong with your IO_URING!")
			}
			if cqe == nil { break }

			inflight--
			s := slotFromUserData(cqe.UserData)
			s.res = cqe.Res
			m.ring.CQESeen(cqe)
			m.notify(s)
		}

		for s := finished.pop(); s != nil; s = finished.pop() {
			working--
			m.notify(s)
		}
		for s := rejected.pop(); s != nil; s = rejected.pop() {
			m.notify(s)
		}

		if closing && queued == 0 && inflight == 0 && working == 0 && ringWait.empty() {
			m.mu.Lock()
			idle := m.pending.empty() && m.done.empty() && m.rejected.empty()
			// sealed under the same lock, so nothing slips in between the check and the stop
			if idle { m.sealed = true }
			m.mu.Unlock()
			if idle { break }
			continue
		}

		if inflight > 0 || queued > 0 || !ringWait.empty() {
			continue
		}

		if !backlog.empty() {
			s := backlog.pop()
			select {
			case m.poolQ <- s:
			case <- m.wake:
				backlog.pushFront(s)
			}
			continue
		}
		<- m.wake
	}

	close(m.poolQ)
	m.workers.Wait()
	if m.ring != nil { m.ring.QueueExit() }
	m.log.Debug("ringlord exited")
	close(m.exited)
}
