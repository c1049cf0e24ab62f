//go:build linux

// Callback level file system API on top of the loop. The Client owns the process-wide
// completion callback and a growable pool of slots, and routes every completion back to the
// function that submitted it.
package host

import (
	c "tinyfs/internal"
	"tinyfs/internal/consts"
	"tinyfs/internal/loop"
	"tinyfs/internal/stat"
	"tinyfs/internal/util"

	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// Slots are added this many at a time, each batch in its own Arena so existing slots never move.
const CHUNK_SLOTS = 0x40

// Handler gets the raw result: >= 0 on success, -errno on failure.
type Handler func(res int32)

type Client struct {
	log			*slog.Logger
	loop		*loop.Loop

	mu			sync.Mutex
	arenas		[]*loop.Arena
	tickets		util.TicketQueue[Handler]
}

// Starts a loop and takes over the completion callback. Only one Client should exist per
// process, a second one steals the callback from the first.
func CreateClient(cfg loop.Config) (*Client, error) {
	l, err := loop.CreateLoop(cfg)
	if err != nil { return nil, err }

	cl := &Client{
		log: 		slog.With("src", "Client"),
		loop: 		l,
		arenas: 	[]*loop.Arena{loop.CreateArena(CHUNK_SLOTS)},
		tickets: 	util.CreateTicketQueue[Handler](CHUNK_SLOTS),
	}
	loop.Init(cl.onResponse)
	return cl, nil
}

func (cl *Client) Backend() string {
	return cl.loop.Backend()
}

// Waits for everything in flight, then stops the loop. Handlers still run for those, and
// anything they submit is waited for as well.
func (cl *Client) Close() {
	cl.loop.Close()
}

// Slots handed out right now
func (cl *Client) Active() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.tickets.Len() - cl.tickets.Free()
}

func (cl *Client) acquire(h Handler) *loop.Slot {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if cl.tickets.Free() == 0 {
		cl.arenas = append(cl.arenas, loop.CreateArena(CHUNK_SLOTS))
		cl.tickets.Grow(CHUNK_SLOTS)
		cl.log.Debug("slot pool grown", "slots", cl.tickets.Len())
	}

	id := cl.tickets.Acq(h)
	a := cl.arenas[id/CHUNK_SLOTS]
	a.PutId(id%CHUNK_SLOTS, uint32(id))
	return a.Slot(id % CHUNK_SLOTS)
}

// The ticket goes back before the handler runs, handlers are free to submit more work.
func (cl *Client) onResponse(id uint32, res int32) {
	cl.mu.Lock()
	if int(id) >= cl.tickets.Len() {
		cl.mu.Unlock()
		cl.log.Error("completion for unknown id", "id", id, "res", res)
		return
	}
	h := cl.tickets.Rel(int(id))
	cl.mu.Unlock()

	if h != nil { h(res) }
}

func (cl *Client) Open(path string, flags int32, mode uint32, cb Handler) {
	cl.loop.Open(cl.acquire(cb), path, flags, mode)
}

func (cl *Client) CloseFd(fd int, cb Handler) {
	cl.loop.CloseFd(cl.acquire(cb), fd)
}

// Reads into all of buf starting at file position pos.
func (cl *Client) Read(fd int, buf []byte, pos int64, cb Handler) {
	low, high := c.SplitPosition(pos)
	cl.loop.Read(cl.acquire(cb), fd, buf, 0, uint32(len(buf)), low, high)
}

func (cl *Client) Write(fd int, buf []byte, pos int64, cb Handler) {
	low, high := c.SplitPosition(pos)
	cl.loop.Write(cl.acquire(cb), fd, buf, 0, uint32(len(buf)), low, high)
}

func (cl *Client) Readv(fd int, bufs [][]byte, pos int64, cb Handler) {
	low, high := c.SplitPosition(pos)
	cl.loop.Readv(cl.acquire(cb), fd, bufs, low, high)
}

func (cl *Client) Writev(fd int, bufs [][]byte, pos int64, cb Handler) {
	low, high := c.SplitPosition(pos)
	cl.loop.Writev(cl.acquire(cb), fd, bufs, low, high)
}

func (cl *Client) Ftruncate(fd int, size int64, cb Handler) {
	low, high := c.SplitPosition(size)
	cl.loop.Ftruncate(cl.acquire(cb), fd, low, high)
}

// out must hold at least STAT_BUF_SIZE bytes
func (cl *Client) Stat(path string, out []byte, cb Handler) {
	cl.loop.Stat(cl.acquire(cb), path, out)
}

func (cl *Client) Lstat(path string, out []byte, cb Handler) {
	cl.loop.Lstat(cl.acquire(cb), path, out)
}

func (cl *Client) Fstat(fd int, out []byte, cb Handler) {
	cl.loop.Fstat(cl.acquire(cb), fd, out)
}

func (cl *Client) Rmdir(path string, cb Handler) {
	cl.loop.Rmdir(cl.acquire(cb), path)
}

func (cl *Client) Unlink(path string, cb Handler) {
	cl.loop.Unlink(cl.acquire(cb), path)
}

func (cl *Client) Mkdir(path string, mode uint32, recursive bool, cb Handler) {
	if recursive {
		cl.mkdirp(path, mode, cb)
		return
	}
	cl.loop.Mkdir(cl.acquire(cb), path, mode)
}

// ENOENT means a parent is missing: make it, then try again. Any other failure is fine as long
// as a directory ends up at path.
func (cl *Client) mkdirp(path string, mode uint32, cb Handler) {
	cl.Mkdir(path, mode, false, func(res int32) {
		if res == 0 {
			cb(0)
			return
		}

		if res != consts.ENOENT {
			out := make([]byte, c.STAT_BUF_SIZE)
			cl.Stat(path, out, func(sres int32) {
				if sres < 0 {
					cb(sres)
				} else if stat.Parse(out).IsDirectory() {
					cb(0)
				} else {
					cb(res)
				}
			})
			return
		}

		trimmed := strings.TrimRight(path, consts.Sep())
		parent := filepath.Dir(trimmed)
		if trimmed == "" || parent == trimmed || parent == "." {
			cb(res)
			return
		}
		cl.mkdirp(parent, mode, func(pres int32) {
			if pres < 0 {
				cb(pres)
				return
			}
			cl.Mkdir(path, mode, false, cb)
		})
	})
}
