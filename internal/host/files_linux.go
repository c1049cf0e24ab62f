//go:build linux

package host

import (
	c "tinyfs/internal"
	"tinyfs/internal/consts"
	"tinyfs/internal/errs"
	"tinyfs/internal/loop"
	"tinyfs/internal/stat"

	"context"
	"errors"
	"sync/atomic"

	"github.com/cespare/xxhash"
)

// Read size for ReadFile and Digest when the file size isn't known up front.
const READ_CHUNK = 0x10000

// Blocking helpers. They wait on the loop, so calling them from a Handler deadlocks.

// Submits one operation and waits for its result.
func (cl *Client) wait(ctx context.Context, submit func(done Handler)) (int32, error) {
	ch := make(chan int32, 1)
	submit(func(res int32) { ch <- res })
	select {
	case res := <- ch:
		return res, nil
	case <- ctx.Done():
		return 0, ctx.Err()
	}
}

func (cl *Client) call(ctx context.Context, op string, submit func(done Handler)) (int32, error) {
	res, err := cl.wait(ctx, submit)
	if err != nil { return 0, err }
	if err := errs.FromOp(op, res); err != nil { return 0, err }
	return res, nil
}

func (cl *Client) OpenFile(ctx context.Context, path string, flags int32, mode uint32) (int, error) {
	fd, err := cl.call(ctx, "open", func(done Handler) { cl.Open(path, flags, mode, done) })
	return int(fd), err
}

// Same as OpenFile with fopen-style flags, see ParseFlags.
func (cl *Client) OpenPath(ctx context.Context, path string, flags string, mode uint32) (int, error) {
	f, err := ParseFlags(flags)
	if err != nil { return 0, err }
	return cl.OpenFile(ctx, path, f, mode)
}

func (cl *Client) CloseFile(ctx context.Context, fd int) error {
	_, err := cl.call(ctx, "close", func(done Handler) { cl.CloseFd(fd, done) })
	return err
}

// Closes fd and returns err, or the close error if err was nil.
func (cl *Client) closeWith(ctx context.Context, fd int, err error) error {
	cerr := cl.CloseFile(ctx, fd)
	if err != nil { return err }
	return cerr
}

func (cl *Client) ReadAt(ctx context.Context, fd int, buf []byte, pos int64) (int, error) {
	n, err := cl.call(ctx, "read", func(done Handler) { cl.Read(fd, buf, pos, done) })
	return int(n), err
}

func (cl *Client) WriteAt(ctx context.Context, fd int, buf []byte, pos int64) (int, error) {
	n, err := cl.call(ctx, "write", func(done Handler) { cl.Write(fd, buf, pos, done) })
	return int(n), err
}

func (cl *Client) TruncateFd(ctx context.Context, fd int, size int64) error {
	_, err := cl.call(ctx, "ftruncate", func(done Handler) { cl.Ftruncate(fd, size, done) })
	return err
}

func (cl *Client) Truncate(ctx context.Context, path string, size int64) error {
	fd, err := cl.OpenFile(ctx, path, consts.O_WRONLY, 0)
	if err != nil { return err }
	return cl.closeWith(ctx, fd, cl.TruncateFd(ctx, fd, size))
}

// Follows symlinks unless lstat is set.
func (cl *Client) StatPath(ctx context.Context, path string, lstat bool) (*stat.Stats, error) {
	out := make([]byte, c.STAT_BUF_SIZE)
	op := "stat"
	if lstat { op = "lstat" }
	_, err := cl.call(ctx, op, func(done Handler) {
		if lstat {
			cl.Lstat(path, out, done)
		} else {
			cl.Stat(path, out, done)
		}
	})
	if err != nil { return nil, err }
	return stat.Parse(out), nil
}

func (cl *Client) StatFd(ctx context.Context, fd int) (*stat.Stats, error) {
	out := make([]byte, c.STAT_BUF_SIZE)
	_, err := cl.call(ctx, "fstat", func(done Handler) { cl.Fstat(fd, out, done) })
	if err != nil { return nil, err }
	return stat.Parse(out), nil
}

func (cl *Client) CreateDir(ctx context.Context, path string, mode uint32, recursive bool) error {
	_, err := cl.call(ctx, "mkdir", func(done Handler) { cl.Mkdir(path, mode, recursive, done) })
	return err
}

func (cl *Client) MkdirAll(ctx context.Context, path string, mode uint32) error {
	return cl.CreateDir(ctx, path, mode, true)
}

func (cl *Client) Remove(ctx context.Context, path string) error {
	_, err := cl.call(ctx, "unlink", func(done Handler) { cl.Unlink(path, done) })
	return err
}

func (cl *Client) RemoveDir(ctx context.Context, path string) error {
	_, err := cl.call(ctx, "rmdir", func(done Handler) { cl.Rmdir(path, done) })
	return err
}

// Sized by fstat, then keeps reading until EOF in case the file grew or reports size 0 (procfs).
func (cl *Client) ReadFile(ctx context.Context, path string) ([]byte, error) {
	fd, err := cl.OpenFile(ctx, path, consts.O_RDONLY, 0)
	if err != nil { return nil, err }

	st, err := cl.StatFd(ctx, fd)
	if err != nil { return nil, cl.closeWith(ctx, fd, err) }

	buf := make([]byte, 0, int(st.Size)+1)
	for {
		if len(buf) == cap(buf) {
			buf = append(buf, make([]byte, READ_CHUNK)...)[:len(buf)]
		}
		n, err := cl.ReadAt(ctx, fd, buf[len(buf):cap(buf)], int64(len(buf)))
		if err != nil { return nil, cl.closeWith(ctx, fd, err) }
		if n == 0 { break }
		buf = buf[:len(buf)+n]
	}
	return buf, cl.CloseFile(ctx, fd)
}

// Creates or truncates path, then writes all of data.
func (cl *Client) WriteFile(ctx context.Context, path string, data []byte, mode uint32) error {
	fd, err := cl.OpenFile(ctx, path, consts.O_WRONLY|consts.O_CREAT|consts.O_TRUNC, mode)
	if err != nil { return err }

	off := 0
	for off < len(data) {
		n, err := cl.WriteAt(ctx, fd, data[off:], int64(off))
		if err != nil { return cl.closeWith(ctx, fd, err) }
		if n == 0 {
			return cl.closeWith(ctx, fd, errors.New("write: no progress"))
		}
		off += n
	}
	return cl.CloseFile(ctx, fd)
}

// Swapped out in tests to count slabs.
var (
	allocSlab	= loop.AllocSlab
	deallocSlab	= loop.DeallocSlab
)

const (
	slabWaiting		int32 = iota
	slabDone
	slabAbandoned
)

// ReadAt into a slab. When ctx gives up first the read may still land in the slab, so whichever
// side loses the CAS unmaps it: the handler once the read is done, or us if it already was. An
// error equal to ctx.Err() means the slab is gone.
func (cl *Client) readSlab(ctx context.Context, fd int, slab []byte, pos int64) (int, error) {
	var state atomic.Int32
	ch := make(chan int32, 1)
	cl.Read(fd, slab, pos, func(res int32) {
		if state.CompareAndSwap(slabWaiting, slabDone) {
			ch <- res
			return
		}
		deallocSlab(slab)
	})

	select {
	case res := <- ch:
		if err := errs.FromOp("read", res); err != nil { return 0, err }
		return int(res), nil
	case <- ctx.Done():
		if !state.CompareAndSwap(slabWaiting, slabAbandoned) {
			deallocSlab(slab)
		}
		return 0, ctx.Err()
	}
}

// xxhash64 of the file contents, read through the loop in READ_CHUNK pieces.
func (cl *Client) Digest(ctx context.Context, path string) (uint64, error) {
	fd, err := cl.OpenFile(ctx, path, consts.O_RDONLY, 0)
	if err != nil { return 0, err }

	buf, err := allocSlab(READ_CHUNK)
	if err != nil { return 0, cl.closeWith(ctx, fd, err) }

	h := xxhash.New()
	var pos int64
	for {
		n, err := cl.readSlab(ctx, fd, buf, pos)
		if err != nil {
			if !errors.Is(err, ctx.Err()) { deallocSlab(buf) }
			return 0, cl.closeWith(ctx, fd, err)
		}
		if n == 0 { break }
		h.Write(buf[:n])
		pos += int64(n)
	}
	deallocSlab(buf)
	return h.Sum64(), cl.CloseFile(ctx, fd)
}
