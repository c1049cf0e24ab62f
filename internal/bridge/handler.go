package bridge

import (
	c "tinyfs/internal"
	"tinyfs/internal/errs"
	"tinyfs/internal/stat"

	"context"
	"errors"
	"syscall"
)

// FS is the blocking surface the bridge serves. host.Client implements it.
type FS interface {
	// flags are fopen-style strings ("r", "w+", ...), resolved to platform bits by the implementation
	OpenPath(ctx context.Context, path string, flags string, mode uint32) (int, error)
	CloseFile(ctx context.Context, fd int) error
	ReadAt(ctx context.Context, fd int, buf []byte, pos int64) (int, error)
	WriteAt(ctx context.Context, fd int, buf []byte, pos int64) (int, error)
	TruncateFd(ctx context.Context, fd int, size int64) error
	StatPath(ctx context.Context, path string, lstat bool) (*stat.Stats, error)
	StatFd(ctx context.Context, fd int) (*stat.Stats, error)
	CreateDir(ctx context.Context, path string, mode uint32, recursive bool) error
	RemoveDir(ctx context.Context, path string) error
	Remove(ctx context.Context, path string) error
	ReadFile(ctx context.Context, path string) ([]byte, error)
	WriteFile(ctx context.Context, path string, data []byte, mode uint32) error
	Digest(ctx context.Context, path string) (uint64, error)
}

// Largest single read a remote may ask for.
const MAX_READ = 0x100000

const DEFAULT_FILE_MODE	= 0o666
const DEFAULT_DIR_MODE	= 0o777

type Handler struct {
	fs	FS
}

func NewHandler(fs FS) *Handler {
	return &Handler{fs: fs}
}

func (h *Handler) Handle(ctx context.Context, req *Request) *Response {
	res := &Response{Tag: req.Tag}

	switch req.Op {
	case OpOpen:
		mode := req.Mode
		if mode == 0 { mode = DEFAULT_FILE_MODE }
		fd, err := h.fs.OpenPath(ctx, req.Path, req.Flags, mode)
		if err != nil { return fail(res, err) }
		res.Result = int64(fd)

	case OpClose:
		if err := h.fs.CloseFile(ctx, int(req.Fd)); err != nil { return fail(res, err) }

	case OpRead:
		if req.Len < 0 || req.Len > MAX_READ { return fail(res, syscall.EINVAL) }
		buf := make([]byte, req.Len)
		n, err := h.fs.ReadAt(ctx, int(req.Fd), buf, req.Pos)
		if err != nil { return fail(res, err) }
		res.Result = int64(n)
		res.Data = buf[:n]

	case OpWrite:
		n, err := h.fs.WriteAt(ctx, int(req.Fd), req.Data, req.Pos)
		if err != nil { return fail(res, err) }
		res.Result = int64(n)

	case OpFtruncate:
		if err := h.fs.TruncateFd(ctx, int(req.Fd), req.Len); err != nil { return fail(res, err) }

	case OpStat, OpLstat:
		st, err := h.fs.StatPath(ctx, req.Path, req.Op == OpLstat)
		if err != nil { return fail(res, err) }
		res.Stat = encodeStat(st)

	case OpFstat:
		st, err := h.fs.StatFd(ctx, int(req.Fd))
		if err != nil { return fail(res, err) }
		res.Stat = encodeStat(st)

	case OpMkdir:
		mode := req.Mode
		if mode == 0 { mode = DEFAULT_DIR_MODE }
		if err := h.fs.CreateDir(ctx, req.Path, mode, req.Recursive); err != nil { return fail(res, err) }

	case OpRmdir:
		if err := h.fs.RemoveDir(ctx, req.Path); err != nil { return fail(res, err) }

	case OpUnlink:
		if err := h.fs.Remove(ctx, req.Path); err != nil { return fail(res, err) }

	case OpReadFile:
		data, err := h.fs.ReadFile(ctx, req.Path)
		if err != nil { return fail(res, err) }
		res.Result = int64(len(data))
		res.Data = data

	case OpWriteFile:
		mode := req.Mode
		if mode == 0 { mode = DEFAULT_FILE_MODE }
		if err := h.fs.WriteFile(ctx, req.Path, req.Data, mode); err != nil { return fail(res, err) }
		res.Result = int64(len(req.Data))

	case OpDigest:
		sum, err := h.fs.Digest(ctx, req.Path)
		if err != nil { return fail(res, err) }
		res.Data = make([]byte, c.LEN_U64)
		c.Bin.PutUint64(res.Data, sum)

	case OpErrno:
		info := errs.Lookup(req.Fd)
		res.Code = info[0]
		res.Data = []byte(info[1])

	default:
		return fail(res, syscall.ENOSYS)
	}

	return res
}

func encodeStat(st *stat.Stats) []byte {
	out := make([]byte, c.STAT_BUF_SIZE)
	r := st.Record()
	r.Encode(out)
	return out
}

// Every error becomes a -errno result. Anything that isn't already an errno maps to the
// closest one.
func fail(res *Response, err error) *Response {
	var fe *errs.Error
	var errno syscall.Errno
	switch {
	case errors.As(err, &fe):
		res.Result = int64(fe.Errno)
	case errors.As(err, &errno):
		res.Result = -int64(errno)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		res.Result = -int64(syscall.ECANCELED)
	default:
		res.Result = -int64(syscall.EIO)
	}
	res.Code = errs.Name(int32(res.Result))
	return res
}
