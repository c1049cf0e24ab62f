package bridge

import (
	c "tinyfs/internal"
	"tinyfs/internal/stat"

	"context"
	"fmt"
)

// RemoteFS serves the FS interface from the other end of a bridge, so callers don't care
// whether the files are local.
type RemoteFS struct {
	r	*Remote
}

func NewRemoteFS(r *Remote) *RemoteFS {
	return &RemoteFS{r: r}
}

// A transport failure and a failed operation both come back as a plain error.
func (f *RemoteFS) do(ctx context.Context, req Request) (*Response, error) {
	res, err := f.r.Call(ctx, req)
	if err != nil { return nil, err }
	if err := res.Err(); err != nil { return nil, fmt.Errorf("%v: %w", req.Op, err) }
	return res, nil
}

func (f *RemoteFS) OpenPath(ctx context.Context, path string, flags string, mode uint32) (int, error) {
	res, err := f.do(ctx, Request{Op: OpOpen, Path: path, Flags: flags, Mode: mode})
	if err != nil { return 0, err }
	return int(res.Result), nil
}

func (f *RemoteFS) CloseFile(ctx context.Context, fd int) error {
	_, err := f.do(ctx, Request{Op: OpClose, Fd: int32(fd)})
	return err
}

func (f *RemoteFS) ReadAt(ctx context.Context, fd int, buf []byte, pos int64) (int, error) {
	res, err := f.do(ctx, Request{Op: OpRead, Fd: int32(fd), Pos: pos, Len: int64(min(len(buf), MAX_READ))})
	if err != nil { return 0, err }
	return copy(buf, res.Data), nil
}

func (f *RemoteFS) WriteAt(ctx context.Context, fd int, buf []byte, pos int64) (int, error) {
	res, err := f.do(ctx, Request{Op: OpWrite, Fd: int32(fd), Pos: pos, Data: buf})
	if err != nil { return 0, err }
	return int(res.Result), nil
}

func (f *RemoteFS) TruncateFd(ctx context.Context, fd int, size int64) error {
	_, err := f.do(ctx, Request{Op: OpFtruncate, Fd: int32(fd), Len: size})
	return err
}

func (f *RemoteFS) StatPath(ctx context.Context, path string, lstat bool) (*stat.Stats, error) {
	op := OpStat
	if lstat { op = OpLstat }
	res, err := f.do(ctx, Request{Op: op, Path: path})
	if err != nil { return nil, err }
	return res.Stats()
}

func (f *RemoteFS) StatFd(ctx context.Context, fd int) (*stat.Stats, error) {
	res, err := f.do(ctx, Request{Op: OpFstat, Fd: int32(fd)})
	if err != nil { return nil, err }
	return res.Stats()
}

func (f *RemoteFS) CreateDir(ctx context.Context, path string, mode uint32, recursive bool) error {
	_, err := f.do(ctx, Request{Op: OpMkdir, Path: path, Mode: mode, Recursive: recursive})
	return err
}

func (f *RemoteFS) RemoveDir(ctx context.Context, path string) error {
	_, err := f.do(ctx, Request{Op: OpRmdir, Path: path})
	return err
}

func (f *RemoteFS) Remove(ctx context.Context, path string) error {
	_, err := f.do(ctx, Request{Op: OpUnlink, Path: path})
	return err
}

func (f *RemoteFS) ReadFile(ctx context.Context, path string) ([]byte, error) {
	res, err := f.do(ctx, Request{Op: OpReadFile, Path: path})
	if err != nil { return nil, err }
	return res.Data, nil
}

func (f *RemoteFS) WriteFile(ctx context.Context, path string, data []byte, mode uint32) error {
	_, err := f.do(ctx, Request{Op: OpWriteFile, Path: path, Data: data, Mode: mode})
	return err
}

func (f *RemoteFS) Digest(ctx context.Context, path string) (uint64, error) {
	res, err := f.do(ctx, Request{Op: OpDigest, Path: path})
	if err != nil { return 0, err }
	if len(res.Data) != c.LEN_U64 { return 0, fmt.Errorf("digest: bad reply length %d", len(res.Data)) }
	return c.Bin.Uint64(res.Data), nil
}

// Name and description for a result code, looked up on the serving side.
func (f *RemoteFS) Errno(ctx context.Context, code int32) ([2]string, error) {
	res, err := f.r.Call(ctx, Request{Op: OpErrno, Fd: code})
	if err != nil { return [2]string{}, err }
	return [2]string{res.Code, string(res.Data)}, nil
}
