// Remote access to a host Client over a websocket. Messages are kelindar/binary encoded
// Request/Response pairs matched by Tag.
package bridge

import (
	"tinyfs/internal/errs"
	"tinyfs/internal/stat"

	"fmt"

	"github.com/kelindar/binary"
)

type Op uint8
const (
	OpOpen	Op = iota + 1
	OpClose
	OpRead
	OpWrite
	OpFtruncate
	OpStat
	OpLstat
	OpFstat
	OpMkdir
	OpRmdir
	OpUnlink
	OpReadFile
	OpWriteFile
	OpDigest
	OpErrno
)

var opNames = map[Op]string{
	OpOpen: "open", OpClose: "close", OpRead: "read", OpWrite: "write", OpFtruncate: "ftruncate",
	OpStat: "stat", OpLstat: "lstat", OpFstat: "fstat", OpMkdir: "mkdir", OpRmdir: "rmdir",
	OpUnlink: "unlink", OpReadFile: "readfile", OpWriteFile: "writefile", OpDigest: "digest",
	OpErrno: "errno",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Fields an op doesn't use are ignored. Flags takes the fopen-style strings ("r", "w+", ...).
// Len is the read size, or the new length for ftruncate. Errno puts the code in Fd.
type Request struct {
	Tag			uint32
	Op			Op
	Path		string
	Fd			int32
	Flags		string
	Mode		uint32
	Pos			int64
	Len			int64
	Data		[]byte
	Recursive	bool
}

// Result is the raw result (>= 0 ok, -errno failed). Stat carries an encoded stat record.
type Response struct {
	Tag			uint32
	Result		int64
	Code		string
	Data		[]byte
	Stat		[]byte
}

func (r *Response) Err() error {
	if r.Result >= 0 {
		return nil
	}
	return &errs.Error{Errno: int32(r.Result), Code: r.Code}
}

func (r *Response) Stats() (*stat.Stats, error) {
	if err := r.Err(); err != nil { return nil, err }
	if len(r.Stat) == 0 { return nil, fmt.Errorf("response %d has no stat record", r.Tag) }
	return stat.Parse(r.Stat), nil
}

func EncodeRequest(req *Request) ([]byte, error) {
	data, err := binary.Marshal(req)
	if err != nil { return nil, fmt.Errorf("failed to marshal request: %w", err) }
	return data, nil
}

func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := binary.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal request: %w", err)
	}
	return &req, nil
}

func EncodeResponse(res *Response) ([]byte, error) {
	data, err := binary.Marshal(res)
	if err != nil { return nil, fmt.Errorf("failed to marshal response: %w", err) }
	return data, nil
}

func DecodeResponse(data []byte) (*Response, error) {
	var res Response
	if err := binary.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &res, nil
}
