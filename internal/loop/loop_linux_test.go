//go:build linux

package loop

import (
	c "tinyfs/internal"
	"tinyfs/internal/stat"

	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lmittmann/tint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: time.TimeOnly,
		AddSource:  true,
	})))
	os.Exit(m.Run())
}

type completion struct {
	id	uint32
	res	int32
}

// The callback is process wide, so none of these tests run in parallel.
func listen(t *testing.T, n int) chan completion {
	ch := make(chan completion, n)
	Init(func(id uint32, res int32) { ch <- completion{id, res} })
	t.Cleanup(func() { Init(nil) })
	return ch
}

func await(t *testing.T, ch chan completion) completion {
	t.Helper()
	select {
	case r := <- ch:
		return r
	case <- time.After(5 * time.Second):
		t.Fatal("timed out waiting for completion")
		return completion{}
	}
}

func tempfile(t *testing.T) string {
	dir := t.TempDir()
	return filepath.Join(dir, fmt.Sprintf("tinytest%016x.tiny", rand.Uint64()))
}

// Runs fn once on the ring backend (pool if the kernel says no) and once on the pool alone.
func backends(t *testing.T, fn func(t *testing.T, m *Loop)) {
	for _, noRing := range []bool{false, true} {
		name := "ring"
		if noRing { name = "pool" }
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.NoRing = noRing
			m, err := CreateLoop(cfg)
			require.NoError(t, err)
			defer m.Close()
			t.Log("backend", m.Backend())
			fn(t, m)
		})
	}
}

func openFile(t *testing.T, m *Loop, ch chan completion, s *Slot, path string) int {
	m.Open(s, path, unix.O_RDWR|unix.O_CREAT, 0o644)
	r := await(t, ch)
	require.GreaterOrEqual(t, r.res, int32(0), "open failed: %d", r.res)
	return int(r.res)
}

func Test_Position_Reconstruct(t *testing.T) {
	assert.Equal(t, int64(0x1_0000_0005), c.Position(5, 1))
	assert.Equal(t, int64(0xffff_ffff), c.Position(0xffff_ffff, 0))
	assert.Less(t, c.Position(0, 0x8000_0000), int64(0))

	low, high := c.SplitPosition(0x7_0000_0010)
	assert.Equal(t, uint32(0x10), low)
	assert.Equal(t, uint32(7), high)
}

func Test_Arena_Id_Through_Raw(t *testing.T) {
	a := CreateArena(4)
	require.Len(t, a.Raw(), int(4*SLOT_SIZE))

	for i := range a.Len() {
		a.PutId(i, uint32(0xbeef0000+i))
	}
	for i := range a.Len() {
		assert.Equal(t, uint32(0xbeef0000+i), a.Slot(i).Id)
		assert.Equal(t, uint32(0xbeef0000+i), a.GetId(i))
	}
	assert.Nil(t, CreateArena(0).Raw())
}

func Test_Slot_Iovecs_Spill(t *testing.T) {
	var s Slot
	s.bufs = make([][]byte, SLOT_IOV_INLINE)
	for i := range s.bufs { s.bufs[i] = make([]byte, i+1) }
	iov := s.iovecs()
	assert.Len(t, iov, SLOT_IOV_INLINE)
	assert.Nil(t, s.iovx)
	assert.Equal(t, uint64(SLOT_IOV_INLINE), iov[SLOT_IOV_INLINE-1].Len)

	s.bufs = append(s.bufs, []byte{}, make([]byte, 3))
	iov = s.iovecs()
	assert.Len(t, s.iovx, SLOT_IOV_INLINE+2)
	assert.Nil(t, iov[SLOT_IOV_INLINE].Base)
	assert.Equal(t, uint64(3), iov[SLOT_IOV_INLINE+1].Len)

	s.release()
	assert.Nil(t, s.iovx)
	assert.Nil(t, s.bufs)
}

func Test_Loop_Write_Read_Roundtrip(t *testing.T) {
	backends(t, func(t *testing.T, m *Loop) {
		ch := listen(t, 1)
		a := CreateArena(1)
		s := a.Slot(0)
		s.Id = 7

		fd := openFile(t, m, ch, s, tempfile(t))

		data := []byte("the quick brown fox")
		m.Write(s, fd, data, 0, uint32(len(data)), 0x10, 0)
		r := await(t, ch)
		assert.Equal(t, uint32(7), r.id)
		assert.Equal(t, int32(len(data)), r.res)

		buf := make([]byte, 0x40)
		m.Read(s, fd, buf, 4, uint32(len(data)), 0x10, 0)
		r = await(t, ch)
		require.Equal(t, int32(len(data)), r.res)
		assert.Equal(t, data, buf[4:4+len(data)])
		assert.Zero(t, buf[0])

		// hole before 0x10 reads back as zeroes
		m.Read(s, fd, buf, 0, 0x10, 0, 0)
		r = await(t, ch)
		require.Equal(t, int32(0x10), r.res)
		assert.Equal(t, make([]byte, 0x10), buf[:0x10])

		m.CloseFd(s, fd)
		assert.Equal(t, int32(0), await(t, ch).res)
		assert.False(t, s.Inflight())
	})
}

func Test_Loop_Vectored(t *testing.T) {
	backends(t, func(t *testing.T, m *Loop) {
		ch := listen(t, 1)
		a := CreateArena(1)
		s := a.Slot(0)
		fd := openFile(t, m, ch, s, tempfile(t))

		// more buffers than fit inline
		out := make([][]byte, SLOT_IOV_INLINE+3)
		total := 0
		for i := range out {
			out[i] = []byte(strings.Repeat(string(rune('a'+i)), i+1))
			total += i + 1
		}
		m.Writev(s, fd, out, 0, 0)
		require.Equal(t, int32(total), await(t, ch).res)

		in := [][]byte{make([]byte, 3), make([]byte, total-3)}
		m.Readv(s, fd, in, 0, 0)
		require.Equal(t, int32(total), await(t, ch).res)
		assert.Equal(t, []byte("abb"), in[0])
		assert.Equal(t, byte('c'), in[1][0])

		m.Readv(s, fd, nil, 0, 0)
		assert.Equal(t, int32(0), await(t, ch).res)

		m.CloseFd(s, fd)
		await(t, ch)
	})
}

func Test_Loop_Ftruncate(t *testing.T) {
	backends(t, func(t *testing.T, m *Loop) {
		ch := listen(t, 1)
		s := CreateArena(1).Slot(0)
		path := tempfile(t)
		fd := openFile(t, m, ch, s, path)

		low, high := c.SplitPosition(0x1_0000_0000)
		m.Ftruncate(s, fd, low, high)
		require.Equal(t, int32(0), await(t, ch).res)

		var st unix.Stat_t
		require.NoError(t, unix.Stat(path, &st))
		assert.Equal(t, int64(0x1_0000_0000), st.Size)

		m.CloseFd(s, fd)
		await(t, ch)
	})
}

func Test_Loop_Stat(t *testing.T) {
	backends(t, func(t *testing.T, m *Loop) {
		ch := listen(t, 1)
		s := CreateArena(1).Slot(0)
		path := tempfile(t)
		require.NoError(t, os.WriteFile(path, make([]byte, 0x123), 0o640))

		out := make([]byte, c.STAT_BUF_SIZE+8)
		for i := range out { out[i] = 0xAA }

		m.Stat(s, path, out)
		require.Equal(t, int32(0), await(t, ch).res)
		st := stat.Parse(out)
		assert.Equal(t, uint64(0x123), st.Size)
		assert.True(t, st.IsFile())
		assert.Equal(t, uint32(0o640), st.Perm())
		assert.Equal(t, []byte{0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}, out[c.STAT_BUF_SIZE:])

		var want unix.Stat_t
		require.NoError(t, unix.Stat(path, &want))
		assert.Equal(t, want.Ino, st.Ino)
		assert.Equal(t, uint64(want.Nlink), st.Nlink)

		// failure leaves the buffer alone
		for i := range out { out[i] = 0xAA }
		m.Stat(s, path+".missing", out)
		assert.Equal(t, -int32(unix.ENOENT), await(t, ch).res)
		for _, b := range out { require.Equal(t, byte(0xAA), b) }
	})
}

func Test_Loop_Lstat_Fstat(t *testing.T) {
	backends(t, func(t *testing.T, m *Loop) {
		ch := listen(t, 1)
		s := CreateArena(1).Slot(0)
		path := tempfile(t)
		link := path + ".lnk"
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		require.NoError(t, os.Symlink(path, link))

		out := make([]byte, c.STAT_BUF_SIZE)
		m.Lstat(s, link, out)
		require.Equal(t, int32(0), await(t, ch).res)
		assert.True(t, stat.Parse(out).IsSymbolicLink())

		m.Stat(s, link, out)
		require.Equal(t, int32(0), await(t, ch).res)
		assert.True(t, stat.Parse(out).IsFile())

		fd := openFile(t, m, ch, s, path)
		m.Fstat(s, fd, out)
		require.Equal(t, int32(0), await(t, ch).res)
		assert.Equal(t, uint64(1), stat.Parse(out).Size)
		m.CloseFd(s, fd)
		await(t, ch)
	})
}

func Test_Loop_Dir_Ops(t *testing.T) {
	backends(t, func(t *testing.T, m *Loop) {
		ch := listen(t, 1)
		s := CreateArena(1).Slot(0)
		dir := filepath.Join(t.TempDir(), "sub")

		m.Mkdir(s, dir, 0o755)
		require.Equal(t, int32(0), await(t, ch).res)
		m.Mkdir(s, dir, 0o755)
		assert.Equal(t, -int32(unix.EEXIST), await(t, ch).res)

		file := filepath.Join(dir, "f")
		require.NoError(t, os.WriteFile(file, nil, 0o644))
		m.Rmdir(s, dir)
		assert.Equal(t, -int32(unix.ENOTEMPTY), await(t, ch).res)

		m.Unlink(s, file)
		require.Equal(t, int32(0), await(t, ch).res)
		m.Unlink(s, file)
		assert.Equal(t, -int32(unix.ENOENT), await(t, ch).res)

		m.Rmdir(s, dir)
		require.Equal(t, int32(0), await(t, ch).res)
		_, err := os.Stat(dir)
		assert.True(t, os.IsNotExist(err))
	})
}

func Test_Loop_Rejected_At_Dispatch(t *testing.T) {
	backends(t, func(t *testing.T, m *Loop) {
		ch := listen(t, 1)
		s := CreateArena(1).Slot(0)
		s.Id = 0x55

		long := "/" + strings.Repeat("a", c.PATH_MAX)
		m.Open(s, long, unix.O_RDONLY, 0)
		r := await(t, ch)
		assert.Equal(t, uint32(0x55), r.id)
		assert.Equal(t, -int32(unix.ENAMETOOLONG), r.res)

		m.Read(s, 0, make([]byte, 4), 2, 4, 0, 0)
		assert.Equal(t, -int32(unix.EINVAL), await(t, ch).res)

		m.Write(s, 1, make([]byte, 4), 0, 4, 0, 0x8000_0000)
		assert.Equal(t, -int32(unix.EINVAL), await(t, ch).res)

		m.Stat(s, "/", make([]byte, c.STAT_BUF_SIZE-1))
		assert.Equal(t, -int32(unix.EINVAL), await(t, ch).res)
	})
}

func Test_Loop_Many_Concurrent_Exactly_Once(t *testing.T) {
	const N = 1000
	backends(t, func(t *testing.T, m *Loop) {
		ch := listen(t, N)
		a := CreateArena(N)
		dir := t.TempDir()
		path := tempfile(t)
		require.NoError(t, os.WriteFile(path, make([]byte, 0x1000), 0o644))
		fd, err := unix.Open(path, unix.O_RDWR, 0)
		require.NoError(t, err)
		defer unix.Close(fd)

		outs := make([][]byte, N)
		var wg sync.WaitGroup
		for i := range N {
			s := a.Slot(i)
			s.Id = uint32(0x10000 + i)
			outs[i] = make([]byte, c.STAT_BUF_SIZE)
			wg.Add(1)
			go func() {
				defer wg.Done()
				switch i % 3 {
				case 0:
					m.Stat(s, dir, outs[i])
				case 1:
					m.Read(s, fd, outs[i], 0, 0x10, uint32(i), 0)
				default:
					m.Write(s, fd, outs[i], 0, 0x08, uint32(i), 0)
				}
			}()
		}
		wg.Wait()

		seen := make(map[uint32]int, N)
		for range N {
			r := await(t, ch)
			seen[r.id]++
			assert.GreaterOrEqual(t, r.res, int32(0), "id 0x%x", r.id)
		}
		for i := range N {
			assert.Equal(t, 1, seen[uint32(0x10000+i)], "id 0x%x", 0x10000+i)
		}
		select {
		case r := <- ch:
			t.Fatalf("extra completion %+v", r)
		case <- time.After(50 * time.Millisecond):
		}
	})
}

func Test_Loop_Resubmit_From_Callback(t *testing.T) {
	backends(t, func(t *testing.T, m *Loop) {
		s := CreateArena(1).Slot(0)
		s.Id = 3
		out := make([]byte, c.STAT_BUF_SIZE)
		dir := t.TempDir()
		finished := make(chan int, 1)

		count := 0 // only touched on the loop goroutine
		Init(func(id uint32, res int32) {
			count++
			if count < 50 {
				m.Stat(s, dir, out)
				return
			}
			finished <- count
		})
		t.Cleanup(func() { Init(nil) })

		m.Stat(s, dir, out)
		select {
		case n := <- finished:
			assert.Equal(t, 50, n)
		case <- time.After(5 * time.Second):
			t.Fatal("timed out")
		}
		assert.True(t, stat.Parse(out).IsDirectory())
	})
}

func Test_Loop_Reused_Slot_Panics(t *testing.T) {
	m, err := CreateLoop(DefaultConfig())
	require.NoError(t, err)
	defer m.Close()
	listen(t, 1)

	s := CreateArena(1).Slot(0)
	s.state.Store(SLOT_INFLIGHT)
	assert.Panics(t, func() { m.Unlink(s, "/nonexistent") })
	s.state.Store(SLOT_IDLE)
}

func Test_Loop_Close_Drains_And_Rejects(t *testing.T) {
	m, err := CreateLoop(DefaultConfig())
	require.NoError(t, err)
	ch := listen(t, 64)

	a := CreateArena(64)
	dir := t.TempDir()
	for i := range a.Len() {
		a.Slot(i).Id = uint32(i)
		m.Stat(a.Slot(i), dir, make([]byte, c.STAT_BUF_SIZE))
	}
	m.Close()
	assert.Len(t, ch, 64)

	s := a.Slot(0)
	assert.PanicsWithValue(t, ErrClosed, func() { m.Rmdir(s, dir) })
	assert.False(t, s.Inflight())

	// second Close is a no-op
	m.Close()
}

func Test_Loop_Close_Waits_For_Chained_Work(t *testing.T) {
	backends(t, func(t *testing.T, m *Loop) {
		s := CreateArena(1).Slot(0)
		out := make([]byte, c.STAT_BUF_SIZE)
		dir := t.TempDir()
		long := "/" + strings.Repeat("x", c.PATH_MAX)

		// loop goroutine only, read after Close returns
		count := 0
		var last int32
		Init(func(id uint32, res int32) {
			count++
			last = res
			switch {
			case count < 100:
				m.Stat(s, dir, out)
			case count == 100:
				// settled at dispatch, still has to join the drain
				m.Open(s, long, 0, 0)
			}
		})
		t.Cleanup(func() { Init(nil) })

		m.Stat(s, dir, out)
		m.Close()

		assert.Equal(t, 101, count)
		assert.Equal(t, -int32(unix.ENAMETOOLONG), last)
		assert.False(t, s.Inflight())
		assert.PanicsWithValue(t, ErrClosed, func() { m.Stat(s, dir, out) })
	})
}

func Test_Slab_Alloc(t *testing.T) {
	slab, err := AllocSlab(ALIGN * 4)
	require.NoError(t, err)
	assert.Len(t, slab, ALIGN*4)
	assert.Zero(t, bufAddr(slab)%ALIGN)
	require.NoError(t, DeallocSlab(slab))

	// rounded up to whole pages underneath
	odd, err := AllocSlab(ALIGN + 1)
	require.NoError(t, err)
	assert.Len(t, odd, ALIGN+1)
	assert.Equal(t, ALIGN*2, cap(odd))
	odd[ALIGN] = 0xff
	require.NoError(t, DeallocSlab(odd))

	_, err = AllocSlab(0)
	assert.ErrorIs(t, err, unix.EINVAL)
}

func Test_Slot_String(t *testing.T) {
	s := CreateArena(1).Slot(0)
	s.Id = 0xabc
	s.Opcode = OpOpen
	s.path = "/tmp/x"
	out := s.String()
	assert.Contains(t, out, "0x00000abc")
	assert.Contains(t, out, "OPEN")
	assert.Contains(t, out, `"/tmp/x"`)
}
