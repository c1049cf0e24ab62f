//go:build linux

package main

import (
	c "tinyfs/internal"
	"tinyfs/internal/bridge"
	"tinyfs/internal/config"
	"tinyfs/internal/consts"
	"tinyfs/internal/errs"
	"tinyfs/internal/host"
	"tinyfs/internal/loop"
	"tinyfs/internal/stat"
	"tinyfs/internal/util"

	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"
)

const usage = `usage: tinyfs <command> [args]

  stat [-l] [-raw] PATH   print the stat record (-l: don't follow symlinks)
  cat PATH                write the file to stdout
  sum PATH                xxhash64 of the file
  put [-m MODE] PATH      write stdin to PATH
  mkdir [-p] [-m MODE] PATH
  rm PATH
  rmdir PATH
  truncate PATH SIZE
  errno CODE              name and description of a result code (e.g. -2)
  constants               platform flag and mode bits
  layout                  slot and stat record layout
  serve                   serve the local file system over a websocket bridge

Set TINYFS_REMOTE=ws://host:port to run file commands against a running "serve". "serve" listens
on TINYFS_LISTEN (127.0.0.1:8080); set TINYFS_TOKEN on both sides before exposing it further.
`

var errUsage = errors.New("bad usage")

// Either a local Client or a RemoteFS, plus whatever has to be torn down afterwards.
type session struct {
	fs		bridge.FS
	close	func()
}

func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	if cfg.RemoteUrl != "" {
		r, err := bridge.Dial(ctx, cfg.RemoteUrl, cfg.Token)
		if err != nil { return nil, err }
		return &session{fs: bridge.NewRemoteFS(r), close: func() { r.Close() }}, nil
	}

	cl, err := host.CreateClient(loopConfig(cfg))
	if err != nil { return nil, err }
	slog.Debug("Client started", "backend", cl.Backend())
	return &session{fs: cl, close: cl.Close}, nil
}

func loopConfig(cfg *config.Config) loop.Config {
	return loop.Config{
		RingEntries: 	cfg.RingEntries,
		Workers: 		cfg.Workers,
		Cpu: 			cfg.Cpu,
		NoRing: 		cfg.NoRing,
	}
}

// Exit codes: 0 ok, 1 operation failed, 2 usage.
func run(ctx context.Context, cfg *config.Config, args []string, stdin io.Reader, stdout io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}

	err := dispatch(ctx, cfg, args[0], args[1:], stdin, stdout)
	if errors.Is(err, errUsage) || errors.Is(err, flag.ErrHelp) {
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
	if err != nil {
		slog.Error(args[0], "error", err)
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, cfg *config.Config, cmd string, args []string, stdin io.Reader, stdout io.Writer) error {
	switch cmd {
	case "errno":
		return cmdErrno(args, stdout)
	case "constants":
		return cmdConstants(stdout)
	case "layout":
		return cmdLayout(stdout)
	case "serve":
		return cmdServe(ctx, cfg)
	case "stat", "cat", "sum", "put", "mkdir", "rm", "rmdir", "truncate":
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, errUsage)
	}

	fset := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fset.SetOutput(io.Discard)
	lstat := fset.Bool("l", false, "")
	raw := fset.Bool("raw", false, "")
	parents := fset.Bool("p", false, "")
	modeStr := fset.String("m", "", "")
	if err := fset.Parse(args); err != nil { return fmt.Errorf("%v: %w", err, errUsage) }
	rest := fset.Args()

	want := 1
	if cmd == "truncate" { want = 2 }
	if len(rest) != want { return errUsage }
	path := rest[0]

	var mode uint32
	if *modeStr != "" {
		m, err := strconv.ParseUint(*modeStr, 8, 32)
		if err != nil { return fmt.Errorf("bad mode %q: %w", *modeStr, errUsage) }
		mode = uint32(m)
	}

	s, err := openSession(ctx, cfg)
	if err != nil { return err }
	defer s.close()
	fs := s.fs

	switch cmd {
	case "stat":
		st, err := fs.StatPath(ctx, path, *lstat)
		if err != nil { return err }
		printStats(stdout, st, *raw)
		return nil

	case "cat":
		data, err := fs.ReadFile(ctx, path)
		if err != nil { return err }
		_, err = stdout.Write(data)
		return err

	case "sum":
		sum, err := fs.Digest(ctx, path)
		if err != nil { return err }
		fmt.Fprintf(stdout, "%016x  %s\n", sum, path)
		return nil

	case "put":
		data, err := io.ReadAll(stdin)
		if err != nil { return err }
		if mode == 0 { mode = host.DEFAULT_FILE_MODE }
		return fs.WriteFile(ctx, path, data, mode)

	case "mkdir":
		if mode == 0 { mode = host.DEFAULT_DIR_MODE }
		return fs.CreateDir(ctx, path, mode, *parents)

	case "rm":
		return fs.Remove(ctx, path)

	case "rmdir":
		return fs.RemoveDir(ctx, path)

	case "truncate":
		size, err := strconv.ParseInt(rest[1], 0, 64)
		if err != nil || size < 0 { return fmt.Errorf("bad size %q: %w", rest[1], errUsage) }
		fd, err := fs.OpenPath(ctx, path, "r+", 0)
		if err != nil { return err }
		terr := fs.TruncateFd(ctx, fd, size)
		cerr := fs.CloseFile(ctx, fd)
		if terr != nil { return terr }
		return cerr
	}
	return nil
}

func printStats(w io.Writer, st *stat.Stats, raw bool) {
	if raw {
		out := make([]byte, c.STAT_BUF_SIZE)
		r := st.Record()
		r.Encode(out)
		fmt.Fprint(w, util.PrettyPrintRecord(out, stat.FieldNames[:]))
		return
	}

	kind := "other"
	switch {
	case st.IsFile():				kind = "file"
	case st.IsDirectory():			kind = "directory"
	case st.IsSymbolicLink():		kind = "symlink"
	case st.IsCharacterDevice():	kind = "char device"
	case st.IsBlockDevice():		kind = "block device"
	case st.IsFIFO():				kind = "fifo"
	case st.IsSocket():				kind = "socket"
	}

	fmt.Fprintf(w, "  kind: %s\n", kind)
	fmt.Fprintf(w, "  mode: %04o\n", st.Perm())
	fmt.Fprintf(w, "  size: %d\n", st.Size)
	fmt.Fprintf(w, " nlink: %d\n", st.Nlink)
	fmt.Fprintf(w, "   ino: %d\n", st.Ino)
	fmt.Fprintf(w, "   dev: %d\n", st.Dev)
	fmt.Fprintf(w, "   uid: %d  gid: %d\n", st.Uid, st.Gid)
	fmt.Fprintf(w, "blocks: %d (%d bytes each)\n", st.Blocks, st.Blksize)
	fmt.Fprintf(w, " atime: %s\n", st.Atime().Format(time.RFC3339Nano))
	fmt.Fprintf(w, " mtime: %s\n", st.Mtime().Format(time.RFC3339Nano))
	fmt.Fprintf(w, " ctime: %s\n", st.Ctime().Format(time.RFC3339Nano))
	fmt.Fprintf(w, " btime: %s\n", st.Birthtime().Format(time.RFC3339Nano))
}

func cmdErrno(args []string, w io.Writer) error {
	if len(args) != 1 { return errUsage }
	code, err := strconv.ParseInt(args[0], 0, 32)
	if err != nil { return fmt.Errorf("bad code %q: %w", args[0], errUsage) }
	info := errs.Lookup(int32(code))
	fmt.Fprintf(w, "%s: %s\n", info[0], info[1])
	return nil
}

func cmdConstants(w io.Writer) error {
	table := consts.Table()
	names := make([]string, 0, len(table))
	for k := range table { names = append(names, k) }
	slices.Sort(names)
	for _, k := range names {
		fmt.Fprintf(w, "%-10s 0x%x\n", k, table[k])
	}
	fmt.Fprintf(w, "%-10s %s\n", "sep", consts.Sep())
	return nil
}

func cmdLayout(w io.Writer) error {
	fmt.Fprintf(w, "slot size:       0x%x\n", loop.SLOT_SIZE)
	fmt.Fprintf(w, "slot id offset:  0x%x\n", loop.SLOT_ID_OFFSET)
	fmt.Fprintf(w, "stat fields:     %d\n", c.STAT_FIELDS)
	fmt.Fprintf(w, "stat buf size:   0x%x\n", c.STAT_BUF_SIZE)
	fmt.Fprintf(w, "path max:        0x%x\n", c.PATH_MAX)
	fmt.Fprintf(w, "io_uring:        %v\n", loop.RingSupported())
	fmt.Fprintln(w)

	a := loop.CreateArena(1)
	a.PutId(0, 0xc0ffee)
	util.PrintBytes(w, a.Raw())
	return nil
}

func cmdServe(ctx context.Context, cfg *config.Config) error {
	cl, err := host.CreateClient(loopConfig(cfg))
	if err != nil { return err }
	defer cl.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Token == "" && !loopback(cfg.ListenAddr) {
		slog.Warn("Serving without TINYFS_TOKEN on a non-loopback address", "addr", cfg.ListenAddr)
	}
	srv := bridge.NewServer(cfg.ListenAddr, cfg.Token, bridge.NewHandler(cl))
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	slog.Info("Serving", "addr", cfg.ListenAddr, "backend", cl.Backend())

	select {
	case err := <- errCh:
		return err
	case <- ctx.Done():
	}

	slog.Info("Shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// connections are gone once this returns, the deferred cl.Close drains what they left
	return srv.Shutdown(sctx)
}

func loopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil { return false }
	if host == "localhost" { return true }
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
