package bridge

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const SEND_QUEUE 		= 0x100
const WS_BUFFER_SIZE	= 0x1000

// Header carrying the shared token when the server has one.
const TOKEN_HEADER = "X-Tinyfs-Token"

// No CheckOrigin: gorilla refuses browser upgrades whose Origin isn't this host, so a web page
// can't drive the file system.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  WS_BUFFER_SIZE,
	WriteBufferSize: WS_BUFFER_SIZE,
}

var errConnClosed = errors.New("connection closed")

// Connection is one websocket peer. Only writePump writes to the socket, and only requests
// counted in pending send, so sendCh closes once pending drains.
type Connection struct {
	conn	*websocket.Conn
	sendCh	chan []byte
	pending	sync.WaitGroup
}

type Server struct {
	log			*slog.Logger
	addr		string
	token		string 	// empty accepts any peer that passes the origin check
	handler		*Handler

	mu			sync.RWMutex
	conns		map[*Connection]bool
	srv			*http.Server
	closed		bool
	handlers	sync.WaitGroup 	// hijacked connections, http.Server doesn't track them
}

func NewServer(addr string, token string, handler *Handler) *Server {
	return &Server{
		log: 		slog.With("src", "Bridge"),
		addr: 		addr,
		token: 		token,
		handler: 	handler,
		conns: 		make(map[*Connection]bool),
	}
}

func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Blocks until the server stops. Returns nil after Shutdown.
func (s *Server) Start() error {
	s.mu.Lock()
	s.srv = &http.Server{Addr: s.addr, Handler: s.Mux(), ReadHeaderTimeout: 10 * time.Second}
	srv := s.srv
	s.mu.Unlock()

	s.log.Info("WebSocket server starting", "addr", s.addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) { return nil }
	return err
}

// Stops accepting, closes every connection and waits for their handlers, so nothing touches the
// FS after Shutdown returns nil.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	srv := s.srv
	s.mu.Unlock()

	var err error
	if srv != nil { err = srv.Shutdown(ctx) }

	s.mu.Lock()
	for conn := range s.conns {
		conn.conn.Close()
	}
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(drained)
	}()
	select {
	case <- drained:
	case <- ctx.Done():
		return ctx.Err()
	}
	return err
}

func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) authorized(r *http.Request) bool {
	if s.token == "" { return true }
	got := r.Header.Get(TOKEN_HEADER)
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) == 1
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.log.Warn("Rejected connection, bad token", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.handlers.Add(1)
	s.mu.Unlock()
	defer s.handlers.Done()

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response (403 for a foreign origin)
		s.log.Warn("Failed to upgrade connection", "remote", r.RemoteAddr, "origin", r.Header.Get("Origin"), "error", err)
		return
	}

	conn := &Connection{
		conn:   ws,
		sendCh: make(chan []byte, SEND_QUEUE),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ws.Close()
		return
	}
	s.conns[conn] = true
	s.mu.Unlock()
	s.log.Info("Client connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	go conn.writePump(s.log)
	conn.readPump(ctx, s)

	// in-flight requests see a cancelled ctx, their replies are dropped
	cancel()
	conn.pending.Wait()

	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()

	close(conn.sendCh)
	ws.Close()
	s.log.Info("Client disconnected", "remote", r.RemoteAddr)
}

func (c *Connection) readPump(ctx context.Context, s *Server) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.log.Error("Read error", "error", err)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		req, err := DecodeRequest(data)
		if err != nil {
			s.log.Warn("Dropping malformed request", "error", err)
			continue
		}

		// Requests run concurrently, the loop underneath orders nothing either.
		c.pending.Add(1)
		go func() {
			defer c.pending.Done()
			res := s.handler.Handle(ctx, req)
			out, err := EncodeResponse(res)
			if err != nil {
				s.log.Error("Encode response", "tag", req.Tag, "error", err)
				return
			}
			if err := c.Send(ctx, out); err != nil {
				s.log.Warn("Reply dropped", "tag", req.Tag, "op", req.Op, "error", err)
			}
		}()
	}
}

func (c *Connection) writePump(log *slog.Logger) {
	for data := range c.sendCh {
		err := c.conn.WriteMessage(websocket.BinaryMessage, data)
		if err != nil {
			log.Error("Write error", "error", err)
			// keep draining so senders never block on a dead peer
			for range c.sendCh {}
			return
		}
	}
}

// Waits for room in the send queue. Only valid while serving a request.
func (c *Connection) Send(ctx context.Context, data []byte) error {
	select {
	case c.sendCh <- data:
		return nil
	case <- ctx.Done():
		return fmt.Errorf("send: %w", errConnClosed)
	}
}
