package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// Remote is the calling side of a bridge. Calls may be issued from many goroutines.
type Remote struct {
	log			*slog.Logger
	conn		*websocket.Conn

	wmu			sync.Mutex // gorilla allows one concurrent writer

	mu			sync.Mutex
	nextTag		uint32
	waiting		map[uint32]chan *Response
	err			error // set once the read side dies
	done		chan struct{}
}

// Accepts ws:// and wss:// urls, appending /ws when the path is missing.
func NormalizeUrl(url string) (string, error) {
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return "", fmt.Errorf("url must start with ws:// or wss://, got: %s", url)
	}
	if !strings.HasSuffix(url, "/ws") {
		url = strings.TrimSuffix(url, "/") + "/ws"
	}
	return url, nil
}

// token is sent in TOKEN_HEADER when not empty.
func Dial(ctx context.Context, url string, token string) (*Remote, error) {
	url, err := NormalizeUrl(url)
	if err != nil { return nil, err }

	var header http.Header
	if token != "" {
		header = http.Header{TOKEN_HEADER: []string{token}}
	}

	log := slog.With("src", "Remote")
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			log.Error("WebSocket dial failed", "status", resp.Status, "statusCode", resp.StatusCode)
			return nil, fmt.Errorf("failed to connect: %w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	log.Debug("WebSocket connected", "url", url)

	r := &Remote{
		log: 		log,
		conn: 		conn,
		waiting: 	make(map[uint32]chan *Response),
		done: 		make(chan struct{}),
	}
	go r.readLoop()
	return r, nil
}

func (r *Remote) Close() error {
	r.wmu.Lock()
	r.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	r.wmu.Unlock()
	err := r.conn.Close()
	<- r.done
	return err
}

// Sends req with a fresh tag and waits for the matching response. A failed operation is not an
// error here, check Response.Err.
func (r *Remote) Call(ctx context.Context, req Request) (*Response, error) {
	ch := make(chan *Response, 1)

	r.mu.Lock()
	if r.err != nil {
		err := r.err
		r.mu.Unlock()
		return nil, err
	}
	r.nextTag++
	req.Tag = r.nextTag
	r.waiting[req.Tag] = ch
	r.mu.Unlock()

	forget := func() {
		r.mu.Lock()
		delete(r.waiting, req.Tag)
		r.mu.Unlock()
	}

	data, err := EncodeRequest(&req)
	if err != nil {
		forget()
		return nil, err
	}

	r.wmu.Lock()
	err = r.conn.WriteMessage(websocket.BinaryMessage, data)
	r.wmu.Unlock()
	if err != nil {
		forget()
		return nil, fmt.Errorf("failed to send %v: %w", req.Op, err)
	}

	select {
	case res, ok := <- ch:
		if !ok {
			r.mu.Lock()
			err := r.err
			r.mu.Unlock()
			return nil, err
		}
		return res, nil
	case <- ctx.Done():
		forget()
		return nil, ctx.Err()
	}
}

func (r *Remote) readLoop() {
	defer close(r.done)
	for {
		tp, data, err := r.conn.ReadMessage()
		if err != nil {
			r.shutdown(fmt.Errorf("failed to read message: %w", err))
			return
		}
		if tp != websocket.BinaryMessage {
			r.log.Warn("received non-binary message", "type", tp)
			continue
		}
		res, err := DecodeResponse(data)
		if err != nil {
			r.log.Warn("dropping malformed response", "error", err)
			continue
		}

		r.mu.Lock()
		ch, ok := r.waiting[res.Tag]
		delete(r.waiting, res.Tag)
		r.mu.Unlock()
		if !ok {
			// caller gave up already
			continue
		}
		ch <- res
	}
}

// Fails every outstanding call.
func (r *Remote) shutdown(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	for tag, ch := range r.waiting {
		close(ch)
		delete(r.waiting, tag)
	}
}
