package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	// ErrClosed is returned by Send and Receive once the connection is closed.
	ErrClosed = errors.New("connection closed")

	// ErrSendQueueFull is returned when a frame is dropped because the peer is
	// not draining its queue fast enough.
	ErrSendQueueFull = errors.New("send queue full")
)

// Conn is one end of a message-oriented link between two actors.
//
// Send never blocks: it enqueues the frame for a writer goroutine and fails
// fast when the queue is full or the link is closed. Receive blocks and must
// only be called from a single goroutine.
type Conn interface {
	ID() string
	Send(data []byte) error
	Receive() ([]byte, error)
	Close() error
	Done() <-chan struct{}
}

// NewID returns a fresh connection id.
func NewID() string {
	return gonanoid.Must(12)
}

// Options tunes a websocket-backed Conn.
type Options struct {
	SendQueue      int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

func (o Options) withDefaults() Options {
	if o.SendQueue <= 0 {
		o.SendQueue = 64
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 30 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 1 << 20
	}
	return o
}

type socket struct {
	id   string
	ws   *websocket.Conn
	opts Options

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// New wraps an established websocket and starts its writer goroutine.
func New(ws *websocket.Conn, opts Options) Conn {
	opts = opts.withDefaults()
	s := &socket{
		id:   NewID(),
		ws:   ws,
		opts: opts,
		send: make(chan []byte, opts.SendQueue),
		done: make(chan struct{}),
	}

	ws.SetReadLimit(opts.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	go s.writeLoop()
	return s
}

// Dial opens a websocket to url and wraps it.
func Dial(ctx context.Context, url string, header http.Header, opts Options) (Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(ws, opts), nil
}

func (s *socket) ID() string { return s.id }

func (s *socket) Done() <-chan struct{} { return s.done }

func (s *socket) Send(data []byte) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.send <- data:
		return nil
	case <-s.done:
		return ErrClosed
	default:
		return ErrSendQueueFull
	}
}

func (s *socket) Receive() ([]byte, error) {
	for {
		kind, data, err := s.ws.ReadMessage()
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		// Any inbound frame proves liveness.
		_ = s.ws.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		return data, nil
	}
}

func (s *socket) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	return nil
}

func (s *socket) writeLoop() {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer func() {
		ticker.Stop()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteWait))
		_ = s.ws.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case data := <-s.send:
			_ = s.ws.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				_ = s.Close()
				return
			}
		case <-ticker.C:
			if err := s.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait)); err != nil {
				_ = s.Close()
				return
			}
		}
	}
}
