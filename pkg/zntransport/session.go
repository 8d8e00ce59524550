package zntransport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"zeronode/pkg/zncodec"
)

// ErrHandshakeRequired is returned when a verb other than "handshake" is
// attempted before both sides of a Session have exchanged handshakes.
var ErrHandshakeRequired = errors.New("zntransport: handshake required")

// ErrSessionClosed is returned by operations on a Session whose underlying
// connection has been torn down.
var ErrSessionClosed = errors.New("zntransport: session closed")

// ErrTransportTimeout is returned when a request's deadline elapses before
// a matching response arrives (TransportTimeout).
var ErrTransportTimeout = errors.New("zntransport: request timed out")

// RequestHandler processes an inbound Request the remote peer sent on this
// Session and returns the body to reply with.
type RequestHandler func(req zncodec.Request) (map[string]any, error)

// Session is a single peer connection carrying length-prefixed MessagePack
// frames. It owns the request-id allocator and the pending-response
// correlator; handshake-verb gating; and dispatches inbound requests to a
// caller-supplied handler.
type Session struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu sync.Mutex

	nextReqID uint32

	pendingMu sync.Mutex
	pending   map[uint32]chan pendingResult

	handshakeMu       sync.Mutex
	handshakeSent     bool
	handshakeReceived bool
	remoteHandshake   map[string]any

	handler RequestHandler

	closeOnce sync.Once
	done      chan struct{}
}

type pendingResult struct {
	body map[string]any
	err  error
}

// NewSession wraps conn and starts its read loop. handler may be nil if this
// session only ever originates requests (it will still receive responses,
// but any inbound request from the peer gets an "unsupported" error back).
func NewSession(conn net.Conn) *Session {
	s := &Session{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		pending: make(map[uint32]chan pendingResult),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s
}

// SetHandler installs the inbound-request handler. Must be called before
// the peer sends its first request, so callers typically set it
// immediately after NewSession/DialSession.
func (s *Session) SetHandler(h RequestHandler) {
	s.handler = h
}

// RemoteAddr returns the underlying connection's remote address string.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Request sends cmd with params, allocates the next request id, and blocks
// until the matching response arrives, ctx is canceled, or the session
// closes. cmd values other than "handshake" are rejected with
// ErrHandshakeRequired until HandshakeComplete() is true
func (s *Session) Request(ctx context.Context, cmd string, params map[string]any) (map[string]any, error) {
	if cmd != "handshake" && !s.HandshakeComplete() {
		return nil, ErrHandshakeRequired
	}

	reqID := atomic.AddUint32(&s.nextReqID, 1)
	ch := make(chan pendingResult, 1)

	s.pendingMu.Lock()
	s.pending[reqID] = ch
	s.pendingMu.Unlock()

	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, reqID)
		s.pendingMu.Unlock()
	}()

	req := zncodec.Request{Cmd: cmd, ReqID: reqID, Params: params}
	if err := s.writeRequest(req); err != nil {
		return nil, err
	}
	if cmd == "handshake" {
		s.handshakeMu.Lock()
		s.handshakeSent = true
		s.handshakeMu.Unlock()
	}

	select {
	case res := <-ch:
		return res.body, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: cmd %q req_id %d", ErrTransportTimeout, cmd, reqID)
		}
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrSessionClosed
	}
}

func (s *Session) writeRequest(req zncodec.Request) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := zncodec.WriteRequest(s.conn, req); err != nil {
		return fmt.Errorf("zntransport: write request: %w", err)
	}
	return nil
}

// Reply sends a Response addressed to reqID (the requesting peer's req_id).
func (s *Session) Reply(reqID uint32, body map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := zncodec.WriteResponse(s.conn, zncodec.Response{To: reqID, Body: body}); err != nil {
		return fmt.Errorf("zntransport: write response: %w", err)
	}
	return nil
}

// HandshakeComplete reports whether both a handshake has been sent by this
// side and one has been received from the remote side.
func (s *Session) HandshakeComplete() bool {
	s.handshakeMu.Lock()
	defer s.handshakeMu.Unlock()
	return s.handshakeSent && s.handshakeReceived
}

// RemoteHandshake returns the remote's handshake payload, if one has been
// received yet.
func (s *Session) RemoteHandshake() (map[string]any, bool) {
	s.handshakeMu.Lock()
	defer s.handshakeMu.Unlock()
	return s.remoteHandshake, s.remoteHandshake != nil
}

func (s *Session) readLoop() {
	defer s.Close()
	for {
		frame, err := zncodec.ReadFrame(s.reader)
		if err != nil {
			s.failAllPending(fmt.Errorf("zntransport: read frame: %w", err))
			return
		}

		switch {
		case frame.Response != nil:
			s.dispatchResponse(*frame.Response)
		case frame.Request != nil:
			s.dispatchRequest(*frame.Request)
		}
	}
}

func (s *Session) dispatchResponse(resp zncodec.Response) {
	s.pendingMu.Lock()
	ch, ok := s.pending[resp.To]
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	errVal, _ := resp.Body["error"].(string)
	var err error
	if errVal != "" {
		err = errors.New(errVal)
	}
	ch <- pendingResult{body: resp.Body, err: err}
}

func (s *Session) dispatchRequest(req zncodec.Request) {
	if req.Cmd == "handshake" {
		s.handshakeMu.Lock()
		s.handshakeReceived = true
		s.remoteHandshake = req.Params
		s.handshakeMu.Unlock()
	} else if !s.HandshakeComplete() {
		_ = s.Reply(req.ReqID, map[string]any{"error": ErrHandshakeRequired.Error()})
		return
	}

	if s.handler == nil {
		_ = s.Reply(req.ReqID, map[string]any{"error": "unsupported"})
		return
	}

	body, err := s.handler(req)
	if err != nil {
		_ = s.Reply(req.ReqID, map[string]any{"error": err.Error()})
		return
	}
	_ = s.Reply(req.ReqID, body)
}

func (s *Session) failAllPending(err error) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	for id, ch := range s.pending {
		ch <- pendingResult{err: err}
		delete(s.pending, id)
	}
}

// Close tears down the underlying connection and wakes any blocked Request
// calls. Safe to call multiple times.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

var _ io.Closer = (*Session)(nil)
