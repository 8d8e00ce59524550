package zncontrol

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Session is one duplex control-channel connection: a gateway/site
// pairing carrying JSON command, response, and event frames over an
// upgraded HTTP connection. Command handling runs synchronously in the
// read loop, one frame at a time, matching a cooperative single-logical-
// event-loop-per-node scheduling model.
type Session struct {
	conn       *websocket.Conn
	writeMu    sync.Mutex
	perms      PermissionSet
	dispatcher *Dispatcher
	hub        *Hub

	pendingMu sync.Mutex
	pending   map[int]chan clientReply
	nextID    int32

	closeOnce sync.Once
	done      chan struct{}
}

type clientReply struct {
	result any
	err    error
}

// NewSession wraps an already-upgraded websocket connection.
func NewSession(conn *websocket.Conn, perms PermissionSet, dispatcher *Dispatcher, hub *Hub) *Session {
	return &Session{
		conn:       conn,
		perms:      perms,
		dispatcher: dispatcher,
		hub:        hub,
		pending:    make(map[int]chan clientReply),
		done:       make(chan struct{}),
	}
}

// Perms returns the session's permission set.
func (s *Session) Perms() PermissionSet { return s.perms }

// Run reads frames until the connection closes or errors, dispatching
// client commands and resolving server-initiated continuations. It
// returns the terminal read error (nil on a clean close).
func (s *Session) Run() error {
	defer s.Close()
	for {
		var raw map[string]any
		if err := s.conn.ReadJSON(&raw); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		cmd, _ := raw["cmd"].(string)
		if cmd == "response" {
			s.resolveContinuation(raw)
			continue
		}
		s.handleCommand(raw)
	}
}

func (s *Session) handleCommand(raw map[string]any) {
	id := intField(raw["id"])
	cmd, _ := raw["cmd"].(string)
	params, _ := raw["params"].(map[string]any)

	result, err := s.dispatcher.Dispatch(s, cmd, params)
	if err != nil {
		_ = s.send(newServerResponse(id, map[string]any{"error": errMessage(err)}))
		return
	}
	_ = s.send(newServerResponse(id, result))
}

func (s *Session) resolveContinuation(raw map[string]any) {
	to := intField(raw["to"])
	s.pendingMu.Lock()
	ch, ok := s.pending[to]
	delete(s.pending, to)
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	ch <- clientReply{result: raw["result"]}
}

// RequestClient sends a server-initiated command and suspends until the
// client answers with a matching {"cmd":"response","to":id} frame: the
// server looks up a waiting callback keyed by id, invokes it, and resumes
// the original flow.
func (s *Session) RequestClient(ctx context.Context, cmd string, params map[string]any) (any, error) {
	id := int(atomic.AddInt32(&s.nextID, 1))
	ch := make(chan clientReply, 1)

	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
	}()

	if err := s.send(ServerEvent{Cmd: cmd, Params: params, ID: id}); err != nil {
		return nil, err
	}

	select {
	case reply := <-ch:
		return reply.result, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.done:
		return nil, errors.New("zncontrol: session closed")
	}
}

// Emit broadcasts cmd/params to this session only, bypassing the hub —
// used for events scoped to a single session rather than a whole channel.
func (s *Session) Emit(cmd string, params map[string]any) error {
	return s.sendEvent(cmd, params)
}

func (s *Session) sendEvent(cmd string, params map[string]any) error {
	return s.send(ServerEvent{Cmd: cmd, Params: params})
}

func (s *Session) send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Close terminates the session, failing any in-flight RequestClient calls
// and leaving every hub channel it had joined.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.hub != nil {
			s.hub.Leave(s)
		}
		err = s.conn.Close()
	})
	return err
}

func errMessage(err error) string {
	var pe *PermissionError
	if errors.As(err, &pe) {
		return errPermissionDenied
	}
	return err.Error()
}

func intField(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
