package server

import (
	"encoding/json"
	"net"
	"sync"

	"chatrelay/internal/protocol"
)

// Session represents one TCP connection.
//
// Two goroutines run per session:
//
//	readPump  – reads newline-delimited JSON from the TCP connection and
//	            dispatches each request to the Server.
//	writePump – drains the send channel and writes frames to the TCP
//	            connection, so all outbound writes are serialized and a
//	            slow peer never blocks a handler.
//
// Before a successful login the session is unbound; afterwards it is bound
// to exactly one username.  Registration alone does not bind.
type Session struct {
	sid  string // unique connection identifier
	srv  *Server
	conn net.Conn
	send chan []byte // outbound newline-terminated JSON frames

	done      chan struct{}
	closeOnce sync.Once

	// Bound identity.  Protected by mu because readPump sets it on login
	// and rename, and router goroutines may read it.
	mu       sync.RWMutex
	username string
}

func newSession(sid string, conn net.Conn, srv *Server) *Session {
	return &Session{
		sid:  sid,
		srv:  srv,
		conn: conn,
		send: make(chan []byte, srv.cfg.Limits.SendBuffer),
		done: make(chan struct{}),
	}
}

func (s *Session) user() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

func (s *Session) bound() bool {
	return s.user() != ""
}

func (s *Session) bind(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.username = username
}

// readPump reads frames line by line and dispatches them.  Lines that fail
// to parse are discarded without tearing down the connection.  When the
// stream ends the server's disconnect hook runs.
func (s *Session) readPump() {
	defer s.srv.disconnect(s)

	dec := protocol.NewDecoder(s.conn)
	for {
		line, err := dec.Next()
		if err != nil {
			return
		}
		var req protocol.Request
		if err := json.Unmarshal(line, &req); err != nil {
			continue
		}
		s.srv.dispatch(s, &req)
	}
}

// writePump drains the send channel and writes each frame to the TCP
// connection.  It exits on the first write error or when the session is
// closed.
func (s *Session) writePump() {
	defer s.conn.Close()

	for {
		select {
		case data := <-s.send:
			if _, err := s.conn.Write(data); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// queueOut serializes v and queues it for delivery.  Delivery is
// best-effort: when the session is closed or its buffer is full the frame
// is dropped and queueOut reports false.
func (s *Session) queueOut(v any) bool {
	data, err := protocol.Encode(v)
	if err != nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// close shuts the session down exactly once.  Closing the connection also
// unblocks readPump.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
}
