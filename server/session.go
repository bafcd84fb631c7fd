package server

import (
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/tchajed/tinydb/command"
	"github.com/tchajed/tinydb/resp"
)

// requestQueueSize bounds the commands a client may have in flight; the
// reader blocks once it is full.
const requestQueueSize = 1024

// Session is one client connection.
//
// A reader goroutine parses commands and enqueues them; a single worker
// executes them in order and writes the replies, so replies always follow
// request order. Session.Send writes out of band (pub/sub messages,
// replication records) under the same write lock.
//
// Closing the session stops both goroutines. Disconnect cleanup runs on the
// worker after its last command, so it never races a running handler.
type Session struct {
	id     string
	server *Server
	conn   net.Conn
	// bypass skips the read-only gate; set only for the replication session.
	bypass bool

	wmu sync.Mutex
	w   *resp.Writer

	requests  chan queued
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	db atomic.Int32

	amu   sync.Mutex
	attrs map[string]interface{}
}

// queued is one entry in the session's FIFO: a request to execute, or, when
// req is nil, a reply to write as is.
type queued struct {
	req   *command.Request
	reply resp.Token
}

func newSession(server *Server, id string, conn net.Conn) *Session {
	var w io.Writer = io.Discard
	if conn != nil {
		w = conn
	}
	return &Session{
		id:       id,
		server:   server,
		conn:     conn,
		w:        resp.NewWriter(w),
		requests: make(chan queued, requestQueueSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		attrs:    make(map[string]interface{}),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) CurrentDB() int {
	return int(s.db.Load())
}

func (s *Session) SetCurrentDB(index int) {
	s.db.Store(int32(index))
}

func (s *Session) Attr(name string) (interface{}, bool) {
	s.amu.Lock()
	defer s.amu.Unlock()
	v, ok := s.attrs[name]
	return v, ok
}

func (s *Session) SetAttr(name string, v interface{}) {
	s.amu.Lock()
	defer s.amu.Unlock()
	s.attrs[name] = v
}

func (s *Session) RemoveAttr(name string) {
	s.amu.Lock()
	defer s.amu.Unlock()
	delete(s.attrs, name)
}

// Send writes t immediately.
func (s *Session) Send(t resp.Token) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.w.WriteToken(t); err != nil {
		return err
	}
	return s.w.Flush()
}

// reply writes a command's reply, flushing only when no further command is
// waiting so that pipelined replies share a write.
func (s *Session) reply(t resp.Token) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.w.WriteToken(t); err != nil {
		return err
	}
	if len(s.requests) > 0 {
		return nil
	}
	return s.w.Flush()
}

func (s *Session) flush() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.w.Flush()
}

// enqueue hands an entry to the worker. It reports false once the session
// is closed.
func (s *Session) enqueue(q queued) bool {
	select {
	case s.requests <- q:
		return true
	case <-s.done:
		return false
	}
}

// serve reads commands until the connection fails, then waits for the worker
// to finish. A malformed frame gets an error reply in its place in the queue
// and reading continues with the next line.
func (s *Session) serve() {
	go s.work()
	defer func() {
		s.Close()
		<-s.stopped
	}()
	r := resp.NewReader(s.conn)
	for {
		args, err := r.ReadCommand()
		var q queued
		switch {
		case err == nil:
			q.req = command.NewRequest(s.server, s, args)
		case resp.IsProtocolError(err):
			s.server.log.Debug("protocol error", "session", s.id, "err", err)
			q.reply = resp.Error("ERR " + err.Error())
		default:
			return
		}
		if !s.enqueue(q) {
			return
		}
	}
}

// work executes queued commands in order. Commands still queued at
// disconnect are discarded. Once it stops, the session is removed from the
// server.
func (s *Session) work() {
	defer func() {
		s.server.disconnected(s)
		close(s.stopped)
	}()
	for {
		select {
		case <-s.done:
			return
		case q := <-s.requests:
			select {
			case <-s.done:
				return
			default:
			}
			reply := q.reply
			if q.req != nil {
				reply = s.server.Execute(q.req)
			}
			if reply.Kind != resp.KindNoReply {
				if err := s.reply(reply); err != nil {
					s.server.log.Debug("write failed", "session", s.id, "err", err)
					s.Close()
					return
				}
			}
			if q.req != nil && q.req.IsExit() {
				s.flush()
				s.Close()
				return
			}
		}
	}
}

// Close disconnects the session. Its worker finishes the command it is
// running, if any, and then cleans up.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}
