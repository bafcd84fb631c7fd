package server

import (
	"runtime/debug"
	"time"

	"github.com/tchajed/tinydb/command"
	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/replication"
	"github.com/tchajed/tinydb/resp"
)

// Command pipeline
//
// Every request goes through the same steps:
//
//  1. look up the command; unknown commands get an error reply
//  2. the read-only gate: a slave rejects writes, except on the replication
//     session
//  3. arity and key type checks
//  4. inside MULTI, queue the request and reply QUEUED
//  5. run the handler; a panic is logged and becomes ERR internal error
//  6. a successful write is queued for the slaves and the command log, in
//     the form the handler chose with Request.ReplayAs

// Execute runs req through the pipeline and records its metrics. It serves
// client sessions, the replication session and commands queued by EXEC.
func (s *Server) Execute(req *command.Request) resp.Token {
	start := time.Now()
	reply, deferred := s.execute(req)
	if deferred {
		// counted when EXEC runs it
		return reply
	}
	name := req.Command
	if _, ok := s.table.Lookup(name); !ok {
		// keep arbitrary client input out of metric labels
		name = "unknown"
	}
	s.metrics.CommandDone(name, reply.IsError(), time.Since(start))
	return reply
}

// execute runs req. It reports whether req was queued in a transaction
// instead of run.
func (s *Server) execute(req *command.Request) (resp.Token, bool) {
	cmd, ok := s.table.Lookup(req.Command)
	if !ok {
		return command.ErrUnknownCommand(req.Command), false
	}
	if !cmd.ReadOnly && !s.IsMaster() && !bypassesGate(req.Session) {
		return command.ErrReadOnly, false
	}
	index := req.Session.CurrentDB()
	db := s.Database(index)
	if reply, ok := cmd.Check(db, req); !ok {
		return reply, false
	}
	if !cmd.TxIgnore && command.InTx(req.Session) {
		command.Enqueue(req.Session, req)
		return resp.Queued, true
	}
	if cmd.ReadOnly {
		return s.run(cmd, db, req), false
	}

	s.barrier.RLock()
	defer s.barrier.RUnlock()
	reply := s.run(cmd, db, req)
	if !reply.IsError() {
		name, params := req.Replay()
		r := replication.Record{DB: index, Command: name, Params: params}
		s.master.Append(r)
		if s.persist != nil {
			s.persist.Append(r)
		}
	}
	return reply, false
}

func bypassesGate(sess command.Session) bool {
	ss, ok := sess.(*Session)
	return ok && ss.bypass
}

func (s *Server) run(cmd *command.Command, db *data.Database, req *command.Request) (reply resp.Token) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("command failed",
				"command", req.Command,
				"params", req.Params,
				"session", req.Session.ID(),
				"panic", r,
				"stack", string(debug.Stack()))
			reply = command.ErrInternal
		}
	}()
	return cmd.Handler(db, req)
}
