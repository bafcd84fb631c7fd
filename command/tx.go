package command

import (
	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/resp"
)

// TxAttr is the session attribute holding the commands queued since MULTI.
const TxAttr = "tx"

func registerTransactions(t *Table) {
	t.Register(&Command{Name: "MULTI", Handler: multi, ReadOnly: true, TxIgnore: true})
	t.Register(&Command{Name: "EXEC", Handler: exec, ReadOnly: true, TxIgnore: true})
	t.Register(&Command{Name: "DISCARD", Handler: discard, ReadOnly: true, TxIgnore: true})
}

// InTx reports whether s is between MULTI and EXEC.
func InTx(s Session) bool {
	_, ok := s.Attr(TxAttr)
	return ok
}

// Enqueue adds req to the session's transaction.
func Enqueue(s Session, req *Request) {
	v, _ := s.Attr(TxAttr)
	queued, _ := v.([]*Request)
	s.SetAttr(TxAttr, append(queued, req))
}

func multi(db *data.Database, req *Request) resp.Token {
	if InTx(req.Session) {
		return resp.Error("ERR MULTI calls can not be nested")
	}
	req.Session.SetAttr(TxAttr, []*Request(nil))
	return resp.OK
}

// exec runs the queued commands in order. Each goes through the full pipeline,
// so writes are gated, replicated and logged one by one.
func exec(db *data.Database, req *Request) resp.Token {
	v, ok := req.Session.Attr(TxAttr)
	if !ok {
		return resp.Error("ERR EXEC without MULTI")
	}
	req.Session.RemoveAttr(TxAttr)
	queued, _ := v.([]*Request)
	results := make([]resp.Token, 0, len(queued))
	for _, q := range queued {
		results = append(results, req.Server.Execute(q))
	}
	return resp.Array(results...)
}

func discard(db *data.Database, req *Request) resp.Token {
	if !InTx(req.Session) {
		return resp.Error("ERR DISCARD without MULTI")
	}
	req.Session.RemoveAttr(TxAttr)
	return resp.OK
}
