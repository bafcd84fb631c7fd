package command

import (
	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/resp"
)

func registerConnection(t *Table) {
	t.Register(&Command{Name: "PING", Handler: ping, ReadOnly: true})
	t.Register(&Command{Name: "ECHO", Handler: echo, ReadOnly: true, MinParams: 1})
	t.Register(&Command{Name: "QUIT", Handler: quit, ReadOnly: true, TxIgnore: true})
	t.Register(&Command{Name: "SELECT", Handler: selectDB, ReadOnly: true, MinParams: 1})
}

func ping(db *data.Database, req *Request) resp.Token {
	if req.Length() > 0 {
		return resp.Bulk(req.Param(0))
	}
	return resp.Pong
}

func echo(db *data.Database, req *Request) resp.Token {
	return resp.Bulk(req.Param(0))
}

func quit(db *data.Database, req *Request) resp.Token {
	req.Exit()
	return resp.OK
}

func selectDB(db *data.Database, req *Request) resp.Token {
	n, ok := parseInt(req.Param(0))
	if !ok {
		return ErrNotInteger
	}
	if n < 0 || int(n) >= req.Server.NumDatabases() {
		return ErrDBIndex
	}
	req.Session.SetCurrentDB(int(n))
	return resp.OK
}
