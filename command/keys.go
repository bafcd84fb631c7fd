package command

import (
	"time"

	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/resp"
	"github.com/tidwall/match"
)

func registerKeys(t *Table) {
	t.Register(&Command{Name: "DEL", Handler: del, MinParams: 1})
	t.Register(&Command{Name: "EXISTS", Handler: exists, ReadOnly: true, MinParams: 1})
	t.Register(&Command{Name: "EXPIRE", Handler: expire(time.Second), MinParams: 2})
	t.Register(&Command{Name: "PEXPIRE", Handler: expire(time.Millisecond), MinParams: 2})
	t.Register(&Command{Name: "PERSIST", Handler: persist, MinParams: 1})
	t.Register(&Command{Name: "TTL", Handler: ttl(time.Second), ReadOnly: true, MinParams: 1})
	t.Register(&Command{Name: "PTTL", Handler: ttl(time.Millisecond), ReadOnly: true, MinParams: 1})
	t.Register(&Command{Name: "TYPE", Handler: typeOf, ReadOnly: true, MinParams: 1})
	t.Register(&Command{Name: "KEYS", Handler: keys, ReadOnly: true, MinParams: 1})
	t.Register(&Command{Name: "RENAME", Handler: rename, MinParams: 2})
}

func del(db *data.Database, req *Request) resp.Token {
	n := 0
	for _, k := range req.Params {
		if _, ok := db.Remove(k); ok {
			n++
		}
	}
	return resp.Integer(int64(n))
}

func exists(db *data.Database, req *Request) resp.Token {
	n := 0
	for _, k := range req.Params {
		if db.ContainsKey(k) {
			n++
		}
	}
	return resp.Integer(int64(n))
}

// expire sets a key's time to live. A ttl of zero or less expires the key
// immediately.
func expire(unit time.Duration) Handler {
	return func(db *data.Database, req *Request) resp.Token {
		n, ok := parseInt(req.Param(1))
		if !ok {
			return ErrNotInteger
		}
		key := data.SafeKeyTTL(req.Param(0), time.Duration(n)*unit, db.Now())
		_, found := db.OverrideKey(key)
		return resp.Bool(found)
	}
}

func persist(db *data.Database, req *Request) resp.Token {
	k, ok := db.GetKey(req.Param(0))
	if !ok || !k.HasExpiry() {
		return resp.Integer(0)
	}
	_, ok = db.OverrideKey(k.WithoutExpiry())
	return resp.Bool(ok)
}

func ttl(unit time.Duration) Handler {
	return func(db *data.Database, req *Request) resp.Token {
		k, ok := db.GetKey(req.Param(0))
		if !ok {
			return resp.Integer(data.ExpiredTTL)
		}
		ms := k.TimeToLive(db.Now())
		if ms < 0 || unit == time.Millisecond {
			return resp.Integer(ms)
		}
		return resp.Integer((ms + 500) / 1000)
	}
}

func typeOf(db *data.Database, req *Request) resp.Token {
	v, ok := db.Get(req.Param(0))
	if !ok {
		return resp.Simple(data.TypeNone.String())
	}
	return resp.Simple(v.Type().String())
}

func keys(db *data.Database, req *Request) resp.Token {
	pattern := req.Param(0)
	var names []string
	for _, k := range db.Keys() {
		if match.Match(k.Name, pattern) {
			names = append(names, k.Name)
		}
	}
	return resp.BulkArray(names...)
}

func rename(db *data.Database, req *Request) resp.Token {
	if !db.Rename(req.Param(0), req.Param(1)) {
		return ErrNoSuchKey
	}
	return resp.OK
}
