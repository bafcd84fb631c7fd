package command

import (
	"strconv"

	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/resp"
)

func registerHashes(t *Table) {
	t.Register(&Command{Name: "HSET", Handler: hset, MinParams: 3, Type: data.TypeHash})
	t.Register(&Command{Name: "HGET", Handler: hget, ReadOnly: true, MinParams: 2, Type: data.TypeHash})
	t.Register(&Command{Name: "HDEL", Handler: hdel, MinParams: 2, Type: data.TypeHash})
	t.Register(&Command{Name: "HEXISTS", Handler: hexists, ReadOnly: true, MinParams: 2, Type: data.TypeHash})
	t.Register(&Command{Name: "HGETALL", Handler: hgetall, ReadOnly: true, MinParams: 1, Type: data.TypeHash})
	t.Register(&Command{Name: "HKEYS", Handler: hkeys, ReadOnly: true, MinParams: 1, Type: data.TypeHash})
	t.Register(&Command{Name: "HVALS", Handler: hvals, ReadOnly: true, MinParams: 1, Type: data.TypeHash})
	t.Register(&Command{Name: "HLEN", Handler: hlen, ReadOnly: true, MinParams: 1, Type: data.TypeHash})
	t.Register(&Command{Name: "HINCRBY", Handler: hincrby, MinParams: 3, Type: data.TypeHash})
}

func hset(db *data.Database, req *Request) resp.Token {
	if req.Length()%2 != 1 {
		return ErrArity(req.Command)
	}
	added := 0
	_, ok := update(db, req.Param(0), data.EmptyHash, func(cur data.Value) data.Value {
		h := cur.Hash()
		for i := 1; i+1 < req.Length(); i += 2 {
			if _, ok := h[req.Param(i)]; !ok {
				added++
			}
			h[req.Param(i)] = req.Param(i + 1)
		}
		return data.HashValue(h)
	})
	if !ok {
		return ErrWrongType
	}
	return resp.Integer(int64(added))
}

func hget(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptyHash)
	if !ok {
		return ErrWrongType
	}
	s, found := v.HashGet(req.Param(1))
	if !found {
		return resp.Null()
	}
	return resp.Bulk(s)
}

func hdel(db *data.Database, req *Request) resp.Token {
	removed := 0
	_, ok := update(db, req.Param(0), data.EmptyHash, func(cur data.Value) data.Value {
		h := cur.Hash()
		for _, f := range req.Params[1:] {
			if _, ok := h[f]; ok {
				delete(h, f)
				removed++
			}
		}
		return data.HashValue(h)
	})
	if !ok {
		return ErrWrongType
	}
	return resp.Integer(int64(removed))
}

func hexists(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptyHash)
	if !ok {
		return ErrWrongType
	}
	_, found := v.HashGet(req.Param(1))
	return resp.Bool(found)
}

func hgetall(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptyHash)
	if !ok {
		return ErrWrongType
	}
	var items []string
	for _, f := range v.HashFields() {
		val, _ := v.HashGet(f)
		items = append(items, f, val)
	}
	return resp.BulkArray(items...)
}

func hkeys(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptyHash)
	if !ok {
		return ErrWrongType
	}
	return resp.BulkArray(v.HashFields()...)
}

func hvals(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptyHash)
	if !ok {
		return ErrWrongType
	}
	var vals []string
	for _, f := range v.HashFields() {
		val, _ := v.HashGet(f)
		vals = append(vals, val)
	}
	return resp.BulkArray(vals...)
}

func hlen(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptyHash)
	if !ok {
		return ErrWrongType
	}
	return resp.Integer(int64(v.Len()))
}

func hincrby(db *data.Database, req *Request) resp.Token {
	delta, ok := parseInt(req.Param(2))
	if !ok {
		return ErrNotInteger
	}
	var result int64
	failed := false
	_, ok = update(db, req.Param(0), data.EmptyHash, func(cur data.Value) data.Value {
		h := cur.Hash()
		n := int64(0)
		if s, found := h[req.Param(1)]; found {
			var err error
			if n, err = strconv.ParseInt(s, 10, 64); err != nil {
				failed = true
				return cur
			}
		}
		result = n + delta
		h[req.Param(1)] = strconv.FormatInt(result, 10)
		return data.HashValue(h)
	})
	if !ok {
		return ErrWrongType
	}
	if failed {
		return resp.Error("ERR hash value is not an integer")
	}
	return resp.Integer(result)
}
