package command

import (
	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/resp"
)

func registerLists(t *Table) {
	t.Register(&Command{Name: "LPUSH", Handler: push(true), MinParams: 2, Type: data.TypeList})
	t.Register(&Command{Name: "RPUSH", Handler: push(false), MinParams: 2, Type: data.TypeList})
	t.Register(&Command{Name: "LPOP", Handler: pop(true), MinParams: 1, Type: data.TypeList})
	t.Register(&Command{Name: "RPOP", Handler: pop(false), MinParams: 1, Type: data.TypeList})
	t.Register(&Command{Name: "LLEN", Handler: llen, ReadOnly: true, MinParams: 1, Type: data.TypeList})
	t.Register(&Command{Name: "LRANGE", Handler: lrange, ReadOnly: true, MinParams: 3, Type: data.TypeList})
	t.Register(&Command{Name: "LINDEX", Handler: lindex, ReadOnly: true, MinParams: 2, Type: data.TypeList})
	t.Register(&Command{Name: "LSET", Handler: lset, MinParams: 3, Type: data.TypeList})
}

func push(left bool) Handler {
	return func(db *data.Database, req *Request) resp.Token {
		v, ok := update(db, req.Param(0), data.EmptyList, func(cur data.Value) data.Value {
			items := cur.List()
			if left {
				// LPUSH a b c leaves c at the head
				head := make([]string, 0, len(items)+req.Length()-1)
				for i := req.Length() - 1; i >= 1; i-- {
					head = append(head, req.Param(i))
				}
				return data.ListValue(append(head, items...)...)
			}
			return data.ListValue(append(items, req.Params[1:]...)...)
		})
		if !ok {
			return ErrWrongType
		}
		return resp.Integer(int64(v.Len()))
	}
}

func pop(left bool) Handler {
	return func(db *data.Database, req *Request) resp.Token {
		var popped string
		found := false
		_, ok := update(db, req.Param(0), data.EmptyList, func(cur data.Value) data.Value {
			items := cur.List()
			if len(items) == 0 {
				return cur
			}
			found = true
			if left {
				popped = items[0]
				return data.ListValue(items[1:]...)
			}
			popped = items[len(items)-1]
			return data.ListValue(items[:len(items)-1]...)
		})
		if !ok {
			return ErrWrongType
		}
		if !found {
			return resp.Null()
		}
		return resp.Bulk(popped)
	}
}

func llen(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptyList)
	if !ok {
		return ErrWrongType
	}
	return resp.Integer(int64(v.Len()))
}

// normalizeIndex resolves a possibly negative index against length n.
func normalizeIndex(i int64, n int) int {
	if i < 0 {
		i += int64(n)
	}
	return int(i)
}

func lrange(db *data.Database, req *Request) resp.Token {
	start, ok1 := parseInt(req.Param(1))
	stop, ok2 := parseInt(req.Param(2))
	if !ok1 || !ok2 {
		return ErrNotInteger
	}
	v, ok := lookup(db, req.Param(0), data.EmptyList)
	if !ok {
		return ErrWrongType
	}
	items := v.List()
	from, to := normalizeIndex(start, len(items)), normalizeIndex(stop, len(items))
	if from < 0 {
		from = 0
	}
	if to >= len(items) {
		to = len(items) - 1
	}
	if from > to {
		return resp.Array()
	}
	return resp.BulkArray(items[from : to+1]...)
}

func lindex(db *data.Database, req *Request) resp.Token {
	idx, ok := parseInt(req.Param(1))
	if !ok {
		return ErrNotInteger
	}
	v, ok := lookup(db, req.Param(0), data.EmptyList)
	if !ok {
		return ErrWrongType
	}
	items := v.List()
	i := normalizeIndex(idx, len(items))
	if i < 0 || i >= len(items) {
		return resp.Null()
	}
	return resp.Bulk(items[i])
}

func lset(db *data.Database, req *Request) resp.Token {
	idx, ok := parseInt(req.Param(1))
	if !ok {
		return ErrNotInteger
	}
	if !db.ContainsKey(req.Param(0)) {
		return ErrNoSuchKey
	}
	inRange := false
	_, ok = update(db, req.Param(0), data.EmptyList, func(cur data.Value) data.Value {
		items := cur.List()
		i := normalizeIndex(idx, len(items))
		if i < 0 || i >= len(items) {
			return cur
		}
		inRange = true
		items[i] = req.Param(2)
		return data.ListValue(items...)
	})
	if !ok {
		return ErrWrongType
	}
	if !inRange {
		return ErrOutOfRange
	}
	return resp.OK
}
