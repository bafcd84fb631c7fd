package command

import (
	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/resp"
)

func registerSets(t *Table) {
	t.Register(&Command{Name: "SADD", Handler: sadd, MinParams: 2, Type: data.TypeSet})
	t.Register(&Command{Name: "SREM", Handler: srem, MinParams: 2, Type: data.TypeSet})
	t.Register(&Command{Name: "SMEMBERS", Handler: smembers, ReadOnly: true, MinParams: 1, Type: data.TypeSet})
	t.Register(&Command{Name: "SISMEMBER", Handler: sismember, ReadOnly: true, MinParams: 2, Type: data.TypeSet})
	t.Register(&Command{Name: "SCARD", Handler: scard, ReadOnly: true, MinParams: 1, Type: data.TypeSet})
	t.Register(&Command{Name: "SPOP", Handler: spop, MinParams: 1, Type: data.TypeSet})
	t.Register(&Command{Name: "SUNION", Handler: combineSets(union), ReadOnly: true, MinParams: 1, Type: data.TypeSet})
	t.Register(&Command{Name: "SINTER", Handler: combineSets(intersect), ReadOnly: true, MinParams: 1, Type: data.TypeSet})
	t.Register(&Command{Name: "SDIFF", Handler: combineSets(difference), ReadOnly: true, MinParams: 1, Type: data.TypeSet})
}

func sadd(db *data.Database, req *Request) resp.Token {
	added := 0
	_, ok := update(db, req.Param(0), data.EmptySet, func(cur data.Value) data.Value {
		var next data.Value
		next, added = cur.SetAdd(req.Params[1:]...)
		return next
	})
	if !ok {
		return ErrWrongType
	}
	return resp.Integer(int64(added))
}

func srem(db *data.Database, req *Request) resp.Token {
	removed := 0
	_, ok := update(db, req.Param(0), data.EmptySet, func(cur data.Value) data.Value {
		var next data.Value
		next, removed = cur.SetRemove(req.Params[1:]...)
		return next
	})
	if !ok {
		return ErrWrongType
	}
	return resp.Integer(int64(removed))
}

func smembers(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptySet)
	if !ok {
		return ErrWrongType
	}
	return resp.BulkArray(v.SetMembers()...)
}

func sismember(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptySet)
	if !ok {
		return ErrWrongType
	}
	return resp.Bool(v.SetContains(req.Param(1)))
}

func scard(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptySet)
	if !ok {
		return ErrWrongType
	}
	return resp.Integer(int64(v.Len()))
}

// spop removes an arbitrary member. It replays as an SREM of that member so
// slaves remove the same one.
func spop(db *data.Database, req *Request) resp.Token {
	var popped string
	found := false
	_, ok := update(db, req.Param(0), data.EmptySet, func(cur data.Value) data.Value {
		for m := range cur.Set() {
			popped, found = m, true
			next, _ := cur.SetRemove(m)
			return next
		}
		return cur
	})
	if !ok {
		return ErrWrongType
	}
	if !found {
		return resp.Null()
	}
	req.ReplayAs("SREM", req.Param(0), popped)
	return resp.Bulk(popped)
}

func union(acc, s map[string]struct{}) map[string]struct{} {
	for m := range s {
		acc[m] = struct{}{}
	}
	return acc
}

func intersect(acc, s map[string]struct{}) map[string]struct{} {
	for m := range acc {
		if _, ok := s[m]; !ok {
			delete(acc, m)
		}
	}
	return acc
}

func difference(acc, s map[string]struct{}) map[string]struct{} {
	for m := range s {
		delete(acc, m)
	}
	return acc
}

func combineSets(op func(acc, s map[string]struct{}) map[string]struct{}) Handler {
	return func(db *data.Database, req *Request) resp.Token {
		var acc map[string]struct{}
		for i, k := range req.Params {
			v, ok := lookup(db, k, data.EmptySet)
			if !ok {
				return ErrWrongType
			}
			if i == 0 {
				acc = v.Set()
				continue
			}
			acc = op(acc, v.Set())
		}
		members := make([]string, 0, len(acc))
		for m := range acc {
			members = append(members, m)
		}
		return resp.BulkArray(data.SetValue(members...).SetMembers()...)
	}
}
