package command

import (
	"strconv"
	"strings"
	"time"

	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/resp"
)

func registerStrings(t *Table) {
	t.Register(&Command{Name: "SET", Handler: set, MinParams: 2})
	t.Register(&Command{Name: "GET", Handler: get, ReadOnly: true, MinParams: 1, Type: data.TypeString})
	t.Register(&Command{Name: "GETSET", Handler: getSet, MinParams: 2, Type: data.TypeString})
	t.Register(&Command{Name: "MGET", Handler: mget, ReadOnly: true, MinParams: 1})
	t.Register(&Command{Name: "MSET", Handler: mset, MinParams: 2})
	t.Register(&Command{Name: "SETNX", Handler: setNX, MinParams: 2})
	t.Register(&Command{Name: "SETEX", Handler: setEX, MinParams: 3})
	t.Register(&Command{Name: "INCR", Handler: incrBy(1, false), MinParams: 1, Type: data.TypeString})
	t.Register(&Command{Name: "DECR", Handler: incrBy(-1, false), MinParams: 1, Type: data.TypeString})
	t.Register(&Command{Name: "INCRBY", Handler: incrBy(1, true), MinParams: 2, Type: data.TypeString})
	t.Register(&Command{Name: "DECRBY", Handler: incrBy(-1, true), MinParams: 2, Type: data.TypeString})
	t.Register(&Command{Name: "APPEND", Handler: appendStr, MinParams: 2, Type: data.TypeString})
	t.Register(&Command{Name: "STRLEN", Handler: strlen, ReadOnly: true, MinParams: 1, Type: data.TypeString})
}

// set implements SET key value [EX seconds|PX millis] [NX|XX].
func set(db *data.Database, req *Request) resp.Token {
	name, value := req.Param(0), req.Param(1)
	var ttl time.Duration
	nx, xx := false, false
	for i := 2; i < req.Length(); i++ {
		switch strings.ToUpper(req.Param(i)) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "EX", "PX":
			if i+1 >= req.Length() {
				return ErrSyntax
			}
			n, ok := parseInt(req.Param(i + 1))
			if !ok || n <= 0 {
				return resp.Error("ERR invalid expire time in 'set' command")
			}
			unit := time.Second
			if strings.ToUpper(req.Param(i)) == "PX" {
				unit = time.Millisecond
			}
			ttl = time.Duration(n) * unit
			i++
		default:
			return ErrSyntax
		}
	}
	if nx && xx {
		return ErrSyntax
	}
	key := data.SafeKey(name)
	if ttl > 0 {
		key = data.SafeKeyTTL(name, ttl, db.Now())
	}
	if nx {
		if !db.PutIfAbsent(key, data.StringValue(value)) {
			return resp.Null()
		}
		return resp.OK
	}
	if xx {
		if _, ok := db.Replace(key, data.StringValue(value)); !ok {
			return resp.Null()
		}
		return resp.OK
	}
	db.Put(key, data.StringValue(value))
	return resp.OK
}

func get(db *data.Database, req *Request) resp.Token {
	v, ok := db.Get(req.Param(0))
	if !ok {
		return resp.Null()
	}
	return resp.Bulk(v.Str())
}

func getSet(db *data.Database, req *Request) resp.Token {
	prev, ok := db.Put(data.SafeKey(req.Param(0)), data.StringValue(req.Param(1)))
	if !ok {
		return resp.Null()
	}
	return resp.Bulk(prev.Str())
}

func mget(db *data.Database, req *Request) resp.Token {
	items := make([]resp.Token, req.Length())
	for i, k := range req.Params {
		v, ok := db.Get(k)
		if !ok || v.Type() != data.TypeString {
			items[i] = resp.Null()
			continue
		}
		items[i] = resp.Bulk(v.Str())
	}
	return resp.Array(items...)
}

func mset(db *data.Database, req *Request) resp.Token {
	if req.Length()%2 != 0 {
		return ErrArity(req.Command)
	}
	for i := 0; i < req.Length(); i += 2 {
		db.Put(data.SafeKey(req.Param(i)), data.StringValue(req.Param(i+1)))
	}
	return resp.OK
}

func setNX(db *data.Database, req *Request) resp.Token {
	return resp.Bool(db.PutIfAbsent(data.SafeKey(req.Param(0)), data.StringValue(req.Param(1))))
}

func setEX(db *data.Database, req *Request) resp.Token {
	n, ok := parseInt(req.Param(1))
	if !ok {
		return ErrNotInteger
	}
	if n <= 0 {
		return resp.Error("ERR invalid expire time in 'setex' command")
	}
	db.Put(data.SafeKeyTTL(req.Param(0), time.Duration(n)*time.Second, db.Now()), data.StringValue(req.Param(2)))
	return resp.OK
}

func incrBy(sign int64, explicit bool) Handler {
	return func(db *data.Database, req *Request) resp.Token {
		delta := sign
		if explicit {
			n, ok := parseInt(req.Param(1))
			if !ok {
				return ErrNotInteger
			}
			delta = sign * n
		}
		var result int64
		failed := false
		_, ok := update(db, req.Param(0), data.StringValue("0"), func(cur data.Value) data.Value {
			n, err := strconv.ParseInt(cur.Str(), 10, 64)
			if err != nil || (delta > 0 && n > n+delta) || (delta < 0 && n < n+delta) {
				failed = true
				return cur
			}
			result = n + delta
			return data.StringValue(strconv.FormatInt(result, 10))
		})
		if !ok {
			return ErrWrongType
		}
		if failed {
			return ErrNotInteger
		}
		return resp.Integer(result)
	}
}

func appendStr(db *data.Database, req *Request) resp.Token {
	v, ok := update(db, req.Param(0), data.EmptyString, func(cur data.Value) data.Value {
		return data.StringValue(cur.Str() + req.Param(1))
	})
	if !ok {
		return ErrWrongType
	}
	return resp.Integer(int64(v.Len()))
}

func strlen(db *data.Database, req *Request) resp.Token {
	v, _ := db.Get(req.Param(0))
	return resp.Integer(int64(len(v.Str())))
}
