package command

import (
	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/resp"
)

// offsets beyond this are rejected, as in redis (512MB of bits)
const maxBitOffset = 1<<32 - 1

func registerBitsets(t *Table) {
	t.Register(&Command{Name: "SETBIT", Handler: setbit, MinParams: 3, Type: data.TypeBitset})
	t.Register(&Command{Name: "GETBIT", Handler: getbit, ReadOnly: true, MinParams: 2, Type: data.TypeBitset})
	t.Register(&Command{Name: "BITCOUNT", Handler: bitcount, ReadOnly: true, MinParams: 1, Type: data.TypeBitset})
}

func parseOffset(s string) (uint, bool) {
	n, ok := parseInt(s)
	if !ok || n < 0 || n > maxBitOffset {
		return 0, false
	}
	return uint(n), true
}

func setbit(db *data.Database, req *Request) resp.Token {
	offset, ok := parseOffset(req.Param(1))
	if !ok {
		return resp.Error("ERR bit offset is not an integer or out of range")
	}
	var on bool
	switch req.Param(2) {
	case "0":
	case "1":
		on = true
	default:
		return resp.Error("ERR bit is not an integer or out of range")
	}
	old := false
	_, ok = update(db, req.Param(0), data.EmptyBitset, func(cur data.Value) data.Value {
		b := cur.Bitset()
		old = b.Test(offset)
		b.SetTo(offset, on)
		return data.BitsetValue(b)
	})
	if !ok {
		return ErrWrongType
	}
	return resp.Bool(old)
}

func getbit(db *data.Database, req *Request) resp.Token {
	offset, ok := parseOffset(req.Param(1))
	if !ok {
		return resp.Error("ERR bit offset is not an integer or out of range")
	}
	v, ok := lookup(db, req.Param(0), data.EmptyBitset)
	if !ok {
		return ErrWrongType
	}
	return resp.Bool(v.Bit(offset))
}

func bitcount(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptyBitset)
	if !ok {
		return ErrWrongType
	}
	return resp.Integer(int64(v.Len()))
}
