package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/tchajed/tinydb/bin"
	"github.com/tchajed/tinydb/data"
)

// Snapshot format
//
// A snapshot holds every non-empty keyspace:
//
//	"TINYDB" version:u8
//	( 0xFE index:varint entry* )*
//	0xFF
//
// Each entry is a type byte, the key name (varint-prefixed), the expiration
// as unix milliseconds (u64, 0 for none) and the value. Strings are a single
// array; hashes, sets and lists are a varint count followed by arrays (hash
// fields and values alternate); sorted sets are a count of (f64 score, array
// member) pairs; bitsets are a count of u64 words.

const (
	magic   = "TINYDB"
	version = 1

	opSelect = 0xFE
	opEnd    = 0xFF
)

var ErrBadFormat = errors.New("snapshot: bad format")

// Entry is one key/value pair of a keyspace.
type Entry struct {
	Key   data.Key
	Value data.Value
}

// Keyspace is the decoded contents of one numbered keyspace.
type Keyspace struct {
	Index   int
	Entries []Entry
}

func typeByte(t data.DataType) uint8 {
	return uint8(t)
}

func expiryMillis(k data.Key) uint64 {
	if !k.HasExpiry() {
		return 0
	}
	return uint64(k.ExpiresAt.UnixMilli())
}

// EncodeEntry writes a single entry.
func EncodeEntry(e *bin.Encoder, k data.Key, v data.Value) {
	e.Uint8(typeByte(v.Type()))
	e.String(k.Name)
	e.Uint64(expiryMillis(k))
	switch v.Type() {
	case data.TypeString:
		e.String(v.Str())
	case data.TypeHash:
		fields := v.HashFields()
		e.VarInt(uint64(len(fields)))
		for _, f := range fields {
			val, _ := v.HashGet(f)
			e.String(f)
			e.String(val)
		}
	case data.TypeList:
		items := v.List()
		e.VarInt(uint64(len(items)))
		for _, s := range items {
			e.String(s)
		}
	case data.TypeSet:
		members := v.SetMembers()
		e.VarInt(uint64(len(members)))
		for _, s := range members {
			e.String(s)
		}
	case data.TypeZSet:
		data.EncodeSortedSet(e, v.ZSetView())
	case data.TypeBitset:
		words := v.Bitset().Bytes()
		e.VarInt(uint64(len(words)))
		for _, w := range words {
			e.Uint64(w)
		}
	default:
		panic(fmt.Errorf("snapshot: cannot encode value of type %v", v.Type()))
	}
}

// sizeHint bounds an allocation by a decoded count, which may be corrupt.
func sizeHint(d *bin.Decoder, n uint64) int {
	if n > uint64(d.RemainingBytes()) {
		return d.RemainingBytes()
	}
	return int(n)
}

func decodeStrings(d *bin.Decoder) []string {
	n := d.VarInt()
	out := make([]string, 0, sizeHint(d, n))
	for i := uint64(0); i < n; i++ {
		out = append(out, d.String())
	}
	return out
}

// DecodeEntry reads an entry written by EncodeEntry. It panics on malformed
// input; Decode and DecodeEntryBytes convert that to ErrBadFormat.
func DecodeEntry(d *bin.Decoder) (data.Key, data.Value) {
	return decodeEntry(d, data.DataType(d.Uint8()))
}

func decodeEntry(d *bin.Decoder, typ data.DataType) (data.Key, data.Value) {
	key := data.SafeKey(d.String())
	if ms := d.Uint64(); ms != 0 {
		key.ExpiresAt = time.UnixMilli(int64(ms))
	}
	var v data.Value
	switch typ {
	case data.TypeString:
		v = data.StringValue(d.String())
	case data.TypeHash:
		n := d.VarInt()
		h := make(map[string]string, sizeHint(d, n))
		for i := uint64(0); i < n; i++ {
			f := d.String()
			h[f] = d.String()
		}
		v = data.HashValue(h)
	case data.TypeList:
		v = data.ListValue(decodeStrings(d)...)
	case data.TypeSet:
		v = data.SetValue(decodeStrings(d)...)
	case data.TypeZSet:
		v = data.ZSetValue(data.DecodeSortedSet(d))
	case data.TypeBitset:
		n := d.VarInt()
		words := make([]uint64, 0, sizeHint(d, n))
		for i := uint64(0); i < n; i++ {
			words = append(words, d.Uint64())
		}
		v = data.BitsetValue(bitset.From(words))
	default:
		panic(fmt.Errorf("%w: unknown value type %d", ErrBadFormat, typ))
	}
	return key, v
}

// EncodeEntryBytes and DecodeEntryBytes handle a standalone entry.
func EncodeEntryBytes(k data.Key, v data.Value) []byte {
	var buf bytes.Buffer
	EncodeEntry(bin.NewEncoder(&buf), k, v)
	return buf.Bytes()
}

func DecodeEntryBytes(b []byte) (k data.Key, v data.Value, err error) {
	defer recoverFormat(&err)
	d := bin.NewDecoder(b)
	k, v = DecodeEntry(d)
	if d.RemainingBytes() != 0 {
		return k, v, fmt.Errorf("%w: %d trailing bytes", ErrBadFormat, d.RemainingBytes())
	}
	return k, v, nil
}

func recoverFormat(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(error); ok && errors.Is(e, ErrBadFormat) {
			*err = e
			return
		}
		*err = fmt.Errorf("%w: %v", ErrBadFormat, r)
	}
}

// Collect captures the live entries of dbs (indexed by keyspace number),
// skipping empty keyspaces. Entries are sorted by key.
func Collect(dbs []*data.Database) []Keyspace {
	var spaces []Keyspace
	for i, db := range dbs {
		if db == nil || db.IsEmpty() {
			continue
		}
		var entries []Entry
		db.ForEach(func(k data.Key, v data.Value) bool {
			entries = append(entries, Entry{k, v})
			return true
		})
		if len(entries) == 0 {
			continue
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Key.Name < entries[j].Key.Name })
		spaces = append(spaces, Keyspace{Index: i, Entries: entries})
	}
	return spaces
}

// Encode writes a snapshot of dbs to w.
func Encode(w io.Writer, dbs []*data.Database) error {
	return EncodeKeyspaces(w, Collect(dbs))
}

// EncodeKeyspaces writes a snapshot of previously collected keyspaces.
func EncodeKeyspaces(w io.Writer, spaces []Keyspace) (err error) {
	defer func() {
		// bin.Encoder panics on write errors
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	e := bin.NewEncoder(w)
	e.Bytes([]byte(magic))
	e.Uint8(version)
	for _, space := range spaces {
		if len(space.Entries) == 0 {
			continue
		}
		e.Uint8(opSelect)
		e.VarInt(uint64(space.Index))
		for _, ent := range space.Entries {
			EncodeEntry(e, ent.Key, ent.Value)
		}
	}
	e.Uint8(opEnd)
	return nil
}

// EncodeBytes is Encode into a byte slice.
func EncodeBytes(dbs []*data.Database) []byte {
	var buf bytes.Buffer
	if err := Encode(&buf, dbs); err != nil {
		// writes to a bytes.Buffer do not fail
		panic(err)
	}
	return buf.Bytes()
}

// Decode parses a snapshot, returning its keyspaces in file order.
func Decode(b []byte) (spaces []Keyspace, err error) {
	defer recoverFormat(&err)
	if len(b) < len(magic)+1 || string(b[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: missing header", ErrBadFormat)
	}
	d := bin.NewDecoder(b[len(magic):])
	if v := d.Uint8(); v != version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadFormat, v)
	}
	var current *Keyspace
	for {
		op := d.Uint8()
		switch {
		case op == opEnd:
			if current != nil {
				spaces = append(spaces, *current)
			}
			if d.RemainingBytes() != 0 {
				return nil, fmt.Errorf("%w: data after end marker", ErrBadFormat)
			}
			return spaces, nil
		case op == opSelect:
			if current != nil {
				spaces = append(spaces, *current)
			}
			current = &Keyspace{Index: int(d.VarInt())}
		default:
			if current == nil {
				return nil, fmt.Errorf("%w: entry before keyspace selector", ErrBadFormat)
			}
			// the opcode is the entry's type byte
			k, v := decodeEntry(d, data.DataType(op))
			current.Entries = append(current.Entries, Entry{k, v})
		}
	}
}
