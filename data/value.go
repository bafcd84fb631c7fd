package data

import (
	"errors"
	"sort"

	"github.com/bits-and-blooms/bitset"
)

// DataType is the immutable tag of a Value.
type DataType int

const (
	TypeNone DataType = iota
	TypeString
	TypeHash
	TypeList
	TypeSet
	TypeZSet
	TypeBitset
)

var typeNames = map[DataType]string{
	TypeNone:   "none",
	TypeString: "string",
	TypeHash:   "hash",
	TypeList:   "list",
	TypeSet:    "set",
	TypeZSet:   "zset",
	TypeBitset: "bitset",
}

func (t DataType) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "unknown"
}

// ErrWrongType is returned by typed accessors when the tag does not match.
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// Value is an immutable snapshot of a key's contents.
//
// Constructors copy their inputs and accessors hand out copies, so a Value
// published to a Database is never mutated; updates build a new Value and
// replace the old one.
type Value struct {
	typ  DataType
	str  string
	hash map[string]string
	list []string
	set  map[string]struct{}
	zset *SortedSet
	bits *bitset.BitSet
}

// Empty values used as merge defaults.
var (
	EmptyString = StringValue("")
	EmptyHash   = HashValue(nil)
	EmptyList   = ListValue()
	EmptySet    = SetValue()
	EmptyZSet   = ZSetValue(nil)
	EmptyBitset = BitsetValue(nil)
)

func StringValue(s string) Value {
	return Value{typ: TypeString, str: s}
}

func HashValue(m map[string]string) Value {
	h := make(map[string]string, len(m))
	for k, v := range m {
		h[k] = v
	}
	return Value{typ: TypeHash, hash: h}
}

// HashOf builds a hash from alternating field, value arguments.
func HashOf(fieldValues ...string) Value {
	h := make(map[string]string, len(fieldValues)/2)
	for i := 0; i+1 < len(fieldValues); i += 2 {
		h[fieldValues[i]] = fieldValues[i+1]
	}
	return Value{typ: TypeHash, hash: h}
}

func ListValue(items ...string) Value {
	return Value{typ: TypeList, list: append([]string(nil), items...)}
}

func SetValue(members ...string) Value {
	s := make(map[string]struct{}, len(members))
	for _, m := range members {
		s[m] = struct{}{}
	}
	return Value{typ: TypeSet, set: s}
}

// ZSetValue wraps a copy of z (nil means an empty sorted set).
func ZSetValue(z *SortedSet) Value {
	if z == nil {
		return Value{typ: TypeZSet, zset: NewSortedSet()}
	}
	return Value{typ: TypeZSet, zset: z.Clone()}
}

// ZSetOf builds a sorted set value from scored members.
func ZSetOf(members ...ScoredMember) Value {
	z := NewSortedSet()
	for _, m := range members {
		z.Add(m.Score, m.Member)
	}
	return Value{typ: TypeZSet, zset: z}
}

// BitsetValue wraps a copy of b (nil means no bits set).
func BitsetValue(b *bitset.BitSet) Value {
	if b == nil {
		return Value{typ: TypeBitset, bits: bitset.New(0)}
	}
	return Value{typ: TypeBitset, bits: b.Clone()}
}

// BitsetOf builds a bitset with the given bits set.
func BitsetOf(bits ...uint) Value {
	b := bitset.New(0)
	for _, i := range bits {
		b.Set(i)
	}
	return Value{typ: TypeBitset, bits: b}
}

func (v Value) Type() DataType {
	return v.typ
}

// IsNone reports whether v is the zero Value (no representation).
func (v Value) IsNone() bool {
	return v.typ == TypeNone
}

// Str returns the string representation (empty for other types).
func (v Value) Str() string {
	return v.str
}

// Hash returns a copy of the hash contents.
func (v Value) Hash() map[string]string {
	h := make(map[string]string, len(v.hash))
	for k, val := range v.hash {
		h[k] = val
	}
	return h
}

// HashGet looks up a single field without copying the hash.
func (v Value) HashGet(field string) (string, bool) {
	s, ok := v.hash[field]
	return s, ok
}

// HashFields returns the hash fields in sorted order.
func (v Value) HashFields() []string {
	fields := make([]string, 0, len(v.hash))
	for f := range v.hash {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// List returns a copy of the list contents.
func (v Value) List() []string {
	return append([]string(nil), v.list...)
}

// Set returns a copy of the set contents.
func (v Value) Set() map[string]struct{} {
	s := make(map[string]struct{}, len(v.set))
	for m := range v.set {
		s[m] = struct{}{}
	}
	return s
}

// SetMembers returns the set members in sorted order.
func (v Value) SetMembers() []string {
	members := make([]string, 0, len(v.set))
	for m := range v.set {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

func (v Value) SetContains(member string) bool {
	_, ok := v.set[member]
	return ok
}

// SortedSet returns a copy of the sorted set.
func (v Value) SortedSet() *SortedSet {
	if v.zset == nil {
		return NewSortedSet()
	}
	return v.zset.Clone()
}

// ZSetView exposes the stored sorted set for read-only queries.
//
// Callers must not modify the result.
func (v Value) ZSetView() *SortedSet {
	if v.zset == nil {
		return NewSortedSet()
	}
	return v.zset
}

// Bitset returns a copy of the bits.
func (v Value) Bitset() *bitset.BitSet {
	if v.bits == nil {
		return bitset.New(0)
	}
	return v.bits.Clone()
}

// Bit reports whether bit i is set without copying.
func (v Value) Bit(i uint) bool {
	return v.bits != nil && v.bits.Test(i)
}

// SetBits returns the indices of the set bits in increasing order.
func (v Value) SetBits() []uint {
	var bits []uint
	if v.bits == nil {
		return bits
	}
	for i, ok := v.bits.NextSet(0); ok; i, ok = v.bits.NextSet(i + 1) {
		bits = append(bits, i)
	}
	return bits
}

// Len is the number of elements in a collection, the byte length of a string,
// or the number of set bits of a bitset.
func (v Value) Len() int {
	switch v.typ {
	case TypeString:
		return len(v.str)
	case TypeHash:
		return len(v.hash)
	case TypeList:
		return len(v.list)
	case TypeSet:
		return len(v.set)
	case TypeZSet:
		if v.zset == nil {
			return 0
		}
		return v.zset.Len()
	case TypeBitset:
		if v.bits == nil {
			return 0
		}
		return int(v.bits.Count())
	}
	return 0
}

// isVacant is true for collections with no elements and for the zero Value;
// the Database drops these rather than storing them.
func (v Value) isVacant() bool {
	switch v.typ {
	case TypeNone:
		return true
	case TypeHash, TypeList, TypeSet, TypeZSet:
		return v.Len() == 0
	}
	return false
}

// Equal compares two values structurally.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeString:
		return v.str == o.str
	case TypeHash:
		if len(v.hash) != len(o.hash) {
			return false
		}
		for k, val := range v.hash {
			if ov, ok := o.hash[k]; !ok || ov != val {
				return false
			}
		}
		return true
	case TypeList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
		return true
	case TypeSet:
		if len(v.set) != len(o.set) {
			return false
		}
		for m := range v.set {
			if _, ok := o.set[m]; !ok {
				return false
			}
		}
		return true
	case TypeZSet:
		return v.ZSetView().Equal(o.ZSetView())
	case TypeBitset:
		a, b := v.Bitset(), o.Bitset()
		return a.Count() == b.Count() && a.IsSuperSet(b)
	}
	return true
}

// SetAdd returns a set with members added, and how many were new.
func (v Value) SetAdd(members ...string) (Value, int) {
	s := v.Set()
	added := 0
	for _, m := range members {
		if _, ok := s[m]; !ok {
			s[m] = struct{}{}
			added++
		}
	}
	return Value{typ: TypeSet, set: s}, added
}

// SetRemove returns a set without members, and how many were present.
func (v Value) SetRemove(members ...string) (Value, int) {
	s := v.Set()
	removed := 0
	for _, m := range members {
		if _, ok := s[m]; ok {
			delete(s, m)
			removed++
		}
	}
	return Value{typ: TypeSet, set: s}, removed
}
