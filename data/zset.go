package data

import (
	"bytes"
	"errors"
	"math"
	"math/rand"

	"github.com/tchajed/tinydb/bin"
)

// Sorted set
//
// Members are ordered by (score, member): ascending score, ties broken by the
// byte order of the member. The order is kept in a skiplist whose forward
// links record how many nodes they skip ("spans"), so rank lookups and rank
// ranges cost O(log n). A map from member to score answers membership and
// score queries directly and is used to find a member's node.

// ErrNoSuchMember is returned when ranking a member that is not in the set.
var ErrNoSuchMember = errors.New("no such member")

const (
	skiplistMaxLevel = 32
	skiplistP        = 0.25
)

// ScoredMember is a single (score, member) pair.
type ScoredMember struct {
	Score  float64
	Member string
}

// Score is a shorthand for constructing a ScoredMember.
func Score(score float64, member string) ScoredMember {
	return ScoredMember{Score: score, Member: member}
}

func (a ScoredMember) less(b ScoredMember) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

// ScoreBound is one end of a score range; Exclusive selects an open bound.
type ScoreBound struct {
	Score     float64
	Exclusive bool
}

// Inclusive and Exclusive construct bounds; NegInf and PosInf cover everything.
func Inclusive(score float64) ScoreBound { return ScoreBound{Score: score} }
func Exclusive(score float64) ScoreBound { return ScoreBound{Score: score, Exclusive: true} }

var (
	NegInf = Inclusive(math.Inf(-1))
	PosInf = Inclusive(math.Inf(1))
)

// aboveMin reports whether score satisfies the bound as a lower bound.
func (b ScoreBound) aboveMin(score float64) bool {
	if b.Exclusive {
		return score > b.Score
	}
	return score >= b.Score
}

// belowMax reports whether score satisfies the bound as an upper bound.
func (b ScoreBound) belowMax(score float64) bool {
	if b.Exclusive {
		return score < b.Score
	}
	return score <= b.Score
}

type skipLevel struct {
	forward *skipNode
	span    int
}

type skipNode struct {
	item     ScoredMember
	backward *skipNode
	levels   []skipLevel
}

type skiplist struct {
	header *skipNode
	tail   *skipNode
	length int
	level  int
}

func newSkiplist() *skiplist {
	return &skiplist{
		header: &skipNode{levels: make([]skipLevel, skiplistMaxLevel)},
		level:  1,
	}
}

func randomLevel() int {
	level := 1
	for level < skiplistMaxLevel && rand.Float64() < skiplistP {
		level++
	}
	return level
}

func (sl *skiplist) insert(item ScoredMember) {
	var update [skiplistMaxLevel]*skipNode
	var rank [skiplistMaxLevel]int

	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		if i < sl.level-1 {
			rank[i] = rank[i+1]
		}
		for x.levels[i].forward != nil && x.levels[i].forward.item.less(item) {
			rank[i] += x.levels[i].span
			x = x.levels[i].forward
		}
		update[i] = x
	}

	level := randomLevel()
	if level > sl.level {
		for i := sl.level; i < level; i++ {
			rank[i] = 0
			update[i] = sl.header
			update[i].levels[i].span = sl.length
		}
		sl.level = level
	}

	x = &skipNode{item: item, levels: make([]skipLevel, level)}
	for i := 0; i < level; i++ {
		x.levels[i].forward = update[i].levels[i].forward
		update[i].levels[i].forward = x
		x.levels[i].span = update[i].levels[i].span - (rank[0] - rank[i])
		update[i].levels[i].span = rank[0] - rank[i] + 1
	}
	for i := level; i < sl.level; i++ {
		update[i].levels[i].span++
	}

	if update[0] != sl.header {
		x.backward = update[0]
	}
	if x.levels[0].forward != nil {
		x.levels[0].forward.backward = x
	} else {
		sl.tail = x
	}
	sl.length++
}

func (sl *skiplist) delete(item ScoredMember) bool {
	var update [skiplistMaxLevel]*skipNode

	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		for x.levels[i].forward != nil && x.levels[i].forward.item.less(item) {
			x = x.levels[i].forward
		}
		update[i] = x
	}
	x = x.levels[0].forward
	if x == nil || x.item != item {
		return false
	}

	for i := 0; i < sl.level; i++ {
		if update[i].levels[i].forward == x {
			update[i].levels[i].span += x.levels[i].span - 1
			update[i].levels[i].forward = x.levels[i].forward
		} else {
			update[i].levels[i].span--
		}
	}
	if x.levels[0].forward != nil {
		x.levels[0].forward.backward = x.backward
	} else {
		sl.tail = x.backward
	}
	for sl.level > 1 && sl.header.levels[sl.level-1].forward == nil {
		sl.level--
	}
	sl.length--
	return true
}

// rank returns the 1-based position of item, or 0 if it is absent.
func (sl *skiplist) rank(item ScoredMember) int {
	rank := 0
	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		for x.levels[i].forward != nil && !item.less(x.levels[i].forward.item) {
			rank += x.levels[i].span
			x = x.levels[i].forward
		}
		if x != sl.header && x.item == item {
			return rank
		}
	}
	return 0
}

// byRank returns the node at 1-based position rank.
func (sl *skiplist) byRank(rank int) *skipNode {
	traversed := 0
	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		for x.levels[i].forward != nil && traversed+x.levels[i].span <= rank {
			traversed += x.levels[i].span
			x = x.levels[i].forward
		}
		if traversed == rank {
			return x
		}
	}
	return nil
}

// firstMatching returns the first node for which ok is true, assuming ok is
// monotone (false for a prefix of the list, then true).
func (sl *skiplist) firstMatching(ok func(ScoredMember) bool) *skipNode {
	x := sl.header
	for i := sl.level - 1; i >= 0; i-- {
		for x.levels[i].forward != nil && !ok(x.levels[i].forward.item) {
			x = x.levels[i].forward
		}
	}
	return x.levels[0].forward
}

// SortedSet is a set of members ranked by score.
//
// A SortedSet is not safe for concurrent mutation; stored sets are treated as
// immutable and cloned before modification.
type SortedSet struct {
	scores map[string]float64
	list   *skiplist
}

func NewSortedSet() *SortedSet {
	return &SortedSet{scores: make(map[string]float64), list: newSkiplist()}
}

// Add inserts member with score, or updates its score if it is already
// present. Returns true iff member was not previously in the set.
func (z *SortedSet) Add(score float64, member string) bool {
	old, ok := z.scores[member]
	if ok {
		if old == score {
			return false
		}
		z.list.delete(Score(old, member))
	}
	z.scores[member] = score
	z.list.insert(Score(score, member))
	return !ok
}

// Remove deletes member, returning whether it was present.
func (z *SortedSet) Remove(member string) bool {
	score, ok := z.scores[member]
	if !ok {
		return false
	}
	delete(z.scores, member)
	z.list.delete(Score(score, member))
	return true
}

func (z *SortedSet) Contains(member string) bool {
	_, ok := z.scores[member]
	return ok
}

func (z *SortedSet) Score(member string) (float64, bool) {
	s, ok := z.scores[member]
	return s, ok
}

// Rank returns the 0-based ascending position of member.
func (z *SortedSet) Rank(member string) (int, bool) {
	score, ok := z.scores[member]
	if !ok {
		return 0, false
	}
	return z.list.rank(Score(score, member)) - 1, true
}

// RankOrError is Rank for callers that treat an absent member as a failure.
func (z *SortedSet) RankOrError(member string) (int, error) {
	r, ok := z.Rank(member)
	if !ok {
		return 0, ErrNoSuchMember
	}
	return r, nil
}

func (z *SortedSet) Len() int {
	return z.list.length
}

func (z *SortedSet) collect(from *skipNode, keep func(ScoredMember) bool) []ScoredMember {
	var out []ScoredMember
	for x := from; x != nil && keep(x.item); x = x.levels[0].forward {
		out = append(out, x.item)
	}
	return out
}

// Members returns every pair in ascending order.
func (z *SortedSet) Members() []ScoredMember {
	return z.collect(z.list.header.levels[0].forward, func(ScoredMember) bool { return true })
}

// First and Last return the extreme elements.
func (z *SortedSet) First() (ScoredMember, bool) {
	x := z.list.header.levels[0].forward
	if x == nil {
		return ScoredMember{}, false
	}
	return x.item, true
}

func (z *SortedSet) Last() (ScoredMember, bool) {
	if z.list.tail == nil {
		return ScoredMember{}, false
	}
	return z.list.tail.item, true
}

// ByRank returns the pairs with ranks start through stop inclusive. Negative
// indices count from the end (-1 is the last element).
func (z *SortedSet) ByRank(start, stop int) []ScoredMember {
	n := z.Len()
	if start < 0 {
		start = n + start
	}
	if stop < 0 {
		stop = n + stop
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return nil
	}
	out := make([]ScoredMember, 0, stop-start+1)
	x := z.list.byRank(start + 1)
	for i := start; i <= stop && x != nil; i++ {
		out = append(out, x.item)
		x = x.levels[0].forward
	}
	return out
}

// Range returns the pairs whose score lies between min and max, ascending.
func (z *SortedSet) Range(min, max ScoreBound) []ScoredMember {
	first := z.list.firstMatching(func(m ScoredMember) bool { return min.aboveMin(m.Score) })
	return z.collect(first, func(m ScoredMember) bool { return max.belowMax(m.Score) })
}

// HeadSet returns the pairs ordered before bound (or equal to it, if
// inclusive).
func (z *SortedSet) HeadSet(bound ScoredMember, inclusive bool) []ScoredMember {
	return z.collect(z.list.header.levels[0].forward, func(m ScoredMember) bool {
		return m.less(bound) || (inclusive && m == bound)
	})
}

// TailSet returns the pairs ordered after bound (or equal to it, if
// inclusive).
func (z *SortedSet) TailSet(bound ScoredMember, inclusive bool) []ScoredMember {
	first := z.list.firstMatching(func(m ScoredMember) bool {
		return bound.less(m) || (inclusive && m == bound)
	})
	return z.collect(first, func(ScoredMember) bool { return true })
}

// Clone makes an independent copy.
func (z *SortedSet) Clone() *SortedSet {
	c := NewSortedSet()
	for _, m := range z.Members() {
		c.scores[m.Member] = m.Score
		c.list.insert(m)
	}
	return c
}

// Equal compares member/score pairs, ignoring the skiplist's shape.
func (z *SortedSet) Equal(o *SortedSet) bool {
	if z.Len() != o.Len() {
		return false
	}
	for m, s := range z.scores {
		if os, ok := o.scores[m]; !ok || os != s {
			return false
		}
	}
	return true
}

// MarshalBinary encodes the set as a count followed by (score, member) pairs
// in ascending order.
func (z *SortedSet) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	z.encode(bin.NewEncoder(&buf))
	return buf.Bytes(), nil
}

func (z *SortedSet) encode(e *bin.Encoder) {
	e.VarInt(uint64(z.Len()))
	for _, m := range z.Members() {
		e.Float64(m.Score)
		e.String(m.Member)
	}
}

// UnmarshalBinary replaces the contents of z with the encoded set.
func (z *SortedSet) UnmarshalBinary(b []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("zset: truncated encoding")
		}
	}()
	*z = *decodeSortedSet(bin.NewDecoder(b))
	return nil
}

func decodeSortedSet(d *bin.Decoder) *SortedSet {
	z := NewSortedSet()
	n := d.VarInt()
	for i := uint64(0); i < n; i++ {
		score := d.Float64()
		z.Add(score, d.String())
	}
	return z
}

// EncodeSortedSet and DecodeSortedSet expose the binary format to the
// snapshot codec.
func EncodeSortedSet(e *bin.Encoder, z *SortedSet) { z.encode(e) }
func DecodeSortedSet(d *bin.Decoder) *SortedSet  { return decodeSortedSet(d) }
