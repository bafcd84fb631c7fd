package command

import (
	"strings"

	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/resp"
)

func registerSortedSets(t *Table) {
	t.Register(&Command{Name: "ZADD", Handler: zadd, MinParams: 3, Type: data.TypeZSet})
	t.Register(&Command{Name: "ZREM", Handler: zrem, MinParams: 2, Type: data.TypeZSet})
	t.Register(&Command{Name: "ZSCORE", Handler: zscore, ReadOnly: true, MinParams: 2, Type: data.TypeZSet})
	t.Register(&Command{Name: "ZRANK", Handler: zrank, ReadOnly: true, MinParams: 2, Type: data.TypeZSet})
	t.Register(&Command{Name: "ZCARD", Handler: zcard, ReadOnly: true, MinParams: 1, Type: data.TypeZSet})
	t.Register(&Command{Name: "ZINCRBY", Handler: zincrby, MinParams: 3, Type: data.TypeZSet})
	t.Register(&Command{Name: "ZRANGE", Handler: zrange(false), ReadOnly: true, MinParams: 3, Type: data.TypeZSet})
	t.Register(&Command{Name: "ZREVRANGE", Handler: zrange(true), ReadOnly: true, MinParams: 3, Type: data.TypeZSet})
	t.Register(&Command{Name: "ZRANGEBYSCORE", Handler: zrangeByScore, ReadOnly: true, MinParams: 3, Type: data.TypeZSet})
}

func zadd(db *data.Database, req *Request) resp.Token {
	if req.Length()%2 != 1 {
		return ErrSyntax
	}
	var pairs []data.ScoredMember
	for i := 1; i < req.Length(); i += 2 {
		score, ok := parseFloat(req.Param(i))
		if !ok {
			return ErrNotFloat
		}
		pairs = append(pairs, data.Score(score, req.Param(i+1)))
	}
	added := 0
	_, ok := update(db, req.Param(0), data.EmptyZSet, func(cur data.Value) data.Value {
		z := cur.SortedSet()
		for _, p := range pairs {
			if z.Add(p.Score, p.Member) {
				added++
			}
		}
		return data.ZSetValue(z)
	})
	if !ok {
		return ErrWrongType
	}
	return resp.Integer(int64(added))
}

func zrem(db *data.Database, req *Request) resp.Token {
	removed := 0
	_, ok := update(db, req.Param(0), data.EmptyZSet, func(cur data.Value) data.Value {
		z := cur.SortedSet()
		for _, m := range req.Params[1:] {
			if z.Remove(m) {
				removed++
			}
		}
		return data.ZSetValue(z)
	})
	if !ok {
		return ErrWrongType
	}
	return resp.Integer(int64(removed))
}

func zscore(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptyZSet)
	if !ok {
		return ErrWrongType
	}
	s, found := v.ZSetView().Score(req.Param(1))
	if !found {
		return resp.Null()
	}
	return resp.Float(s)
}

func zrank(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptyZSet)
	if !ok {
		return ErrWrongType
	}
	r, err := v.ZSetView().RankOrError(req.Param(1))
	if err != nil {
		return resp.Null()
	}
	return resp.Integer(int64(r))
}

func zcard(db *data.Database, req *Request) resp.Token {
	v, ok := lookup(db, req.Param(0), data.EmptyZSet)
	if !ok {
		return ErrWrongType
	}
	return resp.Integer(int64(v.Len()))
}

func zincrby(db *data.Database, req *Request) resp.Token {
	delta, ok := parseFloat(req.Param(1))
	if !ok {
		return ErrNotFloat
	}
	var result float64
	nan := false
	_, ok = update(db, req.Param(0), data.EmptyZSet, func(cur data.Value) data.Value {
		z := cur.SortedSet()
		old, _ := z.Score(req.Param(2))
		result = old + delta
		if result != result {
			nan = true
			return cur
		}
		z.Add(result, req.Param(2))
		return data.ZSetValue(z)
	})
	if !ok {
		return ErrWrongType
	}
	if nan {
		return resp.Error("ERR resulting score is not a number (NaN)")
	}
	return resp.Float(result)
}

func withScores(req *Request, from int) (bool, bool) {
	if req.Length() <= from {
		return false, true
	}
	if req.Length() == from+1 && strings.ToUpper(req.Param(from)) == "WITHSCORES" {
		return true, true
	}
	return false, false
}

func scoredReply(items []data.ScoredMember, scores bool) resp.Token {
	out := make([]resp.Token, 0, len(items))
	for _, m := range items {
		out = append(out, resp.Bulk(m.Member))
		if scores {
			out = append(out, resp.Float(m.Score))
		}
	}
	return resp.Array(out...)
}

func zrange(reverse bool) Handler {
	return func(db *data.Database, req *Request) resp.Token {
		start, ok1 := parseInt(req.Param(1))
		stop, ok2 := parseInt(req.Param(2))
		if !ok1 || !ok2 {
			return ErrNotInteger
		}
		scores, ok := withScores(req, 3)
		if !ok {
			return ErrSyntax
		}
		v, ok := lookup(db, req.Param(0), data.EmptyZSet)
		if !ok {
			return ErrWrongType
		}
		z := v.ZSetView()
		if !reverse {
			return scoredReply(z.ByRank(int(start), int(stop)), scores)
		}
		// reverse rank r is ascending rank n-1-r
		n := z.Len()
		from, to := normalizeIndex(start, n), normalizeIndex(stop, n)
		if from < 0 {
			from = 0
		}
		if to >= n {
			to = n - 1
		}
		if from > to {
			return resp.Array()
		}
		items := z.ByRank(n-1-to, n-1-from)
		for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
			items[i], items[j] = items[j], items[i]
		}
		return scoredReply(items, scores)
	}
}

// parseBound reads a score bound: a number, "(" followed by a number for an
// exclusive bound, or -inf/+inf.
func parseBound(s string) (data.ScoreBound, bool) {
	exclusive := false
	if strings.HasPrefix(s, "(") {
		exclusive = true
		s = s[1:]
	}
	f, ok := parseFloat(s)
	if !ok {
		return data.ScoreBound{}, false
	}
	return data.ScoreBound{Score: f, Exclusive: exclusive}, true
}

func zrangeByScore(db *data.Database, req *Request) resp.Token {
	min, ok1 := parseBound(req.Param(1))
	max, ok2 := parseBound(req.Param(2))
	if !ok1 || !ok2 {
		return resp.Error("ERR min or max is not a float")
	}
	scores, ok := withScores(req, 3)
	if !ok {
		return ErrSyntax
	}
	v, ok := lookup(db, req.Param(0), data.EmptyZSet)
	if !ok {
		return ErrWrongType
	}
	return scoredReply(v.ZSetView().Range(min, max), scores)
}
