package data

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type DatabaseSuite struct {
	suite.Suite
	clock *fakeClock
	db    *Database
}

func TestDatabaseSuite(t *testing.T) {
	suite.Run(t, new(DatabaseSuite))
}

func (suite *DatabaseSuite) SetupTest() {
	suite.clock = &fakeClock{now: time.Unix(1000, 0)}
	suite.db = NewDatabaseWithClock(suite.clock.Now)
}

func (suite *DatabaseSuite) TestPutGet() {
	suite.db.Put(SafeKey("a"), StringValue("1"))
	v, ok := suite.db.Get("a")
	suite.True(ok)
	suite.Equal("1", v.Str())
	suite.True(suite.db.ContainsKey("a"))
	suite.Equal(1, suite.db.Size())
}

func (suite *DatabaseSuite) TestGetMissing() {
	_, ok := suite.db.Get("a")
	suite.False(ok)
	suite.Equal("def", suite.db.GetOrDefault("a", StringValue("def")).Str())
	suite.True(suite.db.IsEmpty())
}

func (suite *DatabaseSuite) TestPutReplace() {
	suite.db.Put(SafeKey("a"), StringValue("1"))
	prev, ok := suite.db.Put(SafeKey("a"), StringValue("2"))
	suite.True(ok)
	suite.Equal("1", prev.Str())
	suite.Equal("2", suite.db.GetOrDefault("a", EmptyString).Str())
}

func (suite *DatabaseSuite) TestRemove() {
	suite.db.Put(SafeKey("a"), StringValue("1"))
	suite.db.Put(SafeKey("b"), StringValue("2"))
	prev, ok := suite.db.Remove("a")
	suite.True(ok)
	suite.Equal("1", prev.Str())
	suite.False(suite.db.ContainsKey("a"))
	suite.True(suite.db.ContainsKey("b"))
	_, ok = suite.db.Remove("a")
	suite.False(ok)
}

func (suite *DatabaseSuite) TestExpiry() {
	suite.db.Put(SafeKeyTTL("a", time.Second, suite.clock.Now()), StringValue("1"))
	suite.True(suite.db.ContainsKey("a"))
	k, _ := suite.db.GetKey("a")
	suite.Equal(int64(1000), k.TimeToLive(suite.clock.Now()))

	suite.clock.Advance(time.Second)
	suite.False(suite.db.ContainsKey("a"))
	suite.Equal(0, suite.db.Size())
	suite.Empty(suite.db.Keys())
}

func (suite *DatabaseSuite) TestOverrideKey() {
	suite.db.Put(SafeKey("a"), StringValue("1"))
	prev, ok := suite.db.OverrideKey(SafeKeyTTL("a", 0, suite.clock.Now()))
	suite.True(ok)
	suite.False(prev.HasExpiry())
	// expire with a zero ttl makes the key vanish on the next access
	_, ok = suite.db.Get("a")
	suite.False(ok)

	_, ok = suite.db.OverrideKey(SafeKey("missing"))
	suite.False(ok)
}

func (suite *DatabaseSuite) TestOverrideKeepsValue() {
	suite.db.Put(SafeKey("a"), ListValue("x", "y"))
	suite.db.OverrideKey(SafeKeyTTL("a", time.Minute, suite.clock.Now()))
	v, ok := suite.db.Get("a")
	suite.True(ok)
	suite.Equal([]string{"x", "y"}, v.List())
	k, _ := suite.db.GetKey("a")
	suite.True(k.HasExpiry())
}

func (suite *DatabaseSuite) TestMergeDefault() {
	v := suite.db.Merge(SafeKey("s"), EmptySet, func(cur, _ Value) Value {
		m := cur.Set()
		m["a"] = struct{}{}
		return setFrom(m)
	})
	suite.Equal([]string{"a"}, v.SetMembers())
	suite.Equal([]string{"a"}, suite.db.GetOrDefault("s", EmptySet).SetMembers())
}

func (suite *DatabaseSuite) TestMergeKeepsExpiry() {
	now := suite.clock.Now()
	suite.db.Put(SafeKeyTTL("a", time.Minute, now), StringValue("1"))
	suite.db.Merge(SafeKey("a"), EmptyString, func(cur, _ Value) Value {
		return StringValue(cur.Str() + "2")
	})
	k, ok := suite.db.GetKey("a")
	suite.True(ok)
	suite.Equal(now.Add(time.Minute), k.ExpiresAt)
	suite.Equal("12", suite.db.GetOrDefault("a", EmptyString).Str())
}

func (suite *DatabaseSuite) TestMergeToEmptyRemoves() {
	suite.db.Put(SafeKey("s"), SetValue("a"))
	suite.db.Merge(SafeKey("s"), EmptySet, func(cur, _ Value) Value {
		m := cur.Set()
		delete(m, "a")
		return setFrom(m)
	})
	suite.False(suite.db.ContainsKey("s"))
}

func (suite *DatabaseSuite) TestPutEmptyCollection() {
	suite.db.Put(SafeKey("h"), HashOf("f", "v"))
	suite.db.Put(SafeKey("h"), EmptyHash)
	suite.False(suite.db.ContainsKey("h"))
	// empty strings are values like any other
	suite.db.Put(SafeKey("s"), StringValue(""))
	suite.True(suite.db.ContainsKey("s"))
}

func (suite *DatabaseSuite) TestPutIfAbsent() {
	suite.True(suite.db.PutIfAbsent(SafeKey("a"), StringValue("1")))
	suite.False(suite.db.PutIfAbsent(SafeKey("a"), StringValue("2")))
	suite.Equal("1", suite.db.GetOrDefault("a", EmptyString).Str())
}

func (suite *DatabaseSuite) TestRename() {
	now := suite.clock.Now()
	suite.db.Put(SafeKeyTTL("a", time.Minute, now), StringValue("1"))
	suite.db.Put(SafeKey("b"), StringValue("2"))
	suite.True(suite.db.Rename("a", "b"))
	suite.False(suite.db.ContainsKey("a"))
	k, _ := suite.db.GetKey("b")
	suite.Equal("b", k.Name)
	suite.True(k.HasExpiry())
	suite.Equal("1", suite.db.GetOrDefault("b", EmptyString).Str())
	suite.False(suite.db.Rename("missing", "c"))
}

func (suite *DatabaseSuite) TestKeysSorted() {
	for _, n := range []string{"c", "a", "b"} {
		suite.db.Put(SafeKey(n), StringValue(n))
	}
	var names []string
	for _, k := range suite.db.Keys() {
		names = append(names, k.Name)
	}
	suite.Equal([]string{"a", "b", "c"}, names)
}

func (suite *DatabaseSuite) TestForEachStops() {
	for i := 0; i < 10; i++ {
		suite.db.Put(SafeKey(strconv.Itoa(i)), StringValue("x"))
	}
	n := 0
	suite.db.ForEach(func(Key, Value) bool {
		n++
		return n < 3
	})
	suite.Equal(3, n)
}

func (suite *DatabaseSuite) TestClear() {
	suite.db.Put(SafeKey("a"), StringValue("1"))
	suite.db.Clear()
	suite.True(suite.db.IsEmpty())
}

func (suite *DatabaseSuite) TestEvictExpired() {
	now := suite.clock.Now()
	for i := 0; i < 5; i++ {
		suite.db.Put(SafeKeyTTL("t"+strconv.Itoa(i), time.Second, now), StringValue("x"))
	}
	suite.db.Put(SafeKey("keep"), StringValue("x"))
	suite.Equal(0, suite.db.EvictExpired(0))
	suite.clock.Advance(2 * time.Second)
	suite.Equal(2, suite.db.EvictExpired(2))
	suite.Equal(3, suite.db.EvictExpired(0))
	suite.Equal(1, suite.db.Size())
}

func (suite *DatabaseSuite) TestConcurrentMerge() {
	const workers = 8
	const incrs = 500
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < incrs; i++ {
				suite.db.Merge(SafeKey("n"), StringValue("0"), func(cur, _ Value) Value {
					n, _ := strconv.Atoi(cur.Str())
					return StringValue(strconv.Itoa(n + 1))
				})
			}
		}()
	}
	wg.Wait()
	suite.Equal(strconv.Itoa(workers*incrs), suite.db.GetOrDefault("n", EmptyString).Str())
}

func (suite *DatabaseSuite) TestConcurrentMergeNotTorn() {
	// two merges on the same key: the result is one applied after the other
	var wg sync.WaitGroup
	wg.Add(2)
	for _, suffix := range []string{"1", "2"} {
		suffix := suffix
		go func() {
			defer wg.Done()
			suite.db.Merge(SafeKey("k"), ListValue(), func(cur, _ Value) Value {
				return ListValue(append(cur.List(), suffix)...)
			})
		}()
	}
	wg.Wait()
	l := suite.db.GetOrDefault("k", EmptyList).List()
	suite.Len(l, 2)
	suite.ElementsMatch([]string{"1", "2"}, l)
}

func setFrom(m map[string]struct{}) Value {
	members := make([]string, 0, len(m))
	for k := range m {
		members = append(members, k)
	}
	return SetValue(members...)
}
