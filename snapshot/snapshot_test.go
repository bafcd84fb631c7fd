package snapshot

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/tchajed/tinydb/data"
)

type SnapshotSuite struct {
	suite.Suite
	now time.Time
	dbs []*data.Database
}

func TestSnapshotSuite(t *testing.T) {
	suite.Run(t, new(SnapshotSuite))
}

func (suite *SnapshotSuite) SetupTest() {
	suite.now = time.UnixMilli(1_700_000_000_000)
	clock := func() time.Time { return suite.now }
	suite.dbs = make([]*data.Database, 4)
	for i := range suite.dbs {
		suite.dbs[i] = data.NewDatabaseWithClock(clock)
	}
}

func (suite *SnapshotSuite) fill() {
	db := suite.dbs[0]
	db.Put(data.SafeKey("str"), data.StringValue("hello"))
	db.Put(data.SafeKeyTTL("ttl", time.Minute, suite.now), data.StringValue("soon"))
	db.Put(data.SafeKey("hash"), data.HashOf("f1", "v1", "f2", "v2"))
	db.Put(data.SafeKey("list"), data.ListValue("c", "a", "b"))
	db.Put(data.SafeKey("set"), data.SetValue("x", "y"))
	db.Put(data.SafeKey("zset"), data.ZSetOf(
		data.ScoredMember{Score: 1.5, Member: "one"},
		data.ScoredMember{Score: -2, Member: "two"}))
	suite.dbs[2].Put(data.SafeKey("bits"), data.BitsetOf(1, 70, 1000))
}

func (suite *SnapshotSuite) TestRoundtrip() {
	suite.fill()
	b := EncodeBytes(suite.dbs)
	spaces, err := Decode(b)
	suite.Require().NoError(err)
	suite.Require().Len(spaces, 2)
	suite.Equal(0, spaces[0].Index)
	suite.Equal(2, spaces[1].Index)

	suite.Len(spaces[0].Entries, 6)
	for _, e := range spaces[0].Entries {
		want, ok := suite.dbs[0].Get(e.Key.Name)
		suite.True(ok, e.Key.Name)
		suite.True(want.Equal(e.Value), e.Key.Name)
		if e.Key.Name == "ttl" {
			suite.True(e.Key.ExpiresAt.Equal(suite.now.Add(time.Minute)))
		} else {
			suite.False(e.Key.HasExpiry())
		}
	}
	bits := spaces[1].Entries[0]
	suite.Equal("bits", bits.Key.Name)
	suite.True(bits.Value.Bit(1000))
	suite.True(bits.Value.Bit(70))
	suite.False(bits.Value.Bit(2))
}

func (suite *SnapshotSuite) TestEntriesSorted() {
	suite.fill()
	spaces, err := Decode(EncodeBytes(suite.dbs))
	suite.Require().NoError(err)
	var names []string
	for _, e := range spaces[0].Entries {
		names = append(names, e.Key.Name)
	}
	suite.Equal([]string{"hash", "list", "set", "str", "ttl", "zset"}, names)
}

func (suite *SnapshotSuite) TestEmpty() {
	b := EncodeBytes(suite.dbs)
	suite.Equal(append([]byte("TINYDB"), version, opEnd), b)
	spaces, err := Decode(b)
	suite.NoError(err)
	suite.Empty(spaces)
}

func (suite *SnapshotSuite) TestTruncated() {
	suite.fill()
	b := EncodeBytes(suite.dbs)
	for _, n := range []int{3, 7, 9, 20, len(b) - 1} {
		_, err := Decode(b[:n])
		suite.True(errors.Is(err, ErrBadFormat), "prefix %d: %v", n, err)
	}
}

func (suite *SnapshotSuite) TestBadInput() {
	_, err := Decode([]byte("REDIS0009"))
	suite.ErrorIs(err, ErrBadFormat)
	_, err = Decode(append([]byte("TINYDB"), 2, opEnd))
	suite.ErrorIs(err, ErrBadFormat)
	// entry with no keyspace selector
	_, err = Decode(append([]byte("TINYDB"), version, 1))
	suite.ErrorIs(err, ErrBadFormat)
	_, err = Decode(append([]byte("TINYDB"), version, opEnd, 0))
	suite.ErrorIs(err, ErrBadFormat)
}

func TestEntryBytes(t *testing.T) {
	assert := assert.New(t)
	k := data.Key{Name: "k", ExpiresAt: time.UnixMilli(5000)}
	b := EncodeEntryBytes(k, data.SetValue("a", "b"))
	k2, v, err := DecodeEntryBytes(b)
	assert.NoError(err)
	assert.Equal("k", k2.Name)
	assert.True(k2.ExpiresAt.Equal(k.ExpiresAt))
	assert.True(data.SetValue("b", "a").Equal(v))

	_, _, err = DecodeEntryBytes(append(b, 0))
	assert.ErrorIs(err, ErrBadFormat)
	_, _, err = DecodeEntryBytes(b[:len(b)-1])
	assert.ErrorIs(err, ErrBadFormat)
	_, _, err = DecodeEntryBytes([]byte{42})
	assert.ErrorIs(err, ErrBadFormat)
}
