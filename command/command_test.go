package command

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/notify"
	"github.com/tchajed/tinydb/resp"
)

type fakeSession struct {
	id    string
	db    int
	attrs map[string]interface{}
	sent  []resp.Token
}

func (s *fakeSession) ID() string { return s.id }
func (s *fakeSession) CurrentDB() int { return s.db }
func (s *fakeSession) SetCurrentDB(i int) { s.db = i }
func (s *fakeSession) RemoveAttr(n string) { delete(s.attrs, n) }
func (s *fakeSession) Send(t resp.Token) error {
	s.sent = append(s.sent, t)
	return nil
}
func (s *fakeSession) Attr(n string) (interface{}, bool) {
	v, ok := s.attrs[n]
	return v, ok
}
func (s *fakeSession) SetAttr(n string, v interface{}) { s.attrs[n] = v }

type fakeServer struct {
	table    *Table
	dbs      []*data.Database
	registry *notify.Registry
	sessions map[string]*fakeSession
	slaveOf  []string
	saves    int
}

func (s *fakeServer) NumDatabases() int { return len(s.dbs) }
func (s *fakeServer) Database(i int) *data.Database { return s.dbs[i] }
func (s *fakeServer) Registry() *notify.Registry { return s.registry }
func (s *fakeServer) Info() Info { return Info{Version: "test", Master: true} }
func (s *fakeServer) Sync(Session) error { return errors.New("not supported") }
func (s *fakeServer) BackgroundSave() error { s.saves++; return nil }
func (s *fakeServer) Save() error { s.saves++; return nil }
func (s *fakeServer) SlaveOf(host, port string) error {
	s.slaveOf = append(s.slaveOf, host+":"+port)
	return nil
}

func (s *fakeServer) Execute(req *Request) resp.Token {
	cmd, ok := s.table.Lookup(req.Command)
	if !ok {
		return ErrUnknownCommand(req.Command)
	}
	db := s.dbs[req.Session.CurrentDB()]
	if reply, ok := cmd.Check(db, req); !ok {
		return reply
	}
	if !cmd.TxIgnore && InTx(req.Session) {
		Enqueue(req.Session, req)
		return resp.Queued
	}
	return cmd.Handler(db, req)
}

type CommandSuite struct {
	suite.Suite
	clock   time.Time
	server  *fakeServer
	session *fakeSession
}

func TestCommandSuite(t *testing.T) {
	suite.Run(t, new(CommandSuite))
}

func (suite *CommandSuite) SetupTest() {
	suite.clock = time.Unix(1000, 0)
	now := func() time.Time { return suite.clock }
	suite.server = &fakeServer{
		table:    DefaultTable(),
		sessions: make(map[string]*fakeSession),
	}
	for i := 0; i < 4; i++ {
		suite.server.dbs = append(suite.server.dbs, data.NewDatabaseWithClock(now))
	}
	suite.server.registry = notify.New(data.NewDatabase(), func(ch string, t resp.Token) error {
		return suite.server.sessions[ch].Send(t)
	}, nil)
	suite.session = suite.newSession("s1")
}

func (suite *CommandSuite) newSession(id string) *fakeSession {
	s := &fakeSession{id: id, attrs: make(map[string]interface{})}
	suite.server.sessions[id] = s
	return s
}

func (suite *CommandSuite) run(args string) resp.Token {
	return suite.runAs(suite.session, args)
}

func (suite *CommandSuite) runAs(s *fakeSession, args string) resp.Token {
	return suite.server.Execute(NewRequest(suite.server, s, strings.Fields(args)))
}

func (suite *CommandSuite) db() *data.Database {
	return suite.server.dbs[suite.session.db]
}

func (suite *CommandSuite) TestTable() {
	for _, n := range []string{"GET", "SET", "ZRANGEBYSCORE", "REPLICAOF", "SLAVEOF", "EXEC"} {
		_, ok := suite.server.table.Lookup(n)
		suite.True(ok, n)
	}
	c, _ := suite.server.table.Lookup("get")
	suite.True(c.ReadOnly)
	c, _ = suite.server.table.Lookup("set")
	suite.False(c.ReadOnly)
	suite.Panics(func() { suite.server.table.Register(&Command{Name: "get"}) })
}

func (suite *CommandSuite) TestArity() {
	suite.Equal(resp.Error("ERR wrong number of arguments for 'get' command"), suite.run("GET"))
}

func (suite *CommandSuite) TestWrongType() {
	suite.run("SET k v")
	suite.Equal(ErrWrongType, suite.run("SADD k a"))
	suite.Equal(ErrWrongType, suite.run("LPUSH k a"))
	suite.Equal(ErrWrongType, suite.run("SUNION k"))
	v, _ := suite.db().Get("k")
	suite.Equal("v", v.Str(), "a type error leaves the value alone")
}

func (suite *CommandSuite) TestSaddSrem() {
	suite.Equal(resp.Integer(1), suite.run("SADD key a"))
	suite.Equal(resp.Integer(0), suite.run("SADD key a"))
	suite.Equal(resp.Integer(1), suite.run("SREM key a"))
	suite.False(suite.db().ContainsKey("key"))
	suite.Equal(resp.Simple("none"), suite.run("TYPE key"))
	suite.Equal(resp.Integer(1), suite.run("SADD key a"))
}

func (suite *CommandSuite) TestSetOps() {
	suite.run("SADD a 1 2 3")
	suite.run("SADD b 2 3 4")
	suite.Equal(resp.BulkArray("1", "2", "3", "4"), suite.run("SUNION a b"))
	suite.Equal(resp.BulkArray("2", "3"), suite.run("SINTER a b"))
	suite.Equal(resp.BulkArray("1"), suite.run("SDIFF a b"))
	suite.Equal(resp.Integer(3), suite.run("SCARD a"))
	suite.Equal(resp.Integer(1), suite.run("SISMEMBER a 1"))
	suite.Equal(resp.BulkArray("1", "2", "3"), suite.run("SMEMBERS a"))
	popped := suite.run("SPOP a")
	suite.Equal(resp.KindBulk, popped.Kind)
	suite.Equal(resp.Integer(2), suite.run("SCARD a"))
}

func (suite *CommandSuite) TestSpopReplaysAsSrem() {
	suite.run("SADD a x")
	req := NewRequest(suite.server, suite.session, []string{"spop", "a"})
	suite.Equal(resp.Bulk("x"), suite.server.Execute(req))
	name, params := req.Replay()
	suite.Equal("SREM", name)
	suite.Equal([]string{"a", "x"}, params)

	req = NewRequest(suite.server, suite.session, []string{"set", "k", "v"})
	suite.server.Execute(req)
	name, params = req.Replay()
	suite.Equal("SET", name)
	suite.Equal([]string{"k", "v"}, params)
}

func (suite *CommandSuite) TestStrings() {
	suite.Equal(resp.Null(), suite.run("GET k"))
	suite.Equal(resp.OK, suite.run("SET k v"))
	suite.Equal(resp.Bulk("v"), suite.run("GET k"))
	suite.Equal(resp.Null(), suite.run("SET k w NX"))
	suite.Equal(resp.OK, suite.run("SET k w XX"))
	suite.Equal(resp.Null(), suite.run("SET other w XX"))
	suite.Equal(resp.Bulk("w"), suite.run("GETSET k x"))
	suite.Equal(resp.Integer(3), suite.run("APPEND k yz"))
	suite.Equal(resp.Integer(3), suite.run("STRLEN k"))
	suite.Equal(ErrSyntax, suite.run("SET k v BOGUS"))
	suite.Equal(resp.OK, suite.run("MSET a 1 b 2"))
	suite.Equal(resp.Array(resp.Bulk("1"), resp.Bulk("2"), resp.Null()), suite.run("MGET a b c"))
	suite.Equal(resp.Integer(0), suite.run("SETNX a 5"))
}

func (suite *CommandSuite) TestSetExpiry() {
	suite.run("SET k v EX 10")
	suite.Equal(resp.Integer(10), suite.run("TTL k"))
	suite.Equal(resp.Integer(10000), suite.run("PTTL k"))
	suite.clock = suite.clock.Add(10 * time.Second)
	suite.Equal(resp.Null(), suite.run("GET k"))
	suite.Equal(resp.Integer(-2), suite.run("TTL k"))
}

func (suite *CommandSuite) TestIncr() {
	suite.Equal(resp.Integer(1), suite.run("INCR n"))
	suite.Equal(resp.Integer(11), suite.run("INCRBY n 10"))
	suite.Equal(resp.Integer(10), suite.run("DECR n"))
	suite.Equal(resp.Integer(5), suite.run("DECRBY n 5"))
	suite.run("SET s abc")
	suite.Equal(ErrNotInteger, suite.run("INCR s"))
	suite.Equal(ErrNotInteger, suite.run("INCRBY n x"))
	suite.run("SET big 9223372036854775807")
	suite.Equal(ErrNotInteger, suite.run("INCR big"))
}

func (suite *CommandSuite) TestExpire() {
	suite.run("SET k v")
	suite.Equal(resp.Integer(-1), suite.run("TTL k"))
	suite.Equal(resp.Integer(1), suite.run("EXPIRE k 100"))
	suite.Equal(resp.Integer(100), suite.run("TTL k"))
	suite.Equal(resp.Integer(1), suite.run("PERSIST k"))
	suite.Equal(resp.Integer(-1), suite.run("TTL k"))
	suite.Equal(resp.Integer(0), suite.run("EXPIRE missing 100"))
	suite.Equal(ErrNotInteger, suite.run("EXPIRE k soon"))
}

func (suite *CommandSuite) TestExpireZero() {
	suite.run("SET k v")
	suite.Equal(resp.Integer(1), suite.run("EXPIRE k 0"))
	suite.Equal(resp.Null(), suite.run("GET k"))
	suite.Equal(resp.Integer(0), suite.run("EXISTS k"))
}

func (suite *CommandSuite) TestKeys() {
	suite.run("MSET apple 1 avocado 2 banana 3")
	suite.Equal(resp.BulkArray("apple", "avocado", "banana"), suite.run("KEYS *"))
	suite.Equal(resp.BulkArray("apple", "avocado"), suite.run("KEYS a*"))
	suite.Equal(resp.Integer(2), suite.run("DEL apple banana missing"))
	suite.Equal(resp.Integer(1), suite.run("DBSIZE"))
	suite.Equal(resp.OK, suite.run("RENAME avocado pear"))
	suite.Equal(resp.Bulk("2"), suite.run("GET pear"))
	suite.Equal(ErrNoSuchKey, suite.run("RENAME avocado x"))
}

func (suite *CommandSuite) TestKeysGlob() {
	suite.run("MSET user/1 a user:2 b users c ux d")
	suite.Equal(resp.BulkArray("user/1", "user:2", "users"), suite.run("KEYS user*"))
	suite.Equal(resp.BulkArray("user/1"), suite.run("KEYS user?1"))
	suite.Equal(resp.BulkArray("ux"), suite.run("KEYS u?"))
}

func (suite *CommandSuite) TestSelect() {
	suite.run("SET k 0")
	suite.Equal(resp.OK, suite.run("SELECT 2"))
	suite.Equal(2, suite.session.db)
	suite.Equal(resp.Null(), suite.run("GET k"))
	suite.Equal(ErrDBIndex, suite.run("SELECT 4"))
	suite.Equal(ErrNotInteger, suite.run("SELECT x"))
	suite.run("SET k 2")
	suite.Equal(resp.OK, suite.run("FLUSHALL"))
	suite.True(suite.server.dbs[0].IsEmpty())
	suite.True(suite.server.dbs[2].IsEmpty())
}

func (suite *CommandSuite) TestHashes() {
	suite.Equal(resp.Integer(2), suite.run("HSET h a 1 b 2"))
	suite.Equal(resp.Integer(0), suite.run("HSET h a 3"))
	suite.Equal(resp.Bulk("3"), suite.run("HGET h a"))
	suite.Equal(resp.Null(), suite.run("HGET h z"))
	suite.Equal(resp.Null(), suite.run("HGET missing z"))
	suite.Equal(resp.BulkArray("a", "3", "b", "2"), suite.run("HGETALL h"))
	suite.Equal(resp.BulkArray("a", "b"), suite.run("HKEYS h"))
	suite.Equal(resp.BulkArray("3", "2"), suite.run("HVALS h"))
	suite.Equal(resp.Integer(7), suite.run("HINCRBY h a 4"))
	suite.Equal(resp.Integer(1), suite.run("HEXISTS h b"))
	suite.Equal(resp.Integer(2), suite.run("HDEL h a b c"))
	suite.Equal(resp.Integer(0), suite.run("HLEN h"))
	suite.False(suite.db().ContainsKey("h"))
	suite.Equal(ErrArity("HSET"), suite.run("HSET h a 1 b"))
}

func (suite *CommandSuite) TestLists() {
	suite.Equal(resp.Integer(3), suite.run("RPUSH l a b c"))
	suite.Equal(resp.Integer(5), suite.run("LPUSH l y z"))
	suite.Equal(resp.BulkArray("z", "y", "a", "b", "c"), suite.run("LRANGE l 0 -1"))
	suite.Equal(resp.BulkArray("b", "c"), suite.run("LRANGE l -2 100"))
	suite.Equal(resp.Array(), suite.run("LRANGE l 3 1"))
	suite.Equal(resp.Bulk("a"), suite.run("LINDEX l 2"))
	suite.Equal(resp.Null(), suite.run("LINDEX l 10"))
	suite.Equal(resp.OK, suite.run("LSET l 0 first"))
	suite.Equal(ErrOutOfRange, suite.run("LSET l 10 x"))
	suite.Equal(ErrNoSuchKey, suite.run("LSET nolist 0 x"))
	suite.Equal(resp.Bulk("first"), suite.run("LPOP l"))
	suite.Equal(resp.Bulk("c"), suite.run("RPOP l"))
	suite.Equal(resp.Integer(3), suite.run("LLEN l"))
	suite.Equal(resp.Null(), suite.run("LPOP empty"))
}

func (suite *CommandSuite) TestSortedSets() {
	suite.Equal(resp.Integer(3), suite.run("ZADD z 1 a 2 b 3 c"))
	suite.Equal(resp.Integer(0), suite.run("ZADD z 5 a"))
	suite.Equal(resp.Bulk("5"), suite.run("ZSCORE z a"))
	suite.Equal(resp.Integer(2), suite.run("ZRANK z a"))
	suite.Equal(resp.Null(), suite.run("ZRANK z missing"))
	suite.Equal(resp.Integer(3), suite.run("ZCARD z"))
	suite.Equal(resp.BulkArray("b", "c", "a"), suite.run("ZRANGE z 0 -1"))
	suite.Equal(resp.BulkArray("b", "2", "c", "3"), suite.run("ZRANGE z 0 1 WITHSCORES"))
	suite.Equal(resp.BulkArray("a", "c", "b"), suite.run("ZREVRANGE z 0 -1"))
	suite.Equal(resp.BulkArray("a"), suite.run("ZREVRANGE z 0 0"))
	suite.Equal(resp.BulkArray("c", "a"), suite.run("ZRANGEBYSCORE z (2 +inf"))
	suite.Equal(resp.BulkArray("b", "c"), suite.run("ZRANGEBYSCORE z -inf (5"))
	suite.Equal(resp.Bulk("2.5"), suite.run("ZINCRBY z 0.5 b"))
	suite.Equal(resp.Integer(1), suite.run("ZREM z a x"))
	suite.Equal(ErrNotFloat, suite.run("ZADD z x a"))
	suite.Equal(resp.Error("ERR min or max is not a float"), suite.run("ZRANGEBYSCORE z a b"))
}

func (suite *CommandSuite) TestBitsets() {
	suite.Equal(resp.Integer(0), suite.run("SETBIT b 7 1"))
	suite.Equal(resp.Integer(1), suite.run("SETBIT b 7 1"))
	suite.Equal(resp.Integer(0), suite.run("SETBIT b 100 1"))
	suite.Equal(resp.Integer(1), suite.run("GETBIT b 100"))
	suite.Equal(resp.Integer(0), suite.run("GETBIT b 3"))
	suite.Equal(resp.Integer(2), suite.run("BITCOUNT b"))
	suite.Equal(resp.Integer(1), suite.run("SETBIT b 7 0"))
	suite.Equal(resp.Integer(1), suite.run("BITCOUNT b"))
	suite.Equal(resp.Simple("bitset"), suite.run("TYPE b"))
	suite.True(suite.run("SETBIT b -1 1").IsError())
	suite.True(suite.run("SETBIT b 1 2").IsError())
}

func (suite *CommandSuite) TestPubSub() {
	other := suite.newSession("s2")
	suite.Equal(resp.NoReply(), suite.runAs(other, "SUBSCRIBE news sports"))
	suite.Equal([]resp.Token{
		resp.Array(resp.Bulk("subscribe"), resp.Bulk("news"), resp.Integer(1)),
		resp.Array(resp.Bulk("subscribe"), resp.Bulk("sports"), resp.Integer(2)),
	}, other.sent)
	other.sent = nil

	suite.Equal(resp.Integer(1), suite.run("PUBLISH news hello"))
	suite.Equal(resp.Integer(0), suite.run("PUBLISH weather hello"))
	suite.Equal([]resp.Token{
		resp.Array(resp.Bulk("message"), resp.Bulk("news"), resp.Bulk("hello")),
	}, other.sent)

	UnsubscribeAll(suite.server.registry, other)
	suite.Equal(resp.Integer(0), suite.run("PUBLISH news hello"))
}

func (suite *CommandSuite) TestUnsubscribe() {
	suite.run("SUBSCRIBE a b")
	suite.session.sent = nil
	suite.Equal(resp.NoReply(), suite.run("UNSUBSCRIBE"))
	suite.Equal([]resp.Token{
		resp.Array(resp.Bulk("unsubscribe"), resp.Bulk("a"), resp.Integer(1)),
		resp.Array(resp.Bulk("unsubscribe"), resp.Bulk("b"), resp.Integer(0)),
	}, suite.session.sent)
	suite.Equal(resp.Array(resp.Bulk("unsubscribe"), resp.Null(), resp.Integer(0)), suite.run("UNSUBSCRIBE"))
}

func (suite *CommandSuite) TestTransaction() {
	suite.Equal(resp.OK, suite.run("MULTI"))
	suite.Equal(resp.Error("ERR MULTI calls can not be nested"), suite.run("MULTI"))
	suite.Equal(resp.Queued, suite.run("SET a 1"))
	suite.Equal(resp.Queued, suite.run("INCR a"))
	suite.False(suite.db().ContainsKey("a"))
	suite.Equal(resp.Array(resp.OK, resp.Integer(2)), suite.run("EXEC"))
	suite.Equal(resp.Bulk("2"), suite.run("GET a"))
	suite.Equal(resp.Error("ERR EXEC without MULTI"), suite.run("EXEC"))
}

func (suite *CommandSuite) TestDiscard() {
	suite.run("MULTI")
	suite.run("SET a 1")
	suite.Equal(resp.OK, suite.run("DISCARD"))
	suite.False(suite.db().ContainsKey("a"))
	suite.Equal(resp.Error("ERR DISCARD without MULTI"), suite.run("DISCARD"))
}

func (suite *CommandSuite) TestSyncInTransaction() {
	suite.run("MULTI")
	suite.Equal(resp.Error("ERR SYNC is not allowed inside MULTI"), suite.run("SYNC"))
	suite.Equal(resp.Array(), suite.run("EXEC"))
}

func (suite *CommandSuite) TestConnection() {
	suite.Equal(resp.Pong, suite.run("PING"))
	suite.Equal(resp.Bulk("hi"), suite.run("PING hi"))
	suite.Equal(resp.Bulk("hi"), suite.run("ECHO hi"))
	req := NewRequest(suite.server, suite.session, []string{"quit"})
	suite.Equal(resp.OK, suite.server.Execute(req))
	suite.True(req.IsExit())
}

func (suite *CommandSuite) TestServerCommands() {
	suite.Equal(resp.OK, suite.run("SLAVEOF NO ONE"))
	suite.Equal(resp.OK, suite.run("REPLICAOF localhost 7081"))
	suite.Equal([]string{"NO:ONE", "localhost:7081"}, suite.server.slaveOf)
	suite.Equal(resp.OK, suite.run("SAVE"))
	suite.Equal(resp.Simple("Background saving started"), suite.run("BGSAVE"))
	suite.Equal(2, suite.server.saves)
	suite.True(suite.run("SYNC").IsError())
	suite.Equal(resp.Array(resp.Bulk("master"), resp.Integer(0)), suite.run("ROLE"))

	suite.run("SET k v")
	info := suite.run("INFO").Str
	suite.Contains(info, "role:master")
	suite.Contains(info, "db0:keys=1,expires=0")
	suite.NotContains(suite.run("INFO replication").Str, "# Keyspace")
	suite.Len(suite.run("TIME").Array, 2)
}
