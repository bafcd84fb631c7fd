package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/resp"
)

// Handler executes a command against the session's selected keyspace.
//
// Handlers report client errors as error tokens. A panic inside a handler is
// a fault: the pipeline recovers it and replies with ErrInternal.
type Handler func(db *data.Database, req *Request) resp.Token

// Command is the static description of one command.
type Command struct {
	Name    string
	Handler Handler
	// ReadOnly commands never modify a keyspace; they run on slaves and are
	// not replicated.
	ReadOnly bool
	// MinParams is the minimum number of parameters after the name.
	MinParams int
	// Type is the value type required at the first parameter's key, or
	// data.TypeNone for any.
	Type data.DataType
	// TxIgnore commands run immediately inside MULTI instead of being queued.
	TxIgnore bool
}

// Error replies.
var (
	ErrReadOnly   = resp.Error("READONLY You can't write against a read only slave.")
	ErrWrongType  = resp.Error(data.ErrWrongType.Error())
	ErrNotInteger = resp.Error("ERR value is not an integer or out of range")
	ErrNotFloat   = resp.Error("ERR value is not a valid float")
	ErrSyntax     = resp.Error("ERR syntax error")
	ErrNoSuchKey  = resp.Error("ERR no such key")
	ErrInternal   = resp.Error("ERR internal error")
	ErrDBIndex    = resp.Error("ERR DB index is out of range")
	ErrOutOfRange = resp.Error("ERR index out of range")
)

func ErrUnknownCommand(name string) resp.Token {
	return resp.Errorf("ERR unknown command '%s'", name)
}

func ErrArity(name string) resp.Token {
	return resp.Errorf("ERR wrong number of arguments for '%s' command", strings.ToLower(name))
}

// Check validates req's parameters and the type of its target key. It returns
// an error token and false if the handler should not run.
func (c *Command) Check(db *data.Database, req *Request) (resp.Token, bool) {
	if req.Length() < c.MinParams {
		return ErrArity(c.Name), false
	}
	if c.Type != data.TypeNone && req.Length() > 0 {
		if v, ok := db.Get(req.Param(0)); ok && v.Type() != c.Type {
			return ErrWrongType, false
		}
	}
	return resp.Token{}, true
}

// Table maps upper-case command names to descriptors.
type Table struct {
	commands map[string]*Command
}

func NewTable() *Table {
	return &Table{commands: make(map[string]*Command)}
}

func (t *Table) Register(c *Command) {
	name := strings.ToUpper(c.Name)
	if _, ok := t.commands[name]; ok {
		panic(fmt.Errorf("command %s registered twice", name))
	}
	c.Name = name
	t.commands[name] = c
}

// Alias makes alias refer to the same descriptor as name.
func (t *Table) Alias(alias, name string) {
	c := t.commands[strings.ToUpper(name)]
	if c == nil {
		panic(fmt.Errorf("alias for unknown command %s", name))
	}
	t.commands[strings.ToUpper(alias)] = c
}

// Lookup finds a command by name (case-insensitive).
func (t *Table) Lookup(name string) (*Command, bool) {
	c, ok := t.commands[strings.ToUpper(name)]
	return c, ok
}

// Names lists the registered names, including aliases.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.commands))
	for n := range t.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DefaultTable has every built-in command.
func DefaultTable() *Table {
	t := NewTable()
	registerConnection(t)
	registerServer(t)
	registerKeys(t)
	registerStrings(t)
	registerHashes(t)
	registerLists(t)
	registerSets(t)
	registerSortedSets(t)
	registerBitsets(t)
	registerPubSub(t)
	registerTransactions(t)
	return t
}

func parseInt(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	return n, err == nil
}

func parseFloat(s string) (float64, bool) {
	switch strings.ToLower(s) {
	case "inf", "+inf":
		return data.PosInf.Score, true
	case "-inf":
		return data.NegInf.Score, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != f {
		return 0, false
	}
	return f, true
}

// update merges fn into the value stored at name. It reports false, leaving the
// value alone, if the stored value is not of def's type. The type check runs
// under the key's lock.
func update(db *data.Database, name string, def data.Value, fn func(cur data.Value) data.Value) (data.Value, bool) {
	wrong := false
	v := db.Merge(data.SafeKey(name), def, func(cur, def data.Value) data.Value {
		if cur.Type() != def.Type() {
			wrong = true
			return cur
		}
		return fn(cur)
	})
	return v, !wrong
}

// lookup reads the value at name, reporting false on a type mismatch. An absent
// key reads as def.
func lookup(db *data.Database, name string, def data.Value) (data.Value, bool) {
	v, ok := db.Get(name)
	if !ok {
		return def, true
	}
	return v, v.Type() == def.Type()
}
