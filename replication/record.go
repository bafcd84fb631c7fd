package replication

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tchajed/tinydb/resp"
)

// ErrBadRecord is returned for replay records that cannot be decoded.
var ErrBadRecord = errors.New("bad replay record")

// Record is a write command as executed on the master: the keyspace it ran
// against, the command name and its parameters.
type Record struct {
	DB      int
	Command string
	Params  []string
}

// Token encodes r as an array of the keyspace index followed by bulk strings.
func (r Record) Token() resp.Token {
	items := make([]resp.Token, 0, len(r.Params)+2)
	items = append(items, resp.Integer(int64(r.DB)), resp.Bulk(r.Command))
	for _, p := range r.Params {
		items = append(items, resp.Bulk(p))
	}
	return resp.Array(items...)
}

// Args is the command line to execute.
func (r Record) Args() []string {
	return append([]string{r.Command}, r.Params...)
}

func (r Record) String() string {
	return fmt.Sprintf("db%d: %s", r.DB, strings.Join(r.Args(), " "))
}

func badRecord(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRecord, fmt.Sprintf(format, args...))
}

// ParseRecord decodes a record sent by the master. The keyspace index may be
// an integer or a bulk string.
func ParseRecord(t resp.Token) (Record, error) {
	if t.Kind != resp.KindArray {
		return Record{}, badRecord("expected array, got %v", t)
	}
	if len(t.Array) < 2 {
		return Record{}, badRecord("too short: %v", t)
	}
	var db int64
	switch idx := t.Array[0]; idx.Kind {
	case resp.KindInteger:
		db = idx.Int
	case resp.KindBulk, resp.KindSimple:
		n, err := strconv.ParseInt(idx.Str, 10, 32)
		if err != nil {
			return Record{}, badRecord("keyspace index %q", idx.Str)
		}
		db = n
	default:
		return Record{}, badRecord("keyspace index %v", idx)
	}
	if db < 0 {
		return Record{}, badRecord("negative keyspace index %d", db)
	}
	args, ok := resp.Array(t.Array[1:]...).Strings()
	if !ok {
		return Record{}, badRecord("non-string argument in %v", t)
	}
	return Record{DB: int(db), Command: args[0], Params: args[1:]}, nil
}
