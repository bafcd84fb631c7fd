package resp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags a reply token.
type Kind int

const (
	KindNull Kind = iota
	KindNullArray
	KindInteger
	KindBulk
	KindSimple
	KindError
	KindArray
	// KindNoReply marks a handler that already wrote its own replies.
	KindNoReply
)

// Token is a single reply value. Arrays nest.
type Token struct {
	Kind  Kind
	Str   string
	Int   int64
	Array []Token
}

var (
	OK     = Simple("OK")
	Queued = Simple("QUEUED")
	Pong   = Simple("PONG")
)

// NoReply is returned by handlers that wrote their replies directly.
func NoReply() Token { return Token{Kind: KindNoReply} }

func Null() Token { return Token{Kind: KindNull} }

func NullArray() Token { return Token{Kind: KindNullArray} }

func Integer(n int64) Token { return Token{Kind: KindInteger, Int: n} }

func Bool(b bool) Token {
	if b {
		return Integer(1)
	}
	return Integer(0)
}

func Bulk(s string) Token { return Token{Kind: KindBulk, Str: s} }

func Simple(s string) Token { return Token{Kind: KindSimple, Str: s} }

// Error creates an error reply. msg should begin with an error code such as
// ERR or WRONGTYPE.
func Error(msg string) Token { return Token{Kind: KindError, Str: msg} }

func Errorf(format string, args ...interface{}) Token {
	return Error(fmt.Sprintf(format, args...))
}

func Array(items ...Token) Token {
	if items == nil {
		items = []Token{}
	}
	return Token{Kind: KindArray, Array: items}
}

// BulkArray is an array of bulk strings.
func BulkArray(items ...string) Token {
	tokens := make([]Token, len(items))
	for i, s := range items {
		tokens[i] = Bulk(s)
	}
	return Array(tokens...)
}

// Float formats a score the way clients expect.
func Float(f float64) Token {
	return Bulk(FormatFloat(f))
}

func FormatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

func (t Token) IsError() bool {
	return t.Kind == KindError
}

// Strings returns the string contents of an array of bulk or simple strings.
func (t Token) Strings() ([]string, bool) {
	if t.Kind != KindArray {
		return nil, false
	}
	out := make([]string, len(t.Array))
	for i, item := range t.Array {
		if item.Kind != KindBulk && item.Kind != KindSimple {
			return nil, false
		}
		out[i] = item.Str
	}
	return out, true
}

func (t Token) String() string {
	switch t.Kind {
	case KindNull, KindNullArray:
		return "(nil)"
	case KindInteger:
		return fmt.Sprintf("(integer) %d", t.Int)
	case KindBulk:
		return strconv.Quote(t.Str)
	case KindSimple:
		return t.Str
	case KindError:
		return "(error) " + t.Str
	case KindArray:
		parts := make([]string, len(t.Array))
		for i, item := range t.Array {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "?"
}
