package resp

import (
	"bytes"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("+OK\r\n", string(Encode(OK)))
	assert.Equal("-ERR bad\r\n", string(Encode(Error("ERR bad"))))
	assert.Equal(":-3\r\n", string(Encode(Integer(-3))))
	assert.Equal("$5\r\nhello\r\n", string(Encode(Bulk("hello"))))
	assert.Equal("$-1\r\n", string(Encode(Null())))
	assert.Equal("*-1\r\n", string(Encode(NullArray())))
	assert.Equal("*0\r\n", string(Encode(Array())))
	assert.Equal("*2\r\n$1\r\na\r\n*1\r\n:1\r\n",
		string(Encode(Array(Bulk("a"), Array(Integer(1))))))
}

func TestReadCommandArray(t *testing.T) {
	assert := assert.New(t)
	r := NewReader(strings.NewReader("*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n*1\r\n$4\r\nPING\r\n"))
	args, err := r.ReadCommand()
	assert.NoError(err)
	assert.Equal([]string{"GET", "key"}, args)
	args, err = r.ReadCommand()
	assert.NoError(err)
	assert.Equal([]string{"PING"}, args)
	_, err = r.ReadCommand()
	assert.Equal(io.EOF, err)
}

func TestReadCommandBinarySafe(t *testing.T) {
	r := NewReader(strings.NewReader("*2\r\n$3\r\nSET\r\n$4\r\na\r\nb\r\n"))
	args, err := r.ReadCommand()
	assert.NoError(t, err)
	assert.Equal(t, []string{"SET", "a\r\nb"}, args)
}

func TestReadInline(t *testing.T) {
	assert := assert.New(t)
	r := NewReader(strings.NewReader("\r\nset  a b\r\nPING\n"))
	args, err := r.ReadCommand()
	assert.NoError(err)
	assert.Equal([]string{"set", "a", "b"}, args)
	args, err = r.ReadCommand()
	assert.NoError(err)
	assert.Equal([]string{"PING"}, args)
}

func TestProtocolErrorRecovers(t *testing.T) {
	assert := assert.New(t)
	r := NewReader(strings.NewReader("*x\r\n*1\r\n$4\r\nPING\r\n"))
	_, err := r.ReadCommand()
	assert.True(IsProtocolError(err))
	args, err := r.ReadCommand()
	assert.NoError(err)
	assert.Equal([]string{"PING"}, args)
}

func TestProtocolErrors(t *testing.T) {
	for _, in := range []string{
		"*1\r\n:1\r\n",
		"*1\r\n$-1\r\n",
		"*1\r\n$2\r\nabcd\r\n",
	} {
		_, err := NewReader(strings.NewReader(in)).ReadCommand()
		assert.True(t, IsProtocolError(err), "input %q", in)
	}
}

func TestTruncated(t *testing.T) {
	_, err := NewReader(strings.NewReader("*2\r\n$3\r\nGET\r\n$3\r\nke")).ReadCommand()
	assert.Equal(t, io.ErrUnexpectedEOF, err)
}

func TestTokenRoundtrip(t *testing.T) {
	assert := assert.New(t)
	tokens := []Token{
		OK, Error("WRONGTYPE x"), Integer(42), Bulk(""), Null(), NullArray(),
		Array(Bulk("a"), Integer(2), Array(Simple("b"))),
	}
	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, tok := range tokens {
		assert.NoError(w.WriteToken(tok))
	}
	assert.NoError(w.Flush())
	r := NewReader(&buf)
	for _, tok := range tokens {
		got, err := r.ReadToken()
		assert.NoError(err)
		assert.Equal(tok, got)
	}
}

func TestWriteCommand(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.WriteCommand("SYNC")
	w.Flush()
	assert.Equal(t, "*1\r\n$4\r\nSYNC\r\n", buf.String())
}

func TestStrings(t *testing.T) {
	s, ok := BulkArray("a", "b").Strings()
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, s)
	_, ok = Array(Integer(1)).Strings()
	assert.False(t, ok)
}

func TestFormatFloat(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("1.5", FormatFloat(1.5))
	assert.Equal("3", FormatFloat(3))
	assert.Equal("inf", FormatFloat(math.Inf(1)))
	assert.Equal("-inf", FormatFloat(math.Inf(-1)))
}
