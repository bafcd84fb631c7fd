package resp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Request framing
//
// Clients send commands as arrays of bulk strings:
//
//	*<n>\r\n $<len>\r\n<bytes>\r\n ...
//
// A line that does not start with '*' is an inline command, split on
// whitespace. Malformed frames produce an error wrapping ErrProtocol; the rest
// of the offending line has been consumed, so the caller can reply and keep
// reading.

// ErrProtocol marks a malformed frame.
var ErrProtocol = errors.New("Protocol error")

const (
	maxBulkLen  = 512 << 20
	maxArrayLen = 1 << 20
)

type Reader struct {
	br *bufio.Reader
}

func NewReader(r io.Reader) *Reader {
	return &Reader{bufio.NewReader(r)}
}

func protocolErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// IsProtocolError reports whether err came from a malformed frame rather than
// the underlying connection.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrProtocol)
}

func (r *Reader) readLine() (string, error) {
	s, err := r.br.ReadString('\n')
	if err != nil {
		if err == io.EOF && len(s) > 0 {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimSuffix(s[:len(s)-1], "\r"), nil
}

func (r *Reader) readLength(line string, max int) (int, error) {
	n, err := strconv.Atoi(line[1:])
	if err != nil || n < -1 || n > max {
		return 0, protocolErr("invalid length %q", line)
	}
	return n, nil
}

func (r *Reader) readBulk(n int) (string, error) {
	buf := make([]byte, n+2)
	if _, err := io.ReadFull(r.br, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	if buf[n] != '\r' || buf[n+1] != '\n' {
		return "", protocolErr("bulk string not terminated by CRLF")
	}
	return string(buf[:n]), nil
}

// ReadCommand reads the next command as a list of arguments. Empty inline lines
// are skipped.
func (r *Reader) ReadCommand() ([]string, error) {
	for {
		line, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if len(line) == 0 {
			continue
		}
		if line[0] != '*' {
			args := strings.Fields(line)
			if len(args) == 0 {
				continue
			}
			return args, nil
		}
		n, err := r.readLength(line, maxArrayLen)
		if err != nil {
			return nil, err
		}
		if n <= 0 {
			continue
		}
		args := make([]string, 0, n)
		for i := 0; i < n; i++ {
			hdr, err := r.readLine()
			if err != nil {
				return nil, err
			}
			if len(hdr) == 0 || hdr[0] != '$' {
				return nil, protocolErr("expected '$', got %q", hdr)
			}
			size, err := r.readLength(hdr, maxBulkLen)
			if err != nil {
				return nil, err
			}
			if size < 0 {
				return nil, protocolErr("null bulk string in command")
			}
			s, err := r.readBulk(size)
			if err != nil {
				return nil, err
			}
			args = append(args, s)
		}
		return args, nil
	}
}

// ReadToken reads a single reply token of any kind.
func (r *Reader) ReadToken() (Token, error) {
	line, err := r.readLine()
	if err != nil {
		return Token{}, err
	}
	if len(line) == 0 {
		return Token{}, protocolErr("empty line")
	}
	switch line[0] {
	case '+':
		return Simple(line[1:]), nil
	case '-':
		return Error(line[1:]), nil
	case ':':
		n, err := strconv.ParseInt(line[1:], 10, 64)
		if err != nil {
			return Token{}, protocolErr("invalid integer %q", line)
		}
		return Integer(n), nil
	case '$':
		n, err := r.readLength(line, maxBulkLen)
		if err != nil {
			return Token{}, err
		}
		if n < 0 {
			return Null(), nil
		}
		s, err := r.readBulk(n)
		if err != nil {
			return Token{}, err
		}
		return Bulk(s), nil
	case '*':
		n, err := r.readLength(line, maxArrayLen)
		if err != nil {
			return Token{}, err
		}
		if n < 0 {
			return NullArray(), nil
		}
		items := make([]Token, 0, n)
		for i := 0; i < n; i++ {
			t, err := r.ReadToken()
			if err != nil {
				return Token{}, err
			}
			items = append(items, t)
		}
		return Array(items...), nil
	}
	return Token{}, protocolErr("unexpected type byte %q", line[0])
}
