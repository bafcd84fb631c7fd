package resp

import (
	"bufio"
	"io"
	"strconv"
)

// Writer encodes tokens to a buffered stream. Call Flush to send them.
type Writer struct {
	bw *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{bufio.NewWriter(w)}
}

// Append encodes t onto b.
func Append(b []byte, t Token) []byte {
	switch t.Kind {
	case KindNull:
		return append(b, "$-1\r\n"...)
	case KindNullArray:
		return append(b, "*-1\r\n"...)
	case KindInteger:
		b = append(b, ':')
		b = strconv.AppendInt(b, t.Int, 10)
		return append(b, '\r', '\n')
	case KindBulk:
		b = append(b, '$')
		b = strconv.AppendInt(b, int64(len(t.Str)), 10)
		b = append(b, '\r', '\n')
		b = append(b, t.Str...)
		return append(b, '\r', '\n')
	case KindSimple:
		b = append(b, '+')
		b = append(b, t.Str...)
		return append(b, '\r', '\n')
	case KindError:
		b = append(b, '-')
		b = append(b, t.Str...)
		return append(b, '\r', '\n')
	case KindArray:
		b = append(b, '*')
		b = strconv.AppendInt(b, int64(len(t.Array)), 10)
		b = append(b, '\r', '\n')
		for _, item := range t.Array {
			b = Append(b, item)
		}
		return b
	case KindNoReply:
		return b
	}
	panic("resp: unknown token kind")
}

// Encode returns the wire form of t.
func Encode(t Token) []byte {
	return Append(nil, t)
}

func (w *Writer) WriteToken(t Token) error {
	_, err := w.bw.Write(Encode(t))
	return err
}

// WriteCommand writes args as an array of bulk strings.
func (w *Writer) WriteCommand(args ...string) error {
	return w.WriteToken(BulkArray(args...))
}

func (w *Writer) Flush() error {
	return w.bw.Flush()
}
