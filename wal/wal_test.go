package wal

import (
	"bytes"
	"encoding/gob"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

func TestLogEmpty(t *testing.T) {
	assert := assert.New(t)
	fs := afero.NewMemMapFs()
	f, _ := fs.Create("log")
	f.Close()
	f, _ = fs.Open("log")
	txns, err := RecoverTxns(f)
	assert.NoError(err)
	assert.Empty(txns, "empty file should be an empty log")
}

func newLog() (afero.Fs, *Writer) {
	fs := afero.NewMemMapFs()
	f, _ := fs.Create("log")
	return fs, New(f)
}

func recoverLog(fs afero.Fs) [][]byte {
	f, _ := fs.Open("log")
	txns, err := RecoverTxns(f)
	if err != nil {
		panic(err)
	}
	return txns
}

func TestLogNoTxns(t *testing.T) {
	assert := assert.New(t)
	fs, w := newLog()
	w.Close()
	txns := recoverLog(fs)
	assert.Empty(txns, "log should have no transactions")
}

func TestLogSingle(t *testing.T) {
	assert := assert.New(t)
	fs, w := newLog()
	w.Add([]byte{1, 2, 3})
	w.Close()
	txns := recoverLog(fs)
	assert.Equal([][]byte{
		{1, 2, 3},
	}, txns, "should recover single txn")
}

func TestLogMultiple(t *testing.T) {
	assert := assert.New(t)
	fs, w := newLog()
	w.Add([]byte{1, 2, 3})
	w.Add([]byte{4})
	w.Sync()
	w.Add([]byte{5})
	w.Close()
	txns := recoverLog(fs)
	assert.Equal([][]byte{
		{1, 2, 3},
		{4},
		{5},
	}, txns, "should recover multiple txns")
}

func TestLogEmptyTxn(t *testing.T) {
	assert := assert.New(t)
	fs, w := newLog()
	w.Add([]byte{1})
	w.Add([]byte{})
	w.Add([]byte{4})
	w.Close()
	txns := recoverLog(fs)
	assert.Equal([][]byte{
		{1},
		// gob decodes an empty slice as nil
		nil,
		{4},
	}, txns, "should recover an empty txn")
}

func TestLogPartialTxn(t *testing.T) {
	assert := assert.New(t)
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	enc.Encode(record{dataRecord, []byte{1}})
	enc.Encode(record{commitRecord, nil})
	enc.Encode(record{dataRecord, []byte{2}})
	txns, err := RecoverTxns(&buf)
	assert.NoError(err)
	assert.Equal([][]byte{{1}}, txns, "uncommitted txn should be dropped")
}

func TestLogTruncatedTail(t *testing.T) {
	assert := assert.New(t)
	var buf bytes.Buffer
	w := New(nopSync{&buf})
	w.Add([]byte{1, 2})
	w.Add([]byte{3, 4})
	b := buf.Bytes()
	txns, err := RecoverTxns(bytes.NewReader(b[:len(b)-2]))
	assert.NoError(err)
	assert.Equal([][]byte{{1, 2}}, txns)
}

func TestLogCorrupt(t *testing.T) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	enc.Encode(record{commitRecord, nil})
	_, err := RecoverTxns(&buf)
	assert.ErrorIs(t, err, ErrCorrupt)
}

type nopSync struct {
	*bytes.Buffer
}

func (nopSync) Sync() error  { return nil }
func (nopSync) Close() error { return nil }
