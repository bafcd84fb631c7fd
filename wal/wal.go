package wal

// Atomic storage for binary blobs
//
// Supports storing binary blobs ("transactions") atomically with respect to
// crashes. The persistence layer uses it as the command log: each executed
// write is one transaction.
//
// API:
// - Add: commits a transaction
// - Recover: returns successfully committed transactions
//
// Each transaction is a gob-encoded data record followed by a commit record.
// Add does not sync; callers batch transactions and call Sync.
//
// A log is cleared by truncating (recreating) the file; a gob stream must not
// be appended to by a second encoder, so a Writer always starts a new file.

import (
	"encoding/gob"
	"errors"
	"fmt"
	"io"
)

type recordType uint8

const (
	invalidRecord recordType = iota
	dataRecord
	commitRecord
)

type record struct {
	Type recordType
	Data []byte
}

var ErrCorrupt = errors.New("wal: corrupt log")

type LogFile interface {
	io.WriteCloser
	Sync() error
}

type Writer struct {
	log LogFile
	enc *gob.Encoder
}

func New(f LogFile) *Writer {
	return &Writer{f, gob.NewEncoder(f)}
}

// Add appends a transaction.
func (l *Writer) Add(data []byte) error {
	if err := l.enc.Encode(record{dataRecord, data}); err != nil {
		return err
	}
	return l.enc.Encode(record{commitRecord, nil})
}

// Sync makes all added transactions durable.
func (l *Writer) Sync() error {
	return l.log.Sync()
}

func (l *Writer) Close() error {
	if err := l.log.Sync(); err != nil {
		l.log.Close()
		return err
	}
	return l.log.Close()
}

// RecoverTxns returns the committed transactions in log. A trailing partial
// transaction is ignored; records out of order are ErrCorrupt.
func RecoverTxns(log io.Reader) (txns [][]byte, err error) {
	dec := gob.NewDecoder(log)
	for {
		var data record
		err := dec.Decode(&data)
		if err != nil {
			// interpret this as a partial transaction
			return txns, nil
		}
		if data.Type != dataRecord {
			return txns, fmt.Errorf("%w: expected data record, got %d", ErrCorrupt, data.Type)
		}
		var commit record
		err = dec.Decode(&commit)
		if err != nil {
			// data record was not successfully committed, so ignore it
			return txns, nil
		}
		if commit.Type != commitRecord {
			return txns, fmt.Errorf("%w: expected commit record, got %d", ErrCorrupt, commit.Type)
		}
		txns = append(txns, data.Data)
	}
}
