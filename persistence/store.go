package persistence

import (
	"bytes"
	"fmt"

	"github.com/tchajed/tinydb/fs"
	"github.com/tchajed/tinydb/snapshot"
)

// SnapshotStore holds the most recent snapshot.
type SnapshotStore interface {
	Save(spaces []snapshot.Keyspace) error
	// Load returns the saved keyspaces, or none if nothing has been saved.
	Load() ([]snapshot.Keyspace, error)
	Close() error
}

// DumpFile is the snapshot file written by FileStore.
const DumpFile = "dump.tdb"

// FileStore keeps the snapshot in a single file, replaced atomically on each
// save.
type FileStore struct {
	fs fs.Filesys
}

func NewFileStore(filesys fs.Filesys) *FileStore {
	return &FileStore{fs: filesys}
}

func (s *FileStore) Save(spaces []snapshot.Keyspace) error {
	var buf bytes.Buffer
	if err := snapshot.EncodeKeyspaces(&buf, spaces); err != nil {
		return err
	}
	return catch(func() { s.fs.AtomicCreateWith(DumpFile, buf.Bytes()) })
}

func (s *FileStore) Load() (spaces []snapshot.Keyspace, err error) {
	var b []byte
	err = catch(func() {
		if s.fs.Exists(DumpFile) {
			b = s.fs.ReadAll(DumpFile)
		}
	})
	if err != nil || b == nil {
		return nil, err
	}
	return snapshot.Decode(b)
}

func (s *FileStore) Close() error {
	return nil
}

// catch converts a panic from the fs layer into an error.
func catch(f func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	f()
	return nil
}
