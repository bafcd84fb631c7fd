package leveldb

import (
	"fmt"

	"github.com/jmhodges/levigo"
	"github.com/tchajed/tinydb/snapshot"
)

// Store is a snapshot store backed by LevelDB.
//
// Each entry is a LevelDB record: the key is the keyspace index byte followed
// by the entry's name, and the value is snapshot.EncodeEntryBytes. A save
// replaces the previous snapshot in one write batch.
type Store struct {
	db *levigo.DB
	ro *levigo.ReadOptions
	wo *levigo.WriteOptions
}

func levelDbOpts() *levigo.Options {
	opts := levigo.NewOptions()
	opts.SetCreateIfMissing(true)
	opts.SetCompression(levigo.NoCompression)

	// performance-related configuration
	cache := levigo.NewLRUCache(0)
	opts.SetCache(cache)
	// 4MB is the default
	opts.SetWriteBufferSize(4 * 1024 * 1024)

	return opts
}

// Open opens (creating if needed) a LevelDB store at path.
func Open(path string) (*Store, error) {
	db, err := levigo.Open(path, levelDbOpts())
	if err != nil {
		return nil, fmt.Errorf("leveldb: opening %s: %w", path, err)
	}
	ro := levigo.NewReadOptions()
	ro.SetFillCache(false)
	wo := levigo.NewWriteOptions()
	wo.SetSync(true)
	return &Store{db: db, ro: ro, wo: wo}, nil
}

func recordKey(index int, name string) []byte {
	k := make([]byte, 0, 1+len(name))
	k = append(k, byte(index))
	return append(k, name...)
}

func (s *Store) Save(spaces []snapshot.Keyspace) error {
	wb := levigo.NewWriteBatch()
	defer wb.Close()

	live := make(map[string]bool)
	for _, space := range spaces {
		if space.Index < 0 || space.Index > 0xff {
			return fmt.Errorf("leveldb: keyspace index %d out of range", space.Index)
		}
		for _, e := range space.Entries {
			k := recordKey(space.Index, e.Key.Name)
			live[string(k)] = true
			wb.Put(k, snapshot.EncodeEntryBytes(e.Key, e.Value))
		}
	}

	it := s.db.NewIterator(s.ro)
	defer it.Close()
	for it.SeekToFirst(); it.Valid(); it.Next() {
		if k := it.Key(); !live[string(k)] {
			wb.Delete(k)
		}
	}
	if err := it.GetError(); err != nil {
		return fmt.Errorf("leveldb: scanning: %w", err)
	}
	return s.db.Write(s.wo, wb)
}

func (s *Store) Load() ([]snapshot.Keyspace, error) {
	it := s.db.NewIterator(s.ro)
	defer it.Close()
	var spaces []snapshot.Keyspace
	for it.SeekToFirst(); it.Valid(); it.Next() {
		k := it.Key()
		if len(k) == 0 {
			return nil, fmt.Errorf("%w: empty leveldb key", snapshot.ErrBadFormat)
		}
		index := int(k[0])
		key, v, err := snapshot.DecodeEntryBytes(it.Value())
		if err != nil {
			return nil, err
		}
		if n := len(spaces); n == 0 || spaces[n-1].Index != index {
			spaces = append(spaces, snapshot.Keyspace{Index: index})
		}
		last := &spaces[len(spaces)-1]
		last.Entries = append(last.Entries, snapshot.Entry{Key: key, Value: v})
	}
	if err := it.GetError(); err != nil {
		return nil, fmt.Errorf("leveldb: scanning: %w", err)
	}
	return spaces, nil
}

func (s *Store) Close() error {
	s.ro.Close()
	s.wo.Close()
	s.db.Close()
	return nil
}
