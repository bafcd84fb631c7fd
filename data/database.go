package data

import (
	"sort"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Keyspace storage
//
// A Database maps key names to (Key, Value) entries. Keys are spread over a
// fixed number of shards by hash; each shard has its own lock, so operations
// on one key serialize with each other but not with unrelated keys.
//
// Expiration is lazy: an expired entry is invisible to every read and is
// physically deleted by the access that notices it (or by EvictExpired).

const numShards = 64

type entry struct {
	key   Key
	value Value
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// Database is a single keyspace.
type Database struct {
	shards [numShards]*shard
	clock  func() time.Time
}

// NewDatabase creates an empty keyspace using the wall clock.
func NewDatabase() *Database {
	return NewDatabaseWithClock(time.Now)
}

// NewDatabaseWithClock creates an empty keyspace that reads the time from
// clock when checking expiration.
func NewDatabaseWithClock(clock func() time.Time) *Database {
	db := &Database{clock: clock}
	for i := range db.shards {
		db.shards[i] = &shard{entries: make(map[string]entry)}
	}
	return db
}

// Now returns the time according to the database's clock.
func (db *Database) Now() time.Time {
	return db.clock()
}

func (db *Database) shardFor(name string) *shard {
	return db.shards[xxhash.Sum64String(name)%numShards]
}

// lookup returns the live entry for name; the caller holds s.mu.
func (s *shard) lookup(name string, now time.Time) (entry, bool) {
	e, ok := s.entries[name]
	if !ok || e.key.IsExpired(now) {
		return entry{}, false
	}
	return e, true
}

// getEntry reads an entry, deleting it if it turns out to be expired.
func (db *Database) getEntry(name string) (entry, bool) {
	s := db.shardFor(name)
	now := db.clock()
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return entry{}, false
	}
	if e.key.IsExpired(now) {
		s.mu.Lock()
		// re-check: the entry may have been replaced since we dropped the read lock
		if cur, ok := s.entries[name]; ok && cur.key.IsExpired(now) {
			delete(s.entries, name)
		}
		s.mu.Unlock()
		return entry{}, false
	}
	return e, true
}

// Get returns the value stored under name.
func (db *Database) Get(name string) (Value, bool) {
	e, ok := db.getEntry(name)
	return e.value, ok
}

// GetKey returns the stored key (with its expiration) for name.
func (db *Database) GetKey(name string) (Key, bool) {
	e, ok := db.getEntry(name)
	return e.key, ok
}

// GetOrDefault returns the stored value, or def if name is absent.
func (db *Database) GetOrDefault(name string, def Value) Value {
	if v, ok := db.Get(name); ok {
		return v
	}
	return def
}

// ContainsKey reports whether name is present and not expired.
func (db *Database) ContainsKey(name string) bool {
	_, ok := db.getEntry(name)
	return ok
}

// Put inserts or replaces the entry for key, returning the previous live value.
//
// Storing an empty collection removes the key instead.
func (db *Database) Put(key Key, v Value) (Value, bool) {
	s := db.shardFor(key.Name)
	now := db.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.lookup(key.Name, now)
	if v.isVacant() {
		delete(s.entries, key.Name)
	} else {
		s.entries[key.Name] = entry{key, v}
	}
	return prev.value, ok
}

// PutIfAbsent stores v only if key is not present, returning whether it did.
func (db *Database) PutIfAbsent(key Key, v Value) bool {
	s := db.shardFor(key.Name)
	now := db.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lookup(key.Name, now); ok {
		return false
	}
	if !v.isVacant() {
		s.entries[key.Name] = entry{key, v}
	}
	return true
}

// Replace stores v under key only if key is already present, returning the
// previous value.
func (db *Database) Replace(key Key, v Value) (Value, bool) {
	s := db.shardFor(key.Name)
	now := db.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.lookup(key.Name, now)
	if !ok {
		return Value{}, false
	}
	if v.isVacant() {
		delete(s.entries, key.Name)
	} else {
		s.entries[key.Name] = entry{key, v}
	}
	return prev.value, true
}

// Remove deletes name, returning the value it held (if it was live).
func (db *Database) Remove(name string) (Value, bool) {
	s := db.shardFor(name)
	now := db.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.lookup(name, now)
	delete(s.entries, name)
	return prev.value, ok
}

// Merge atomically replaces the value under key with combine(current, def),
// where current is the stored value or def if key is absent.
//
// combine runs while the key's shard is locked: it must not call back into
// this Database. An existing key keeps its expiration; an absent key is
// created with key's. If the result is an empty collection the key is
// removed. Returns the new value.
func (db *Database) Merge(key Key, def Value, combine func(current, def Value) Value) Value {
	s := db.shardFor(key.Name)
	now := db.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	current := def
	stored := key
	if e, ok := s.lookup(key.Name, now); ok {
		current = e.value
		stored = e.key
	}
	next := combine(current, def)
	if next.isVacant() {
		delete(s.entries, key.Name)
	} else {
		s.entries[key.Name] = entry{stored, next}
	}
	return next
}

// OverrideKey replaces the expiration metadata of an existing key, leaving its
// value untouched. Returns the previous key, or false if key was absent.
func (db *Database) OverrideKey(key Key) (Key, bool) {
	s := db.shardFor(key.Name)
	now := db.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.lookup(key.Name, now)
	if !ok {
		delete(s.entries, key.Name)
		return Key{}, false
	}
	s.entries[key.Name] = entry{key, e.value}
	return e.key, true
}

// Rename moves the entry at src to dst (replacing dst), keeping its expiry.
// Both shards are locked in a fixed order.
func (db *Database) Rename(src, dst string) bool {
	s1, s2 := db.shardFor(src), db.shardFor(dst)
	now := db.clock()
	first, second := s1, s2
	if db.shardIndex(dst) < db.shardIndex(src) {
		first, second = s2, s1
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	if second != first {
		second.mu.Lock()
		defer second.mu.Unlock()
	}
	e, ok := s1.lookup(src, now)
	if !ok {
		return false
	}
	delete(s1.entries, src)
	e.key.Name = dst
	s2.entries[dst] = e
	return true
}

func (db *Database) shardIndex(name string) uint64 {
	return xxhash.Sum64String(name) % numShards
}

// ForEach calls fn for every live entry until fn returns false. Each shard is
// copied before fn is called, so fn may access the database.
func (db *Database) ForEach(fn func(Key, Value) bool) {
	now := db.clock()
	for _, s := range db.shards {
		s.mu.RLock()
		live := make([]entry, 0, len(s.entries))
		for _, e := range s.entries {
			if !e.key.IsExpired(now) {
				live = append(live, e)
			}
		}
		s.mu.RUnlock()
		for _, e := range live {
			if !fn(e.key, e.value) {
				return
			}
		}
	}
}

// Keys returns the live keys sorted by name.
func (db *Database) Keys() []Key {
	var keys []Key
	db.ForEach(func(k Key, _ Value) bool {
		keys = append(keys, k)
		return true
	})
	sort.Slice(keys, func(i, j int) bool { return keys[i].Name < keys[j].Name })
	return keys
}

// Size counts live entries.
func (db *Database) Size() int {
	now := db.clock()
	n := 0
	for _, s := range db.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			if !e.key.IsExpired(now) {
				n++
			}
		}
		s.mu.RUnlock()
	}
	return n
}

func (db *Database) IsEmpty() bool {
	return db.Size() == 0
}

// Clear removes every entry.
func (db *Database) Clear() {
	for _, s := range db.shards {
		s.mu.Lock()
		s.entries = make(map[string]entry)
		s.mu.Unlock()
	}
}

// EvictExpired deletes up to limit expired entries (all of them if limit <= 0)
// and returns how many were removed.
func (db *Database) EvictExpired(limit int) int {
	now := db.clock()
	removed := 0
	for _, s := range db.shards {
		s.mu.Lock()
		for name, e := range s.entries {
			if limit > 0 && removed >= limit {
				break
			}
			if e.key.IsExpired(now) {
				delete(s.entries, name)
				removed++
			}
		}
		s.mu.Unlock()
		if limit > 0 && removed >= limit {
			break
		}
	}
	return removed
}
