package persistence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tchajed/tinydb/fs"
	"github.com/tchajed/tinydb/metrics"
	"github.com/tchajed/tinydb/replication"
	"github.com/tchajed/tinydb/resp"
	"github.com/tchajed/tinydb/snapshot"
	"github.com/tchajed/tinydb/wal"
)

// Durability
//
// State on disk is a snapshot (through a SnapshotStore) plus a command log
// of the writes executed since that snapshot. Each logged write is a
// replication.Record, encoded as a RESP array and committed as one wal
// transaction.
//
// A single writer goroutine owns the log. Appends and snapshot requests share
// one channel, so a snapshot lands exactly between the writes that preceded
// and followed the request: the writer saves the snapshot and then starts an
// empty log.

// LogFile is the command log's file name.
const LogFile = "commands.log"

var ErrClosed = errors.New("persistence: closed")

type Config struct {
	Fs fs.Filesys
	// Store defaults to a FileStore on Fs.
	Store SnapshotStore
	// SyncInterval is how often the command log is synced; zero syncs after
	// every write.
	SyncInterval time.Duration
	// SnapshotInterval is how often the server takes a background snapshot;
	// zero disables periodic snapshots.
	SnapshotInterval time.Duration
}

type op struct {
	record   []byte
	snapshot []snapshot.Keyspace
	done     chan error
}

type Manager struct {
	cfg     Config
	store   SnapshotStore
	log     *slog.Logger
	metrics *metrics.Metrics

	ops chan op

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewManager(cfg Config, log *slog.Logger, m *metrics.Metrics) *Manager {
	if log == nil {
		log = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = NewFileStore(cfg.Fs)
	}
	return &Manager{
		cfg:     cfg,
		store:   store,
		log:     log.With("component", "persistence"),
		metrics: m,
		ops:     make(chan op, 4096),
	}
}

// SnapshotInterval is the configured period for background snapshots.
func (m *Manager) SnapshotInterval() time.Duration {
	return m.cfg.SnapshotInterval
}

func encodeRecord(r replication.Record) []byte {
	return resp.Encode(r.Token())
}

func decodeRecord(b []byte) (replication.Record, error) {
	t, err := resp.NewReader(bytes.NewReader(b)).ReadToken()
	if err != nil {
		return replication.Record{}, err
	}
	return replication.ParseRecord(t)
}

// Load reads the saved snapshot and the writes logged after it.
func (m *Manager) Load() ([]snapshot.Keyspace, []replication.Record, error) {
	spaces, err := m.store.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading snapshot: %w", err)
	}
	var txns [][]byte
	var recoverErr error
	err = catch(func() {
		if !m.cfg.Fs.Exists(LogFile) {
			return
		}
		f := m.cfg.Fs.Open(LogFile)
		defer f.Close()
		txns, recoverErr = wal.RecoverTxns(f)
	})
	if err == nil {
		err = recoverErr
	}
	if err != nil {
		return nil, nil, fmt.Errorf("reading command log: %w", err)
	}
	records := make([]replication.Record, 0, len(txns))
	for _, txn := range txns {
		r, err := decodeRecord(txn)
		if err != nil {
			return nil, nil, fmt.Errorf("reading command log: %w", err)
		}
		records = append(records, r)
	}
	m.log.Info("loaded", "keyspaces", len(spaces), "records", len(records))
	return spaces, records, nil
}

// Start saves spaces as the new snapshot, starts an empty command log and
// runs the writer until Close.
func (m *Manager) Start(spaces []snapshot.Keyspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("persistence: already started")
	}
	w, err := m.checkpoint(nil, spaces)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.running = true
	m.cancel = cancel
	m.stopped = make(chan struct{})
	go m.writer(ctx, w)
	return nil
}

// Append logs an executed write. Appends after Close are dropped.
func (m *Manager) Append(r replication.Record) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.running {
		return
	}
	m.ops <- op{record: encodeRecord(r)}
}

// Snapshot queues spaces to be saved after every write appended so far. The
// returned channel yields the result.
func (m *Manager) Snapshot(spaces []snapshot.Keyspace) <-chan error {
	done := make(chan error, 1)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.running {
		done <- ErrClosed
		return done
	}
	m.ops <- op{snapshot: spaces, done: done}
	return done
}

// Close stops the writer after it has handled every queued operation.
func (m *Manager) Close() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = false
	m.cancel()
	stopped := m.stopped
	m.mu.Unlock()
	<-stopped
	return m.store.Close()
}

// checkpoint saves a snapshot and replaces the command log w with an empty
// one. If the save fails w is returned unchanged.
func (m *Manager) checkpoint(w *wal.Writer, spaces []snapshot.Keyspace) (*wal.Writer, error) {
	start := time.Now()
	if err := m.store.Save(spaces); err != nil {
		return w, fmt.Errorf("saving snapshot: %w", err)
	}
	if w != nil {
		if err := w.Close(); err != nil {
			m.log.Warn("closing command log", "err", err)
		}
	}
	var f fs.File
	if err := catch(func() { f = m.cfg.Fs.Create(LogFile) }); err != nil {
		return nil, fmt.Errorf("creating command log: %w", err)
	}
	m.metrics.SnapshotSaved()
	m.log.Info("snapshot saved", "keyspaces", len(spaces), "duration", time.Since(start))
	return wal.New(f), nil
}

func (m *Manager) writer(ctx context.Context, w *wal.Writer) {
	defer close(m.stopped)
	var tick <-chan time.Time
	if m.cfg.SyncInterval > 0 {
		ticker := time.NewTicker(m.cfg.SyncInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	dirty := false
	flush := func() {
		if !dirty || w == nil {
			return
		}
		if err := w.Sync(); err != nil {
			m.log.Error("syncing command log", "err", err)
		}
		dirty = false
	}
	handle := func(o op) {
		if o.snapshot != nil || o.done != nil {
			nw, err := m.checkpoint(w, o.snapshot)
			if err != nil {
				m.log.Error("snapshot failed", "err", err)
			}
			if nw != w {
				w, dirty = nw, false
			}
			o.done <- err
			return
		}
		if w == nil {
			return
		}
		if err := w.Add(o.record); err != nil {
			m.log.Error("appending to command log", "err", err)
			return
		}
		m.metrics.LogAppended()
		dirty = true
		if tick == nil {
			flush()
		}
	}
	for {
		select {
		case o := <-m.ops:
			handle(o)
		case <-tick:
			flush()
		case <-ctx.Done():
			for {
				select {
				case o := <-m.ops:
					handle(o)
				default:
					flush()
					if w != nil {
						w.Close()
					}
					return
				}
			}
		}
	}
}
