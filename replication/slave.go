package replication

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/tchajed/tinydb/metrics"
	"github.com/tchajed/tinydb/resp"
)

// Applier is the local server as seen by a slave stream.
type Applier interface {
	// Import replaces the local keyspaces with a snapshot from the master.
	Import(snapshot []byte) error
	// Apply executes a replayed write, bypassing the read-only gate.
	Apply(r Record) resp.Token
}

// RetryInterval is the pause between reconnection attempts.
const RetryInterval = time.Second

// Slave follows one master: it sends SYNC, loads the snapshot it gets back,
// then applies the stream of records until the connection drops, and
// reconnects until its context is cancelled.
type Slave struct {
	Addr    string
	applier Applier
	log     *slog.Logger
	metrics *metrics.Metrics
	retry   time.Duration
}

func NewSlave(addr string, applier Applier, log *slog.Logger, m *metrics.Metrics) *Slave {
	if log == nil {
		log = slog.Default()
	}
	return &Slave{
		Addr:    addr,
		applier: applier,
		log:     log.With("component", "slave", "master", addr),
		metrics: m,
		retry:   RetryInterval,
	}
}

// Run replicates until ctx is done.
func (s *Slave) Run(ctx context.Context) {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("replication stream lost", "err", err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retry):
		}
	}
}

// session runs one connection to the master.
func (s *Slave) session(ctx context.Context) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	w := resp.NewWriter(conn)
	if err := w.WriteCommand("SYNC"); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	r := resp.NewReader(conn)
	t, err := r.ReadToken()
	if err != nil {
		return fmt.Errorf("reading snapshot: %w", err)
	}
	if t.Kind != resp.KindBulk {
		return fmt.Errorf("unexpected SYNC reply %v", t)
	}
	if err := s.applier.Import([]byte(t.Str)); err != nil {
		return fmt.Errorf("loading snapshot: %w", err)
	}
	s.log.Info("synchronized with master", "bytes", len(t.Str))

	for {
		t, err := r.ReadToken()
		if err != nil {
			if resp.IsProtocolError(err) {
				s.log.Warn("skipping malformed frame", "err", err)
				s.metrics.RecordRejected()
				continue
			}
			return err
		}
		rec, err := ParseRecord(t)
		if err != nil {
			s.log.Warn("skipping record", "err", err)
			s.metrics.RecordRejected()
			continue
		}
		if reply := s.applier.Apply(rec); reply.IsError() {
			s.log.Warn("replayed command failed", "record", rec.String(), "reply", reply.Str)
		}
		s.metrics.RecordApplied()
	}
}
