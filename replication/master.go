package replication

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tchajed/tinydb/metrics"
	"github.com/tchajed/tinydb/notify"
)

// Master side of replication
//
// Executed writes are appended to an in-memory queue, but only while at least
// one slave is registered under notify.Slaves; with no slaves nothing
// accumulates. A propagation loop drains the queue periodically and notifies
// the slaves topic with each record in order.

type Master struct {
	registry *notify.Registry
	log      *slog.Logger
	metrics  *metrics.Metrics

	mu    sync.Mutex
	queue []Record

	// held while records are drained and sent, and while a slave attaches
	propagating sync.Mutex
}

func NewMaster(registry *notify.Registry, log *slog.Logger, m *metrics.Metrics) *Master {
	if log == nil {
		log = slog.Default()
	}
	return &Master{
		registry: registry,
		log:      log.With("component", "master"),
		metrics:  m,
	}
}

// HasSlaves reports whether any slave is registered.
func (m *Master) HasSlaves() bool {
	return m.registry.Count(notify.Slaves) > 0
}

// Slaves lists the registered slave session ids.
func (m *Master) Slaves() []string {
	return m.registry.Subscribers(notify.Slaves)
}

// Append queues r for propagation if there are slaves. It reports whether
// the record was queued.
func (m *Master) Append(r Record) bool {
	if !m.HasSlaves() {
		return false
	}
	m.mu.Lock()
	m.queue = append(m.queue, r)
	m.mu.Unlock()
	m.metrics.RecordQueued()
	return true
}

// Drain removes and returns all queued records, oldest first.
func (m *Master) Drain() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.queue
	m.queue = nil
	return records
}

// Pending is the number of queued records.
func (m *Master) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Propagate drains the queue and sends each record to every slave, returning
// the number of records drained.
func (m *Master) Propagate() int {
	m.propagating.Lock()
	defer m.propagating.Unlock()
	return m.propagateLocked()
}

func (m *Master) propagateLocked() int {
	records := m.Drain()
	if len(records) == 0 {
		return 0
	}
	for _, r := range records {
		m.registry.Notify(notify.Slaves, r.Token())
	}
	m.metrics.RecordsPropagated(len(records))
	return len(records)
}

// Attach registers a slave and then runs initial (which sends it a snapshot)
// with propagation paused, so that the snapshot reaches the slave before any
// record queued after registration. Records queued before registration go
// to the existing slaves only. If initial fails the slave is removed.
func (m *Master) Attach(id string, initial func() error) error {
	m.propagating.Lock()
	defer m.propagating.Unlock()
	m.propagateLocked()
	m.registry.Subscribe(notify.Slaves, id)
	if err := initial(); err != nil {
		m.registry.Unsubscribe(notify.Slaves, id)
		return err
	}
	m.log.Info("slave attached", "session", id)
	return nil
}

// Detach removes a slave, typically because its connection closed.
func (m *Master) Detach(id string) {
	if m.registry.Count(notify.Slaves) == 0 {
		return
	}
	m.registry.Unsubscribe(notify.Slaves, id)
}

// Clear drops any queued records.
func (m *Master) Clear() {
	m.Drain()
}

// Run propagates every interval until ctx is done.
func (m *Master) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Propagate(); n > 0 {
				m.log.Debug("propagated", "records", n)
			}
		}
	}
}
