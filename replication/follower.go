package replication

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/tchajed/tinydb/metrics"
)

// Follower is the replication mode switch. A server is a master until it is
// told to follow a remote; it then runs one Slave stream at a time.
// SlaveOf("NO", "ONE") stops the stream and makes the server a master again.
type Follower struct {
	applier   Applier
	setMaster func(bool)
	log       *slog.Logger
	metrics   *metrics.Metrics

	mu     sync.Mutex
	host   string
	port   string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewFollower creates a follower that reports mode changes to setMaster.
func NewFollower(applier Applier, setMaster func(bool), log *slog.Logger, m *metrics.Metrics) *Follower {
	if log == nil {
		log = slog.Default()
	}
	return &Follower{applier: applier, setMaster: setMaster, log: log, metrics: m}
}

// IsStopRequest reports whether host, port is the "NO ONE" sentinel.
func IsStopRequest(host, port string) bool {
	return strings.EqualFold(host, "NO") && strings.EqualFold(port, "ONE")
}

// SlaveOf starts following host:port, replacing any current stream, or stops
// following for "NO", "ONE".
func (f *Follower) SlaveOf(host, port string) error {
	stop := IsStopRequest(host, port)
	if !stop {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return fmt.Errorf("invalid port %q", port)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
	if stop {
		f.setMaster(true)
		f.log.Info("replication stopped; now master")
		return nil
	}

	addr := net.JoinHostPort(host, port)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	f.host, f.port, f.cancel, f.done = host, port, cancel, done
	f.setMaster(false)
	slave := NewSlave(addr, f.applier, f.log, f.metrics)
	go func() {
		defer close(done)
		slave.Run(ctx)
	}()
	f.log.Info("following master", "addr", addr)
	return nil
}

func (f *Follower) stopLocked() {
	if f.cancel == nil {
		return
	}
	f.cancel()
	<-f.done
	f.host, f.port, f.cancel, f.done = "", "", nil, nil
}

// Stop ends the current stream, if any, without changing the mode.
func (f *Follower) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
}

// Master returns the address being followed.
func (f *Follower) Master() (host, port string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.host, f.port, f.cancel != nil
}
