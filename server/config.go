package server

import (
	"log/slog"
	"time"

	"github.com/tchajed/tinydb/metrics"
	"github.com/tchajed/tinydb/persistence"
)

// Version is reported by INFO.
const Version = "0.1.0"

type Config struct {
	Host string
	// Port 0 picks a free port; see Server.Addr.
	Port         int
	NumDatabases int
	// PropagateInterval is the period of the replication propagation loop.
	PropagateInterval time.Duration
	// SweepInterval is the period of the expired-key sweep; zero disables it.
	SweepInterval time.Duration
	// SweepLimit bounds the keys evicted per keyspace per sweep.
	SweepLimit int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// Persistence may be nil, in which case nothing is saved.
	Persistence *persistence.Manager
}

func DefaultConfig() Config {
	return Config{
		Host:              "localhost",
		Port:              7081,
		NumDatabases:      10,
		PropagateInterval: 100 * time.Millisecond,
		SweepInterval:     time.Second,
		SweepLimit:        1000,
	}
}
