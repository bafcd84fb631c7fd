package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tchajed/tinydb/fs"
	"github.com/tchajed/tinydb/leveldb"
	"github.com/tchajed/tinydb/metrics"
	"github.com/tchajed/tinydb/persistence"
	"github.com/tchajed/tinydb/server"
)

var host = flag.String("host", "localhost", "address to listen on")
var port = flag.Int("port", 7081, "port to listen on")
var databases = flag.Int("databases", 10, "number of keyspaces")
var persist = flag.Bool("persist", false, "save snapshots and a command log")
var dir = flag.String("dir", "tinydb.data", "directory for persisted state")
var snapshotStore = flag.String("snapshot-store", "file", "snapshot store to use (file|leveldb)")
var snapshotInterval = flag.Duration("snapshot-interval", 5*time.Minute, "period of background snapshots (0 to disable)")
var syncInterval = flag.Duration("sync-interval", time.Second, "period of command log syncs (0 syncs every write)")
var replicaOf = flag.String("replicaof", "", "follow the master at \"host port\"")
var metricsAddr = flag.String("metrics-addr", "", "serve prometheus metrics on this address")
var logLevel = flag.String("log-level", "info", "log level (debug|info|warn|error)")

func newLogger() (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return nil, fmt.Errorf("invalid -log-level: %w", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}

func newPersistence(log *slog.Logger, m *metrics.Metrics) (*persistence.Manager, error) {
	filesys := fs.DirFs(*dir)
	cfg := persistence.Config{
		Fs:               filesys,
		SyncInterval:     *syncInterval,
		SnapshotInterval: *snapshotInterval,
	}
	switch *snapshotStore {
	case "file":
	case "leveldb":
		store, err := leveldb.Open(filepath.Join(*dir, "snapshot.ldb"))
		if err != nil {
			return nil, err
		}
		cfg.Store = store
	default:
		return nil, fmt.Errorf("unknown snapshot store %s", *snapshotStore)
	}
	return persistence.NewManager(cfg, log, m), nil
}

func run(ctx context.Context, log *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	m := metrics.New(reg)

	cfg := server.DefaultConfig()
	cfg.Host = *host
	cfg.Port = *port
	cfg.NumDatabases = *databases
	cfg.Logger = log
	cfg.Metrics = m
	if *persist {
		p, err := newPersistence(log, m)
		if err != nil {
			return err
		}
		cfg.Persistence = p
	}

	srv := server.New(cfg)
	if err := srv.Start(); err != nil {
		return err
	}
	if *replicaOf != "" {
		parts := strings.Fields(*replicaOf)
		if len(parts) != 2 {
			srv.Stop()
			return fmt.Errorf("-replicaof wants \"host port\", got %q", *replicaOf)
		}
		if err := srv.SlaveOf(parts[0], parts[1]); err != nil {
			srv.Stop()
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		srv.Stop()
		return nil
	})
	if *metricsAddr != "" {
		httpServer := &http.Server{
			Addr:    *metricsAddr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			log.Info("serving metrics", "addr", *metricsAddr)
			if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdown)
		})
	}
	return g.Wait()
}

func main() {
	flag.Parse()
	if len(flag.Args()) > 0 {
		fmt.Fprintln(os.Stderr, "extra command line arguments", flag.Args())
		flag.Usage()
		os.Exit(1)
	}
	log, err := newLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, log); err != nil {
		log.Error("exiting", "err", err)
		os.Exit(1)
	}
}
