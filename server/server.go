package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tchajed/tinydb/command"
	"github.com/tchajed/tinydb/data"
	"github.com/tchajed/tinydb/metrics"
	"github.com/tchajed/tinydb/notify"
	"github.com/tchajed/tinydb/persistence"
	"github.com/tchajed/tinydb/replication"
	"github.com/tchajed/tinydb/resp"
	"github.com/tchajed/tinydb/snapshot"
)

// ReplicaSessionID identifies the internal session that replays records
// from a master.
const ReplicaSessionID = "replication"

var ErrNoPersistence = errors.New("persistence is not configured")

// Server owns the keyspaces, the client sessions and the replication and
// persistence machinery.
type Server struct {
	cfg     Config
	log     *slog.Logger
	metrics *metrics.Metrics
	table   *command.Table

	dbs      []atomic.Pointer[data.Database]
	admin    *data.Database
	registry *notify.Registry
	master   *replication.Master
	follower *replication.Follower
	persist  *persistence.Manager
	replica  *Session

	isMaster atomic.Bool
	// writes hold barrier for reading while they execute and log; snapshots
	// take it exclusively to see a state that matches a point in the
	// replication and persistence streams.
	barrier sync.RWMutex

	mu       sync.Mutex
	listener net.Listener
	sessions map[string]*Session
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	started  time.Time
}

func New(cfg Config) *Server {
	if cfg.NumDatabases <= 0 {
		cfg.NumDatabases = DefaultConfig().NumDatabases
	}
	if cfg.PropagateInterval <= 0 {
		cfg.PropagateInterval = DefaultConfig().PropagateInterval
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		log:      log.With("component", "server"),
		metrics:  cfg.Metrics,
		table:    command.DefaultTable(),
		dbs:      make([]atomic.Pointer[data.Database], cfg.NumDatabases),
		admin:    data.NewDatabase(),
		persist:  cfg.Persistence,
		sessions: make(map[string]*Session),
	}
	for i := range s.dbs {
		s.dbs[i].Store(data.NewDatabase())
	}
	s.registry = notify.New(s.admin, s.sendTo, log)
	s.master = replication.NewMaster(s.registry, log, cfg.Metrics)
	s.follower = replication.NewFollower(s, s.SetMaster, log, cfg.Metrics)
	s.replica = newSession(s, ReplicaSessionID, nil)
	s.replica.bypass = true
	s.isMaster.Store(true)
	return s
}

// sendTo delivers a notification to the session named by channel.
func (s *Server) sendTo(channel string, payload resp.Token) error {
	s.mu.Lock()
	sess, ok := s.sessions[channel]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no session %s", channel)
	}
	return sess.Send(payload)
}

// Start recovers persisted state, listens for clients and starts the
// background loops.
func (s *Server) Start() error {
	s.mu.Lock()
	running := s.listener != nil
	s.mu.Unlock()
	if running {
		return errors.New("server already started")
	}
	if s.persist != nil {
		if err := s.recover(); err != nil {
			return err
		}
	}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		if s.persist != nil {
			s.persist.Close()
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = l
	s.cancel = cancel
	s.started = time.Now()

	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx, l)
	}()
	go func() {
		defer s.wg.Done()
		s.master.Run(ctx, s.cfg.PropagateInterval)
	}()
	go func() {
		defer s.wg.Done()
		s.janitor(ctx)
	}()
	s.log.Info("listening", "addr", l.Addr().String(), "databases", len(s.dbs))
	return nil
}

// recover loads the last snapshot, replays the command log and starts the
// persistence writer from the recovered state.
func (s *Server) recover() error {
	spaces, records, err := s.persist.Load()
	if err != nil {
		return err
	}
	if err := s.install(spaces); err != nil {
		return err
	}
	for _, r := range records {
		if reply := s.Apply(r); reply.IsError() {
			s.log.Warn("replayed command failed", "record", r.String(), "reply", reply.Str)
		}
	}
	return s.persist.Start(snapshot.Collect(s.databases()))
}

// Addr is the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every session, waits for their cleanup, stops
// replication and the background loops, and flushes persistence. Keyspaces
// are left intact.
func (s *Server) Stop() {
	s.mu.Lock()
	if s.listener == nil {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.listener.Close()
	s.listener = nil
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.Close()
	}
	s.wg.Wait()
	s.follower.Stop()
	s.master.Clear()
	s.admin.Clear()
	if s.persist != nil {
		if err := s.persist.Close(); err != nil {
			s.log.Error("closing persistence", "err", err)
		}
	}
	s.log.Info("stopped")
}

func (s *Server) acceptLoop(ctx context.Context, l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("accept failed", "err", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		sess := newSession(s, conn.RemoteAddr().String(), conn)
		s.mu.Lock()
		if s.listener != l {
			// Stop has already collected the sessions to close
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.sessions[sess.id] = sess
		s.wg.Add(1)
		s.mu.Unlock()
		s.metrics.Connected()
		s.log.Debug("client connected", "session", sess.id)
		go func() {
			defer s.wg.Done()
			sess.serve()
		}()
	}
}

// disconnected releases everything tied to a closed session.
func (s *Server) disconnected(sess *Session) {
	s.mu.Lock()
	if s.sessions[sess.id] != sess {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	command.UnsubscribeAll(s.registry, sess)
	s.master.Detach(sess.id)
	s.metrics.Disconnected()
	s.log.Debug("client disconnected", "session", sess.id)
}

func (s *Server) janitor(ctx context.Context) {
	var sweep, save <-chan time.Time
	if s.cfg.SweepInterval > 0 {
		t := time.NewTicker(s.cfg.SweepInterval)
		defer t.Stop()
		sweep = t.C
	}
	if s.persist != nil && s.persist.SnapshotInterval() > 0 {
		t := time.NewTicker(s.persist.SnapshotInterval())
		defer t.Stop()
		save = t.C
	}
	limit := s.cfg.SweepLimit
	if limit <= 0 {
		limit = DefaultConfig().SweepLimit
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep:
			n := 0
			for _, db := range s.databases() {
				n += db.EvictExpired(limit)
			}
			if n > 0 {
				s.metrics.Evicted(n)
				s.log.Debug("evicted expired keys", "count", n)
			}
		case <-save:
			s.BackgroundSave()
		}
	}
}

func (s *Server) databases() []*data.Database {
	dbs := make([]*data.Database, len(s.dbs))
	for i := range s.dbs {
		dbs[i] = s.dbs[i].Load()
	}
	return dbs
}

// install replaces every keyspace with the contents of spaces; keyspaces not
// in spaces become empty.
func (s *Server) install(spaces []snapshot.Keyspace) error {
	fresh := make([]*data.Database, len(s.dbs))
	for i := range fresh {
		fresh[i] = data.NewDatabase()
	}
	for _, space := range spaces {
		if space.Index < 0 || space.Index >= len(fresh) {
			return fmt.Errorf("snapshot keyspace %d out of range (have %d)", space.Index, len(fresh))
		}
		db := fresh[space.Index]
		for _, e := range space.Entries {
			db.Put(e.Key, e.Value)
		}
	}
	for i, db := range fresh {
		s.dbs[i].Store(db)
	}
	return nil
}

func (s *Server) NumDatabases() int {
	return len(s.dbs)
}

func (s *Server) Database(index int) *data.Database {
	return s.dbs[index].Load()
}

func (s *Server) Registry() *notify.Registry {
	return s.registry
}

func (s *Server) IsMaster() bool {
	return s.isMaster.Load()
}

func (s *Server) SetMaster(master bool) {
	if s.isMaster.Swap(master) != master {
		s.log.Info("role changed", "master", master)
	}
}

// SessionCount is the number of connected clients.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) Info() command.Info {
	info := command.Info{
		Version:          Version,
		Port:             s.cfg.Port,
		ConnectedClients: s.SessionCount(),
		Master:           s.IsMaster(),
		ConnectedSlaves:  len(s.master.Slaves()),
	}
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		info.Port = addr.Port
	}
	s.mu.Lock()
	if !s.started.IsZero() {
		info.Uptime = time.Since(s.started)
	}
	s.mu.Unlock()
	if host, port, ok := s.follower.Master(); ok {
		info.MasterHost, info.MasterPort = host, port
	}
	return info
}

func (s *Server) SlaveOf(host, port string) error {
	return s.follower.SlaveOf(host, port)
}

// Sync registers sess as a slave and sends it a snapshot as a bulk string.
// Writes are paused while the slave is registered and the keyspaces are
// captured, so every write is either in the snapshot or queued for the
// slave, never both.
func (s *Server) Sync(sess command.Session) error {
	s.barrier.Lock()
	locked := true
	defer func() {
		if locked {
			s.barrier.Unlock()
		}
	}()
	return s.master.Attach(sess.ID(), func() error {
		spaces := snapshot.Collect(s.databases())
		s.barrier.Unlock()
		locked = false
		var buf strings.Builder
		if err := snapshot.EncodeKeyspaces(&buf, spaces); err != nil {
			return err
		}
		s.log.Info("sending snapshot to slave", "session", sess.ID(), "bytes", buf.Len())
		return sess.Send(resp.Bulk(buf.String()))
	})
}

// Import replaces the keyspaces with a snapshot received from a master.
func (s *Server) Import(b []byte) error {
	spaces, err := snapshot.Decode(b)
	if err != nil {
		return err
	}
	s.barrier.Lock()
	err = s.install(spaces)
	s.barrier.Unlock()
	if err != nil {
		return err
	}
	if s.persist != nil {
		s.BackgroundSave()
	}
	return nil
}

// Apply executes a record from a master (or the command log) on the
// replication session, bypassing the read-only gate.
func (s *Server) Apply(r replication.Record) resp.Token {
	if r.DB < 0 || r.DB >= len(s.dbs) {
		return command.ErrDBIndex
	}
	s.replica.SetCurrentDB(r.DB)
	return s.Execute(command.NewRequest(s, s.replica, r.Args()))
}

// capture collects the keyspaces and queues them for saving with writes
// paused, so the snapshot and command log agree.
func (s *Server) capture() (<-chan error, error) {
	if s.persist == nil {
		return nil, ErrNoPersistence
	}
	s.barrier.Lock()
	defer s.barrier.Unlock()
	return s.persist.Snapshot(snapshot.Collect(s.databases())), nil
}

func (s *Server) Save() error {
	done, err := s.capture()
	if err != nil {
		return err
	}
	return <-done
}

func (s *Server) BackgroundSave() error {
	done, err := s.capture()
	if err != nil {
		return err
	}
	go func() {
		if err := <-done; err != nil {
			s.log.Error("background save failed", "err", err)
		}
	}()
	return nil
}
