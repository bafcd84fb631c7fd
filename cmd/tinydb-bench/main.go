package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"runtime"
	"runtime/pprof"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/tchajed/tinydb/resp"
	"github.com/tchajed/tinydb/server"
)

var benchmarks = flag.String("benchmarks", "set,get,incr", "comma-separated list of benchmarks to run")
var addr = flag.String("addr", "", "server to benchmark (default: an in-process server)")
var numEntries = flag.Int("entries", 100000, "number of operations per benchmark")
var numClients = flag.Int("clients", 4, "number of concurrent connections")
var pipeline = flag.Int("pipeline", 64, "commands sent per round trip")
var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

func showNum(i int) string {
	if i > 2000 {
		if i%1000 == 0 {
			return fmt.Sprintf("%dK", i/1000)
		}
		return fmt.Sprintf("%.1fK", float64(i)/1000)
	}
	return fmt.Sprintf("%d", i)
}

func writeMemProfile(fname string) {
	f, err := os.Create(fname)
	if err != nil {
		fmt.Fprintln(os.Stderr, "could not create memory profile:", err)
		os.Exit(1)
	}
	runtime.GC() // get up-to-date statistics
	if err := pprof.WriteHeapProfile(f); err != nil {
		fmt.Fprintln(os.Stderr, "could not write memory profile:", err)
		os.Exit(1)
	}
	f.Close()
}

// command builds the i'th command of a benchmark and the payload bytes it
// moves.
type command func(g *generator, i int) ([]string, int)

func benchCommand(name string) (command, bool) {
	switch name {
	case "set":
		return func(g *generator, i int) ([]string, int) {
			k, v := g.NextKey(), g.Value()
			return []string{"SET", k, v}, len(k) + len(v)
		}, true
	case "get":
		return func(g *generator, i int) ([]string, int) {
			k := g.RandomKey(*numEntries)
			return []string{"GET", k}, len(k) + valueSize
		}, true
	case "incr":
		return func(g *generator, i int) ([]string, int) {
			return []string{"INCR", "counter"}, 0
		}, true
	case "ping":
		return func(g *generator, i int) ([]string, int) {
			return []string{"PING"}, 0
		}, true
	}
	return nil, false
}

// runClient issues n commands on one connection, pipelining them in batches.
func runClient(target string, seed int64, n int, cmd command, s *stats) error {
	conn, err := net.Dial("tcp", target)
	if err != nil {
		return err
	}
	defer conn.Close()
	r, w := resp.NewReader(conn), resp.NewWriter(conn)
	g := newGenerator(seed)
	for sent := 0; sent < n; {
		batch := *pipeline
		if n-sent < batch {
			batch = n - sent
		}
		bytes := 0
		for i := 0; i < batch; i++ {
			args, b := cmd(g, sent+i)
			bytes += b
			if err := w.WriteCommand(args...); err != nil {
				return err
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
		for i := 0; i < batch; i++ {
			t, err := r.ReadToken()
			if err != nil {
				return err
			}
			if t.IsError() {
				return fmt.Errorf("server error: %s", t.Str)
			}
		}
		s.FinishedOps(batch, bytes)
		sent += batch
	}
	return nil
}

func runBenchmark(target, name string) error {
	cmd, ok := benchCommand(name)
	if !ok {
		return fmt.Errorf("unknown benchmark %s", name)
	}
	s := NewBench(name)
	var g errgroup.Group
	per := *numEntries / *numClients
	for c := 0; c < *numClients; c++ {
		n := per
		if c == *numClients-1 {
			n = *numEntries - per*(*numClients-1)
		}
		seed := int64(c)
		g.Go(func() error { return runClient(target, seed, n, cmd, s.stats) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.Report()
	return nil
}

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	if len(flag.Args()) > 0 {
		fmt.Fprintln(os.Stderr, "extra command line arguments", flag.Args())
		flag.Usage()
		return 1
	}
	if *numClients < 1 || *pipeline < 1 {
		fmt.Fprintln(os.Stderr, "-clients and -pipeline must be positive")
		return 1
	}

	target := *addr
	reported := target
	if target == "" {
		cfg := server.DefaultConfig()
		cfg.Host = "127.0.0.1"
		cfg.Port = 0
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		srv := server.New(cfg)
		if err := srv.Start(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		defer srv.Stop()
		target = srv.Addr().String()
		reported = "in-process"
	}

	totalBytes := float64(*numEntries * (20 + valueSize))
	for _, info := range []struct {
		Key   string
		Value string
	}{
		{"server", reported},
		{"entries", showNum(*numEntries)},
		{"clients", fmt.Sprintf("%d", *numClients)},
		{"pipeline", fmt.Sprintf("%d", *pipeline)},
		{"total data (MB)", fmt.Sprintf("%.1f", totalBytes/(1024*1024))},
	} {
		fmt.Printf("%20s %s\n", info.Key+":", info.Value)
	}
	fmt.Println(strings.Repeat("-", 30))

	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "could not create CPU profile:", err)
			return 1
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintln(os.Stderr, "could not start CPU profile:", err)
			return 1
		}
		defer pprof.StopCPUProfile()
	}
	if *memprofile != "" {
		defer writeMemProfile(*memprofile)
	}

	for _, name := range strings.Split(*benchmarks, ",") {
		if err := runBenchmark(target, name); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	return 0
}
