package main

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const valueSize = 100

type generator struct {
	*rand.Rand
	key uint64
}

func newGenerator(seed int64) *generator {
	r := rand.New(rand.NewSource(seed))
	return &generator{r, 0}
}

func (g *generator) NextKey() string {
	k := g.key
	g.key++
	return fmt.Sprintf("key:%016d", k)
}

func (g generator) RandomKey(max int) string {
	n := g.Rand.Int63n(int64(max))
	return fmt.Sprintf("key:%016d", n)
}

// Value is printable so it round-trips through inline commands too.
func (g generator) Value() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, valueSize)
	for i := range b {
		b[i] = alphabet[g.Intn(len(alphabet))]
	}
	return string(b)
}

type stats struct {
	mu    sync.Mutex
	Ops   int
	Bytes int
	Start time.Time
	End   *time.Time
}

func newStats() *stats {
	return &stats{Ops: 0, Bytes: 0, Start: time.Now()}
}

// FinishedOps records finishing n operations that processed some number of
// bytes. Clients report concurrently.
func (s *stats) FinishedOps(n, bytes int) {
	s.mu.Lock()
	s.Ops += n
	s.Bytes += bytes
	s.mu.Unlock()
}

// done marks the benchmark finished.
//
// Records a final timestamp in a stats object.
func (s *stats) done() {
	if s.End != nil {
		panic("stats object marked done multiple times")
	}
	t := time.Now()
	s.End = &t
}

func (s *stats) seconds() float64 {
	return s.End.Sub(s.Start).Seconds()
}

func (s *stats) MicrosPerOp() float64 {
	return (s.seconds() * 1e6) / float64(s.Ops)
}

func (s *stats) MegabytesPerSec() float64 {
	mb := float64(s.Bytes) / (1024 * 1024)
	return mb / s.seconds()
}

func (s *stats) formatStats() string {
	if s.Bytes == 0 {
		if s.Ops == 1 {
			return fmt.Sprintf("%7.3f micros", s.MicrosPerOp())
		}
		return fmt.Sprintf("%7.3f micros/op", s.MicrosPerOp())
	}
	return fmt.Sprintf("%7.3f micros/op; %6.1f MB/s",
		s.MicrosPerOp(),
		s.MegabytesPerSec())
}

// BenchState tracks information for a single benchmark.
type BenchState struct {
	name string
	*stats
}

// NewBench initializes a BenchState.
func NewBench(name string) BenchState {
	return BenchState{name, newStats()}
}

// Report finishes the benchmark and prints final statistics.
func (s BenchState) Report() {
	s.stats.done()
	fmt.Printf("%-20s : %s\n", s.name, s.stats.formatStats())
}
