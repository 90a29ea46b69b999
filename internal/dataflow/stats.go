package dataflow

import (
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// KindStats summarizes the durations of one task kind in microseconds.
type KindStats struct {
	Kind  string  `json:"kind"`
	Count int64   `json:"count"`
	Mean  float64 `json:"mean_us"`
	P50   int64   `json:"p50_us"`
	P99   int64   `json:"p99_us"`
	Max   int64   `json:"max_us"`
}

// Stats records task durations per kind.
type Stats struct {
	mu    sync.Mutex
	kinds map[string]*hdrhistogram.Histogram
}

// NewStats creates an empty Stats.
func NewStats() *Stats {
	return &Stats{kinds: make(map[string]*hdrhistogram.Histogram)}
}

// Record adds one task duration.
func (s *Stats) Record(kind string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.kinds[kind]
	if !ok {
		// 1us .. 10min, 3 significant digits
		h = hdrhistogram.New(1, int64(10*time.Minute/time.Microsecond), 3)
		s.kinds[kind] = h
	}
	us := d.Microseconds()
	if us < 1 {
		us = 1
	}
	_ = h.RecordValue(min(us, h.HighestTrackableValue()))
}

// Snapshot returns per-kind summaries sorted by kind.
func (s *Stats) Snapshot() []KindStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]KindStats, 0, len(s.kinds))
	for kind, h := range s.kinds {
		out = append(out, KindStats{
			Kind:  kind,
			Count: h.TotalCount(),
			Mean:  h.Mean(),
			P50:   h.ValueAtQuantile(50),
			P99:   h.ValueAtQuantile(99),
			Max:   h.Max(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Total returns the number of recorded tasks.
func (s *Stats) Total() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, h := range s.kinds {
		n += h.TotalCount()
	}
	return n
}
