// Package stats accumulates per-host result counters across a run. The
// coordinator feeds it from the result channel; per-host failures are data
// here, never errors.
package stats

import (
	"sort"
	"sync"
)

// AggregateStats tracks per-host counters for one coordinator instance.
type AggregateStats struct {
	mu sync.Mutex

	ok          map[string]int
	failures    map[string]int
	unreachable map[string]int
	skipped     map[string]int
	changed     map[string]int
}

// Summary is a point-in-time copy of one host's counters.
type Summary struct {
	OK          int
	Failures    int
	Unreachable int
	Skipped     int
	Changed     int
}

// New creates an empty stats accumulator.
func New() *AggregateStats {
	return &AggregateStats{
		ok:          make(map[string]int),
		failures:    make(map[string]int),
		unreachable: make(map[string]int),
		skipped:     make(map[string]int),
		changed:     make(map[string]int),
	}
}

// RecordOK counts a successful result; changed marks target mutation.
func (s *AggregateStats) RecordOK(host string, changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ok[host]++
	if changed {
		s.changed[host]++
	}
}

// RecordFailed counts a failed result.
func (s *AggregateStats) RecordFailed(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[host]++
}

// RecordUnreachable counts an unreachable result.
func (s *AggregateStats) RecordUnreachable(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreachable[host]++
}

// RecordSkipped counts a skipped result.
func (s *AggregateStats) RecordSkipped(host string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped[host]++
}

// Summarize returns the counters for one host.
func (s *AggregateStats) Summarize(host string) Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		OK:          s.ok[host],
		Failures:    s.failures[host],
		Unreachable: s.unreachable[host],
		Skipped:     s.skipped[host],
		Changed:     s.changed[host],
	}
}

// Hosts returns every host seen so far, sorted.
func (s *AggregateStats) Hosts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]struct{}{}
	for _, m := range []map[string]int{s.ok, s.failures, s.unreachable, s.skipped, s.changed} {
		for host := range m {
			seen[host] = struct{}{}
		}
	}

	hosts := make([]string, 0, len(seen))
	for host := range seen {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}
