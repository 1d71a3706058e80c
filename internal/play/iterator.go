package play

import (
	"sort"
	"sync"

	"github.com/aatumaykin/playq/internal/task"
)

// Iterator tracks per-play host state: which hosts are still eligible for
// task dispatch, which have failed, and which have been removed from the
// play entirely (unreachable hosts). All methods are safe for concurrent
// use by a strategy and the result pump.
type Iterator struct {
	play *Play

	mu      sync.Mutex
	failed  map[string]struct{}
	removed map[string]struct{}
	endPlay bool
}

// NewIterator builds iteration state for one play.
func NewIterator(p *Play) *Iterator {
	return &Iterator{
		play:    p,
		failed:  make(map[string]struct{}),
		removed: make(map[string]struct{}),
	}
}

// Play returns the play being iterated.
func (it *Iterator) Play() *Play { return it.play }

// Tasks returns the play's tasks in declaration order.
func (it *Iterator) Tasks() []*task.Task { return it.play.Tasks }

// BatchSize is the number of hosts that take part in this play: every
// listed host that has not been removed. Failed hosts still count; they
// occupy a slot until the play ends.
func (it *Iterator) BatchSize() int {
	it.mu.Lock()
	defer it.mu.Unlock()

	n := 0
	for _, host := range it.play.Hosts {
		if _, gone := it.removed[host]; !gone {
			n++
		}
	}
	return n
}

// RemainingHosts returns the hosts still eligible for new task dispatch,
// in play order: listed hosts minus failed minus removed.
func (it *Iterator) RemainingHosts() []string {
	it.mu.Lock()
	defer it.mu.Unlock()

	var hosts []string
	for _, host := range it.play.Hosts {
		if _, bad := it.failed[host]; bad {
			continue
		}
		if _, gone := it.removed[host]; gone {
			continue
		}
		hosts = append(hosts, host)
	}
	return hosts
}

// MarkHostFailed excludes a host from further task dispatch in this play.
// Marking an already-failed host is a no-op.
func (it *Iterator) MarkHostFailed(host string) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.failed[host] = struct{}{}
}

// IsFailed reports whether the host has been marked failed in this play.
func (it *Iterator) IsFailed(host string) bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	_, bad := it.failed[host]
	return bad
}

// FailedHosts returns the hosts marked failed during this play, sorted.
func (it *Iterator) FailedHosts() []string {
	it.mu.Lock()
	defer it.mu.Unlock()

	hosts := make([]string, 0, len(it.failed))
	for host := range it.failed {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

// RemoveHost takes a host out of the play entirely. Removed hosts do not
// count toward the batch size and never appear in FailedHosts; the caller
// is expected to account for them separately (unreachable tracking).
func (it *Iterator) RemoveHost(host string) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.removed[host] = struct{}{}
	delete(it.failed, host)
}

// RemovedHosts returns the hosts removed from the play, sorted.
func (it *Iterator) RemovedHosts() []string {
	it.mu.Lock()
	defer it.mu.Unlock()

	hosts := make([]string, 0, len(it.removed))
	for host := range it.removed {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

// SetEndPlay requests that the play stop after the in-flight task
// completes on all hosts.
func (it *Iterator) SetEndPlay() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.endPlay = true
}

// EndPlay reports whether an early end of play has been requested.
func (it *Iterator) EndPlay() bool {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.endPlay
}
