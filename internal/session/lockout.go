package session

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jonboulle/clockwork"
)

const (
	lockoutThreshold = 5
	lockoutWindow    = 300 * time.Second
	lockoutCacheSize = 256
)

// lockoutTracker implements the rolling 5-strikes/300-second auth
// lockout rule (spec.md §4.2 step 1) with a bounded LRU so a
// long-running daemon juggling many profiles cannot grow its
// failure-tracking state without limit.
type lockoutTracker struct {
	mu    sync.Mutex
	cache *lru.Cache
	clock clockwork.Clock
}

func newLockoutTracker(clock clockwork.Clock) *lockoutTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	cache, err := lru.New(lockoutCacheSize)
	if err != nil {
		// lru.New only errors on size <= 0, which lockoutCacheSize never is.
		panic(err)
	}
	return &lockoutTracker{cache: cache, clock: clock}
}

// check returns whether profileID is currently locked out and, if so,
// how many seconds remain in the window.
func (t *lockoutTracker) check(profileID string) (locked bool, remainingSecs int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	failures := t.recentFailures(profileID)
	if len(failures) < lockoutThreshold {
		return false, 0
	}
	oldest := failures[0]
	elapsed := t.clock.Now().Sub(oldest)
	remaining := lockoutWindow - elapsed
	if remaining <= 0 {
		return false, 0
	}
	return true, int(remaining.Seconds()) + 1
}

// recordFailure appends a failure timestamp for profileID.
func (t *lockoutTracker) recordFailure(profileID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	failures := t.recentFailures(profileID)
	failures = append(failures, t.clock.Now())
	t.cache.Add(profileID, failures)
}

// clear resets the failure counter for profileID, called on auth
// success.
func (t *lockoutTracker) clear(profileID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Remove(profileID)
}

// recentFailures returns the failures for profileID still inside the
// rolling window, pruning stale ones as a side effect. Caller holds the
// lock.
func (t *lockoutTracker) recentFailures(profileID string) []time.Time {
	v, ok := t.cache.Get(profileID)
	if !ok {
		return nil
	}
	all := v.([]time.Time)
	cutoff := t.clock.Now().Add(-lockoutWindow)
	pruned := all[:0:0]
	for _, ts := range all {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}
	return pruned
}
