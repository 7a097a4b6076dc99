package engine

import (
	"fmt"
	"sync"
	"time"
)

// windowKey identifies one rate-limit window: a (rule set, client) pair.
type windowKey struct {
	ruleSetID string
	client    string
}

// SlidingWindow tracks request timestamps per (rule set, client) and
// enforces a fixed window by eviction: timestamps at or before
// now − window are pruned lazily on each check, never by a background
// sweep. A burst exactly at the window boundary can momentarily admit
// 2×limit requests across two adjacent windows; that is a documented
// characteristic of the design, not a bug.
//
// The read-prune-append sequence runs under a single mutex so concurrent
// checks on the same key cannot both observe spare capacity.
type SlidingWindow struct {
	mu   sync.Mutex
	hits map[windowKey][]time.Time
	now  func() time.Time
}

// NewSlidingWindow creates an empty limiter.
func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{
		hits: make(map[windowKey][]time.Time),
		now:  time.Now,
	}
}

// Check records one chargeable request against the window and reports
// whether it is admitted. A rejected request does not occupy a slot.
func (w *SlidingWindow) Check(ruleSetID, client string, limit, windowSeconds int) (bool, string) {
	now := w.now()
	windowStart := now.Add(-time.Duration(windowSeconds) * time.Second)
	key := windowKey{ruleSetID: ruleSetID, client: client}

	w.mu.Lock()
	defer w.mu.Unlock()

	kept := pruneBefore(w.hits[key], windowStart)
	if len(kept) >= limit {
		w.hits[key] = kept
		return false, fmt.Sprintf("Rate limit exceeded: %d requests per %d seconds", limit, windowSeconds)
	}

	kept = append(kept, now)
	w.hits[key] = kept
	return true, fmt.Sprintf("Rate limit check passed: %d/%d", len(kept), limit)
}

// Occupancy returns how many timestamps currently survive the window for
// the given key without charging a request.
func (w *SlidingWindow) Occupancy(ruleSetID, client string, windowSeconds int) int {
	windowStart := w.now().Add(-time.Duration(windowSeconds) * time.Second)
	key := windowKey{ruleSetID: ruleSetID, client: client}

	w.mu.Lock()
	defer w.mu.Unlock()

	kept := pruneBefore(w.hits[key], windowStart)
	w.hits[key] = kept
	return len(kept)
}

// Reset drops all state for a rule set. Called when the rule set is
// deleted so a recreated one starts with a clean window.
func (w *SlidingWindow) Reset(ruleSetID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for key := range w.hits {
		if key.ruleSetID == ruleSetID {
			delete(w.hits, key)
		}
	}
}

// pruneBefore drops timestamps at or before cutoff, preserving order.
func pruneBefore(ts []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(ts) && !ts[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return ts
	}
	return append(ts[:0:0], ts[i:]...)
}
