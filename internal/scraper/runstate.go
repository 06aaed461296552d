// internal/scraper/runstate.go
package scraper

import (
	"sync"

	"github.com/fetchlab/cataloger/internal/pipeline"
)

// RunState is the single source of truth for ceiling checks across the run:
// save/enqueue counters, seen identity keys, queued detail URLs, the one-way
// proxy circuit latch, and the cooperative stop flag. Every mutation is an
// atomic read-decide-write under one mutex so two workers can never both
// claim the last slot under the item ceiling.
type RunState struct {
	mu sync.Mutex

	itemsSaved    int
	itemsEnqueued int
	seenKeys      map[string]struct{}
	queuedDetails map[string]struct{}

	maxItems int

	proxyCircuitOpen bool
	stopped          bool
}

// NewRunState creates run state with the given item ceiling (0 = unlimited).
func NewRunState(maxItems int) *RunState {
	return &RunState{
		seenKeys:      make(map[string]struct{}),
		queuedDetails: make(map[string]struct{}),
		maxItems:      maxItems,
	}
}

// AcceptSave offers an identity key for persistence. On AcceptOK the key is
// marked seen and a save slot is consumed; reaching the ceiling also raises
// the stop flag.
func (rs *RunState) AcceptSave(key string) pipeline.AcceptStatus {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, dup := rs.seenKeys[key]; dup {
		return pipeline.AcceptDuplicate
	}
	if rs.maxItems > 0 && rs.itemsSaved >= rs.maxItems {
		rs.stopped = true
		return pipeline.AcceptFull
	}

	rs.seenKeys[key] = struct{}{}
	rs.itemsSaved++
	if rs.maxItems > 0 && rs.itemsSaved >= rs.maxItems {
		rs.stopped = true
	}
	return pipeline.AcceptOK
}

// ReserveDetail reserves an enqueue slot for a detail page URL. It returns
// false when the URL was already queued or the enqueue ceiling is reached.
func (rs *RunState) ReserveDetail(url string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if _, dup := rs.queuedDetails[url]; dup {
		return false
	}
	if rs.maxItems > 0 && rs.itemsEnqueued >= rs.maxItems {
		rs.stopped = true
		return false
	}

	rs.queuedDetails[url] = struct{}{}
	rs.itemsEnqueued++
	if rs.maxItems > 0 && rs.itemsEnqueued >= rs.maxItems {
		rs.stopped = true
	}
	return true
}

// Seen reports whether an identity key has already been accepted.
func (rs *RunState) Seen(key string) bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	_, ok := rs.seenKeys[key]
	return ok
}

// ItemsSaved returns the number of accepted records so far.
func (rs *RunState) ItemsSaved() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.itemsSaved
}

// ItemsEnqueued returns the number of detail tasks reserved so far.
func (rs *RunState) ItemsEnqueued() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.itemsEnqueued
}

// OpenProxyCircuit latches the circuit open. The first failure wins; the
// latch never closes within a run.
func (rs *RunState) OpenProxyCircuit() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.proxyCircuitOpen = true
}

// ProxyCircuitOpen reports whether proxy use is disabled for the rest of
// the run.
func (rs *RunState) ProxyCircuitOpen() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.proxyCircuitOpen
}

// RequestStop raises the cooperative stop flag. Workers check it before
// starting a new unit of work; in-flight fetches are not aborted.
func (rs *RunState) RequestStop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.stopped = true
}

// Stopped reports whether workers should pick up new work.
func (rs *RunState) Stopped() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.stopped
}
