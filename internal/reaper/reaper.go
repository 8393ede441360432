// Package reaper implements component C: a background task that enforces
// wall-clock deadlines out-of-band (in case the runner's in-band timed wait
// is itself dropped before firing under load) and evicts stale test-bank
// entries on the same cadence.
package reaper

import (
	"context"
	"log/slog"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/ocx/backend/internal/metrics"
)

// deadlineRecord is the (pid, started_at, wall_limit) triple from the data
// model: every currently-running child spawned by the runner appears here
// until it exits naturally (the entry may linger harmlessly until the next
// sweep) or is force-killed.
type deadlineRecord struct {
	startedAt time.Time
	wallLimit time.Duration
}

// Evictor evicts state that has gone stale as of now. The test-bank cache
// satisfies this so the reaper can sweep it on the same ticker without
// importing the testbank package (avoiding an import cycle, since testbank
// does not need to know about the reaper).
type Evictor interface {
	EvictStale(now time.Time)
}

// Reaper owns the process-wide deadline table and the sweep loop that
// enforces it.
type Reaper struct {
	mu            sync.Mutex
	table         map[int]deadlineRecord
	sweepInterval time.Duration
	evictors      []Evictor
	metrics       *metrics.Registry
}

// New creates a Reaper that sweeps every interval. m may be nil, in which
// case sweep activity is not recorded.
func New(interval time.Duration, m *metrics.Registry) *Reaper {
	return &Reaper{
		table:         make(map[int]deadlineRecord),
		sweepInterval: interval,
		metrics:       m,
	}
}

// RegisterEvictor adds a background eviction target swept alongside the
// deadline table (e.g. the test-bank cache's age-based eviction).
func (r *Reaper) RegisterEvictor(e Evictor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictors = append(r.evictors, e)
}

// Track records a freshly spawned child's deadline. Called by the runner at
// spawn time.
func (r *Reaper) Track(pid int, wallLimit time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table[pid] = deadlineRecord{startedAt: time.Now(), wallLimit: wallLimit}
}

// Untrack removes a child's deadline record, called by the runner once it
// has itself resolved the child's fate (natural exit or in-band timeout).
// A PID that the reaper has already swept and killed may be untracked again
// harmlessly — the map simply won't contain it.
func (r *Reaper) Untrack(pid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.table, pid)
}

// Run blocks, sweeping the deadline table and registered evictors on a fixed
// interval, until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

// sweep collects deadline records whose wall limit has elapsed, removes them
// from the table, then probes and kills each stale child — releasing the
// table lock before the kill syscalls so spawns are never blocked on a
// sweep's liveness probes.
func (r *Reaper) sweep() {
	sweepID := uuid.New().String()[:8]
	now := time.Now()

	r.mu.Lock()
	var stale []int
	for pid, rec := range r.table {
		if now.Sub(rec.startedAt) > rec.wallLimit {
			stale = append(stale, pid)
			delete(r.table, pid)
		}
	}
	evictors := append([]Evictor(nil), r.evictors...)
	r.mu.Unlock()

	for _, pid := range stale {
		r.killStale(pid, sweepID)
	}

	for _, e := range evictors {
		e.EvictStale(now)
	}
}

// killStale probes liveness with a zero-signal and, if the child is still
// alive, force-kills it. Errors are ignored — this is best-effort.
func (r *Reaper) killStale(pid int, sweepID string) {
	if err := syscall.Kill(pid, 0); err != nil {
		// Already exited; the reaper only provides liveness, not freshness.
		return
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		slog.Warn("reaper: kill failed", "sweep", sweepID, "pid", pid, "error", err)
		return
	}
	if r.metrics != nil {
		r.metrics.ReaperKills.Inc()
	}
	slog.Info("reaper: killed stale child past deadline", "sweep", sweepID, "pid", pid)
}
