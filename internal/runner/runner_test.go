package runner

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/verdict"
)

// fakeTracker records Track/Untrack calls without touching a real reaper,
// so these tests exercise Runner in isolation.
type fakeTracker struct {
	mu      sync.Mutex
	tracked []int
}

func (f *fakeTracker) Track(pid int, wallLimit time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracked = append(f.tracked, pid)
}

func (f *fakeTracker) Untrack(pid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, p := range f.tracked {
		if p == pid {
			f.tracked = append(f.tracked[:i], f.tracked[i+1:]...)
			return
		}
	}
}

// newTestRunner drops "privilege" to the current process's own uid/gid, which
// exercises the full Credential path. That path also calls setgroups, which
// needs CAP_SETGID even for identical ids, so children spawn only when the
// tests run as root (or with that capability); otherwise Run returns a
// spawn-failure verdict.
func newTestRunner(tracker Tracker) *Runner {
	return New(os.Getuid(), os.Getgid(), tracker)
}

func TestRunner_SuccessExitCaptureStdout(t *testing.T) {
	tracker := &fakeTracker{}
	r := newTestRunner(tracker)

	v := r.Run(context.Background(), "sh", []string{"-c", "echo hello"}, nil, 5*time.Second)

	assert.Equal(t, verdict.StatusSuccess, v.Status)
	assert.Equal(t, "hello\n", v.Payload)
}

func TestRunner_NonZeroExitCapturesStderr(t *testing.T) {
	r := newTestRunner(&fakeTracker{})

	v := r.Run(context.Background(), "sh", []string{"-c", "echo oops 1>&2; exit 1"}, nil, 5*time.Second)

	assert.Equal(t, verdict.StatusFailure, v.Status)
	assert.Equal(t, "oops\n", v.Payload)
}

func TestRunner_TimeoutKillsChild(t *testing.T) {
	r := newTestRunner(&fakeTracker{})

	start := time.Now()
	v := r.Run(context.Background(), "sh", []string{"-c", "sleep 5"}, nil, 200*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, verdict.StatusFailure, v.Status)
	assert.Equal(t, "Timeout", v.Payload)
	assert.Less(t, elapsed, 4*time.Second)
}

func TestRunner_StdinIsFedToChild(t *testing.T) {
	r := newTestRunner(&fakeTracker{})

	v := r.Run(context.Background(), "cat", nil, []byte("hi"), 5*time.Second)

	assert.Equal(t, verdict.StatusSuccess, v.Status)
	assert.Equal(t, "hi", v.Payload)
}

func TestRunner_TracksThenUntracksPID(t *testing.T) {
	tracker := &fakeTracker{}
	r := newTestRunner(tracker)

	r.Run(context.Background(), "sh", []string{"-c", "true"}, nil, 5*time.Second)

	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	assert.Empty(t, tracker.tracked, "pid should be untracked after the run completes")
}

func TestRunner_MemoryLimitKBIsPositiveAndCached(t *testing.T) {
	r := newTestRunner(&fakeTracker{})

	first := r.MemoryLimitKB()
	second := r.MemoryLimitKB()

	require.Greater(t, first, uint64(0))
	assert.Equal(t, first, second)
}

func TestRunner_SpawnFailureReturnsFailureVerdict(t *testing.T) {
	r := newTestRunner(&fakeTracker{})

	v := r.Run(context.Background(), "/no/such/binary-codeexec-test", nil, nil, time.Second)

	assert.Equal(t, verdict.StatusFailure, v.Status)
	assert.NotEmpty(t, v.Payload)
}
