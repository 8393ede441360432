// Package scratch mints unique on-disk paths for a single request's source
// code, on a directory that should be a fast (ideally tmpfs) filesystem.
//
// Uniqueness comes from an in-process atomic counter rather than a stat/rename
// race on the filesystem — this is component A of the codeexec pipeline.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Allocator mints scratch-file paths under a single root directory.
//
// The identifier handed out is a plain non-negative integer, never influenced
// by request input, so that part of "<root>/<n>.<ext>" cannot contain a shell
// or quoting metacharacter. The extension is used exactly as the caller
// passes it: exec-py passes "py", while exec-any passes the request's lang
// unchecked, and both handlers splice the path unquoted into the command
// strings they build (a bash one-liner, a python3 bootstrap). Do not change
// the identifier format without re-auditing every caller that builds a
// command string from a scratch path.
type Allocator struct {
	root    string
	counter atomic.Uint64
	mkOnce  sync.Once
	mkErr   error
}

// New creates an allocator rooted at dir. The directory is not created until
// the first call to Allocate.
func New(dir string) *Allocator {
	return &Allocator{root: dir}
}

// Root returns the allocator's configured scratch directory.
func (a *Allocator) Root() string {
	return a.root
}

// Allocate mints a new path "<root>/<n>.<ext>" that has not previously been
// returned by this allocator in this process's lifetime. It ensures the root
// directory exists, but does not create the file itself — callers write
// content explicitly and are responsible for calling Remove when done.
func (a *Allocator) Allocate(ext string) (string, error) {
	a.mkOnce.Do(func() {
		a.mkErr = os.MkdirAll(a.root, 0o755)
	})
	if a.mkErr != nil {
		return "", fmt.Errorf("scratch: create root %s: %w", a.root, a.mkErr)
	}

	id := a.counter.Add(1) - 1
	name := fmt.Sprintf("%d.%s", id, ext)
	return filepath.Join(a.root, name), nil
}

// Remove deletes a previously allocated path. Failures are swallowed —
// best-effort cleanup, not load-bearing for correctness.
func Remove(path string) {
	if path == "" {
		return
	}
	_ = os.Remove(path)
}
