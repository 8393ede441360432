package handlers

import (
	"github.com/ocx/backend/internal/config"
	"github.com/ocx/backend/internal/metrics"
	"github.com/ocx/backend/internal/runner"
	"github.com/ocx/backend/internal/scratch"
	"github.com/ocx/backend/internal/testbank"
)

// Deps bundles the components every request verb orchestrates, so handler
// constructors close over their dependencies rather than reaching for
// package-level state.
type Deps struct {
	Config   *config.Config
	Scratch  *scratch.Allocator
	Runner   *runner.Runner
	TestBank *testbank.Cache
	Metrics  *metrics.Registry
}
