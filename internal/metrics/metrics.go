// Package metrics exposes the Prometheus counters and histograms that make
// the codeexec service's request-verb and reaper activity observable.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry bundles the codeexec service's Prometheus collectors.
type Registry struct {
	Verdicts       *prometheus.CounterVec
	ReaperKills    prometheus.Counter
	TestBankHits   prometheus.Counter
	TestBankMisses prometheus.Counter
	ExecDuration   *prometheus.HistogramVec
}

// New registers and returns the codeexec collectors against reg.
func New(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "codeexec_verdicts_total",
			Help: "Count of execution verdicts by status (0=success, 1=failure, -1=internal error).",
		}, []string{"status"}),
		ReaperKills: factory.NewCounter(prometheus.CounterOpts{
			Name: "codeexec_reaper_kills_total",
			Help: "Count of children force-killed by the reaper past their deadline.",
		}),
		TestBankHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "codeexec_testbank_hits_total",
			Help: "Count of test-bank lookups that resolved to a known hash.",
		}),
		TestBankMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "codeexec_testbank_misses_total",
			Help: "Count of test-bank lookups that did not resolve.",
		}),
		ExecDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "codeexec_exec_duration_seconds",
			Help:    "Wall-clock duration of a request verb's sandboxed execution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"verb"}),
	}
}
