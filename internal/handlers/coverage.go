package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ocx/backend/internal/coverage"
	"github.com/ocx/backend/internal/scratch"
	"github.com/ocx/backend/internal/verdict"
)

type coverageResponse struct {
	Coverage int `json:"coverage"`
}

// Coverage implements the coverage verb: run the submitted code under
// `coverage run`, bounded by the request timeout; on success, run
// `coverage report` bounded by Config.Sandbox.CoverageReportTimeoutSec (10s
// by default) and parse its output to an
// integer percentage. Any pipeline failure collapses to -1.
func Coverage(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeRequest(r)
		if err != nil {
			w.Write([]byte("-1"))
			return
		}

		path, err := d.Scratch.Allocate("py")
		if err != nil {
			writeCoverage(w, -1)
			return
		}
		defer scratch.Remove(path)

		covPath := path + ".cov"
		defer scratch.Remove(covPath)

		if err := os.WriteFile(path, []byte(req.Code), 0o644); err != nil {
			writeCoverage(w, -1)
			return
		}

		ctx := r.Context()

		runStart := time.Now()
		runV := d.Runner.Run(ctx, "coverage", []string{"run", "--data-file", covPath, path}, nil, time.Duration(req.Timeout)*time.Second)
		d.Metrics.ExecDuration.WithLabelValues("coverage-run").Observe(time.Since(runStart).Seconds())
		if runV.Status != verdict.StatusSuccess {
			d.Metrics.Verdicts.WithLabelValues(strconv.Itoa(runV.Status)).Inc()
			writeCoverage(w, -1)
			return
		}

		reportTimeout := time.Duration(d.Config.Sandbox.CoverageReportTimeoutSec) * time.Second
		reportStart := time.Now()
		reportV := d.Runner.Run(ctx, "coverage", []string{"report", "--data-file", covPath}, nil, reportTimeout)
		d.Metrics.ExecDuration.WithLabelValues("coverage-report").Observe(time.Since(reportStart).Seconds())
		if reportV.Status != verdict.StatusSuccess {
			d.Metrics.Verdicts.WithLabelValues(strconv.Itoa(reportV.Status)).Inc()
			writeCoverage(w, -1)
			return
		}

		pct, ok := coverage.Parse(reportV.Payload)
		if !ok {
			writeCoverage(w, -1)
			return
		}
		writeCoverage(w, pct)
	}
}

func writeCoverage(w http.ResponseWriter, pct int) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(coverageResponse{Coverage: pct})
}
