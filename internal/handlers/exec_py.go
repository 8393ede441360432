package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ocx/backend/internal/scratch"
	"github.com/ocx/backend/internal/testbank"
	"github.com/ocx/backend/internal/verdict"
)

// ExecPy implements the exec-py verb: materialize code (plus a resolved test
// fixture, if testhash hit) to a scratch .py file, run it under python3 with
// a ulimit-capped virtual-memory ceiling, and return the verdict.
func ExecPy(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeRequest(r)
		if err != nil {
			writeInvalidJSON(w)
			return
		}

		ctx := r.Context()
		code := req.Code
		if req.TestHash != nil {
			code = testbank.AppendTest(d.TestBank, ctx, req.TestHash.Repo, req.TestHash.Hash, code)
		}

		path, err := d.Scratch.Allocate("py")
		if err != nil {
			verdict.Failure(fmt.Sprintf("scratch allocate: %v", err)).Write(w, req.JSONResp)
			return
		}
		defer scratch.Remove(path)

		if err := os.WriteFile(path, []byte(code), 0o644); err != nil {
			verdict.Failure(fmt.Sprintf("scratch write: %v", err)).Write(w, req.JSONResp)
			return
		}

		memLimitKB := d.Runner.MemoryLimitKB()
		script := fmt.Sprintf("ulimit -v %d; python3 %s", memLimitKB, path)

		start := time.Now()
		v := d.Runner.Run(ctx, "bash", []string{"-c", script}, []byte(req.Stdin), time.Duration(req.Timeout)*time.Second)
		d.Metrics.ExecDuration.WithLabelValues("exec-py").Observe(time.Since(start).Seconds())

		d.Metrics.Verdicts.WithLabelValues(strconv.Itoa(v.Status)).Inc()
		slog.Debug("exec-py done", "path", path, "status", v.Status)

		v.Write(w, req.JSONResp)
	}
}
