package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ocx/backend/internal/scratch"
	"github.com/ocx/backend/internal/verdict"
)

// ExecAny implements the exec-any (polyglot) verb: materialize code to a
// scratch file named after its language extension, and delegate to the
// external eval_<lang> evaluator via a python3 bootstrap one-liner.
//
// testhash is rejected here: verification fixtures are only defined for the
// primary language, per the data model's invariant.
func ExecAny(d *Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := decodeRequest(r)
		if err != nil {
			writeInvalidJSON(w)
			return
		}

		if req.TestHash != nil {
			verdict.Internal("Testhash is not supported for this endpoint").Write(w, false)
			return
		}

		path, err := d.Scratch.Allocate(req.Lang)
		if err != nil {
			verdict.Failure(fmt.Sprintf("scratch allocate: %v", err)).Write(w, false)
			return
		}
		defer scratch.Remove(path)

		if err := os.WriteFile(path, []byte(req.Code), 0o644); err != nil {
			verdict.Failure(fmt.Sprintf("scratch write: %v", err)).Write(w, false)
			return
		}

		bootstrap := fmt.Sprintf(
			"import sys; sys.path.append('%s'); import json; import eval_%s; print(json.dumps(eval_%s.eval_script('%s')))",
			d.Config.Sandbox.MultiplEDir, req.Lang, req.Lang, path,
		)

		start := time.Now()
		v := d.Runner.Run(r.Context(), "python3", []string{"-c", bootstrap}, nil, time.Duration(req.Timeout)*time.Second)
		d.Metrics.ExecDuration.WithLabelValues("exec-any").Observe(time.Since(start).Seconds())

		d.Metrics.Verdicts.WithLabelValues(strconv.Itoa(v.Status)).Inc()
		slog.Debug("exec-any done", "path", path, "lang", req.Lang, "status", v.Status)

		// Always plain — /any_exec's response body shape is fixed regardless
		// of json_resp.
		v.Write(w, false)
	}
}
