package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/config"
	"github.com/ocx/backend/internal/metrics"
	"github.com/ocx/backend/internal/reaper"
	"github.com/ocx/backend/internal/runner"
	"github.com/ocx/backend/internal/scratch"
	"github.com/ocx/backend/internal/testbank"
	"github.com/prometheus/client_golang/prometheus"
)

type emptyProvider struct{}

func (emptyProvider) LoadRows(ctx context.Context, repoID string) (map[string]string, error) {
	return map[string]string{}, nil
}

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available in this environment")
	}
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available in this environment")
	}
}

func newTestDeps(t *testing.T) *Deps {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	r := reaper.New(time.Hour, m)
	run := runner.New(os.Getuid(), os.Getgid(), r)
	return &Deps{
		Config:   &config.Config{},
		Scratch:  scratch.New(t.TempDir()),
		Runner:   run,
		TestBank: testbank.New(emptyProvider{}, time.Hour, m),
		Metrics:  m,
	}
}

func TestExecPy_SimpleExpression(t *testing.T) {
	requirePython(t)
	d := newTestDeps(t)

	body := `{"code":"print(2+2)","timeout":5}`
	req := httptest.NewRequest("POST", "/py_exec", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	ExecPy(d)(w, req)

	assert.Equal(t, "0\n4\n", w.Body.String())
}

func TestExecPy_StdinIsFedToChild(t *testing.T) {
	requirePython(t)
	d := newTestDeps(t)

	body := `{"code":"import sys;print(sys.stdin.read())","timeout":5,"stdin":"hi"}`
	req := httptest.NewRequest("POST", "/py_exec", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	ExecPy(d)(w, req)

	assert.Equal(t, "0\nhi\n", w.Body.String())
}

func TestExecPy_Timeout(t *testing.T) {
	requirePython(t)
	d := newTestDeps(t)

	body := `{"code":"while True: pass","timeout":1}`
	req := httptest.NewRequest("POST", "/py_exec", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	ExecPy(d)(w, req)

	assert.Equal(t, "1\nTimeout", w.Body.String())
}

func TestExecPy_RuntimeErrorReportsStderr(t *testing.T) {
	requirePython(t)
	d := newTestDeps(t)

	body := `{"code":"1/0","timeout":5}`
	req := httptest.NewRequest("POST", "/py_exec", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	ExecPy(d)(w, req)

	resp := w.Body.String()
	require.True(t, len(resp) > 2)
	assert.Equal(t, byte('1'), resp[0])
	assert.Contains(t, resp, "ZeroDivisionError")
}

func TestExecPy_JSONRespShape(t *testing.T) {
	requirePython(t)
	d := newTestDeps(t)

	body := `{"code":"def add(a,b):return a+b","timeout":5,"json_resp":true}`
	req := httptest.NewRequest("POST", "/py_exec", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	ExecPy(d)(w, req)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, float64(0), got["status"])
}

func TestExecPy_EmptyCodeSucceedsWithEmptyOutput(t *testing.T) {
	requirePython(t)
	d := newTestDeps(t)

	body := `{"code":"","timeout":5}`
	req := httptest.NewRequest("POST", "/py_exec", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	ExecPy(d)(w, req)

	assert.Equal(t, "0\n", w.Body.String())
}

func TestExecPy_MalformedJSONReturnsFixedBody(t *testing.T) {
	d := newTestDeps(t)

	req := httptest.NewRequest("POST", "/py_exec", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()

	ExecPy(d)(w, req)

	assert.Equal(t, "1\nInvalid JSON input", w.Body.String())
}

func TestExecPy_ScratchFileRemovedAfterRequest(t *testing.T) {
	requirePython(t)
	d := newTestDeps(t)

	body := `{"code":"print(1)","timeout":5}`
	req := httptest.NewRequest("POST", "/py_exec", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	ExecPy(d)(w, req)

	entries, err := os.ReadDir(d.Scratch.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
