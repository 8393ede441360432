package handlers

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecAny_RejectsTesthash(t *testing.T) {
	d := newTestDeps(t)

	body := `{"code":"print(1)","timeout":5,"lang":"py","testhash":{"repo":"r","hash":"00000000000000000000000000000000"}}`
	req := httptest.NewRequest("POST", "/any_exec", bytes.NewBufferString(body))
	w := httptest.NewRecorder()

	ExecAny(d)(w, req)

	assert.Equal(t, "-1\nTesthash is not supported for this endpoint", w.Body.String())
}

func TestExecAny_MalformedJSONReturnsFixedBody(t *testing.T) {
	d := newTestDeps(t)

	req := httptest.NewRequest("POST", "/any_exec", bytes.NewBufferString("not json"))
	w := httptest.NewRecorder()

	ExecAny(d)(w, req)

	assert.Equal(t, "1\nInvalid JSON input", w.Body.String())
}
