package verdict

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_PlainShape(t *testing.T) {
	w := httptest.NewRecorder()
	Success("4\n").Write(w, false)
	assert.Equal(t, "0\n4\n", w.Body.String())
}

func TestWrite_JSONShape(t *testing.T) {
	w := httptest.NewRecorder()
	Failure("Timeout").Write(w, true)

	var got Verdict
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, StatusFailure, got.Status)
	assert.Equal(t, "Timeout", got.Payload)
}

func TestInternal_Status(t *testing.T) {
	v := Internal("Testhash is not supported for this endpoint")
	assert.Equal(t, StatusError, v.Status)
}
