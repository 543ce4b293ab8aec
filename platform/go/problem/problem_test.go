package problem

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteProblem(t *testing.T) {
	fields := map[string][]string{"currency": {"must be 3 letters"}}
	p := New("Validation failed", "one or more fields are invalid", TypeValidation, http.StatusBadRequest, fields)
	fields["currency"][0] = "mutated"

	rec := httptest.NewRecorder()
	Write(rec, p)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Validation failed", body["title"])
	require.Equal(t, TypeValidation, body["type"])
	require.Equal(t, []any{"must be 3 letters"}, body["errors"].(map[string]any)["currency"])
}

func TestDecodeJSON(t *testing.T) {
	var dst map[string]any

	err := DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("")), &dst)
	require.ErrorIs(t, err, ErrEmptyBody)

	err = DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")), &dst)
	require.Error(t, err)

	require.NoError(t, DecodeJSON(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"limit": 5}`)), &dst))
	require.Equal(t, float64(5), dst["limit"])
}
