package httputil

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "docflow/pkg/domain-errors"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestWriteError(t *testing.T) {
	t.Run("internal error hides the wrapped cause", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.Wrap(assert.AnError, dErrors.CodeInternal, "replace document"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "internal_error", body["error"])
		assert.NotContains(t, body, "error_description")
	})

	t.Run("uncoded error is internal", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, assert.AnError)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("quota error keeps its message", func(t *testing.T) {
		w := httptest.NewRecorder()
		WriteError(w, dErrors.New(dErrors.CodeQuotaExceeded, "tenant storage quota exceeded"))

		assert.Equal(t, http.StatusInsufficientStorage, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "quota_exceeded", body["error"])
		assert.Equal(t, "tenant storage quota exceeded", body["error_description"])
	})
}

func TestStatusFor(t *testing.T) {
	cases := map[dErrors.Code]int{
		dErrors.CodeValidation:        http.StatusBadRequest,
		dErrors.CodeUnauthorized:      http.StatusUnauthorized,
		dErrors.CodeForbidden:         http.StatusForbidden,
		dErrors.CodeNotFound:          http.StatusNotFound,
		dErrors.CodeConflict:          http.StatusConflict,
		dErrors.CodeInvalidTransition: http.StatusConflict,
		dErrors.CodePayloadTooLarge:   http.StatusRequestEntityTooLarge,
		dErrors.CodeUnsupportedFormat: http.StatusUnsupportedMediaType,
		dErrors.CodeUpstream:          http.StatusBadGateway,
		dErrors.CodeInternal:          http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, StatusFor(code), code)
	}
}

type triggerBody struct {
	Trigger string `json:"trigger"`
}

func (b *triggerBody) Validate() error {
	b.Trigger = strings.TrimSpace(b.Trigger)
	if b.Trigger == "" {
		return dErrors.New(dErrors.CodeValidation, "trigger is required")
	}
	return nil
}

func TestDecodeAndPrepare(t *testing.T) {
	decode := func(body string) (*triggerBody, *httptest.ResponseRecorder, bool) {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		got, ok := DecodeAndPrepare[triggerBody](w, r, nil, context.Background(), "req-1")
		return got, w, ok
	}

	got, _, ok := decode(`{"trigger":" approve "}`)
	require.True(t, ok)
	assert.Equal(t, "approve", got.Trigger)

	_, w, ok := decode(`{"trigger":"approve","extra":1}`)
	assert.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad_request", decodeBody(t, w)["error"])

	_, w, ok = decode(`{"trigger":"  "}`)
	assert.False(t, ok)
	assert.Equal(t, "validation_error", decodeBody(t, w)["error"])
}
