package metadata

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"docflow/pkg/requestcontext"
)

func TestRequestMetadata(t *testing.T) {
	var requestID, clientIP string
	h := RequestMetadata(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID = requestcontext.RequestID(r.Context())
		clientIP = requestcontext.ClientIP(r.Context())
	}))

	t.Run("keeps inbound request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(HeaderRequestID, "req-123")
		req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, "req-123", requestID)
		assert.Equal(t, "10.0.0.1", clientIP)
		assert.Equal(t, "req-123", rr.Header().Get(HeaderRequestID))
	})

	t.Run("generates request id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.NotEmpty(t, requestID)
	})
}
