// Package testutil provides request and response helpers for handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Envelope mirrors the OCPI response wrapper for assertions.
type Envelope struct {
	Data          json.RawMessage `json:"data"`
	StatusCode    int             `json:"status_code"`
	StatusMessage string          `json:"status_message"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewJSONRequest builds a request carrying body as JSON. A nil body yields
// an empty one.
func NewJSONRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err, "marshal request body")
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// NewRequest builds a bodyless request.
func NewRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	return httptest.NewRequest(method, path, nil)
}

// WithOCPIToken sets the token-scheme Authorization header used on the
// protocol endpoints.
func WithOCPIToken(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Token "+token)
	return req
}

// WithBearerToken sets the bearer-scheme Authorization header used on the
// admin endpoints.
func WithBearerToken(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

// Do runs the request against the handler and returns the recorder.
func Do(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// DecodeEnvelope parses the recorded body as an OCPI envelope. Bodies that
// are not envelopes, like the plaintext metrics exposition, yield the zero
// value so status-only assertions stay cheap.
func DecodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) Envelope {
	t.Helper()
	var env Envelope
	if rr.Body.Len() == 0 {
		return env
	}
	_ = json.Unmarshal(rr.Body.Bytes(), &env)
	return env
}
