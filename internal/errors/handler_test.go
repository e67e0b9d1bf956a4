package errors

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/avcore/internal/logger"
)

func newTestHandler() (*ErrorHandler, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.DebugLevel)
	return NewErrorHandler(l), &buf
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   ErrorType
		wantLevel  string
	}{
		{"invalid argument", NewInvalidArgument("invalid timebase %q", "1/0"), http.StatusBadRequest, ErrorTypeInvalidArgument, "warning"},
		{"invalid state", NewInvalidState("coder is closed"), http.StatusConflict, ErrorTypeInvalidState, "warning"},
		{"not found", NewNotFoundError("container"), http.StatusNotFound, ErrorTypeNotFound, "warning"},
		{"rate limited", New(ErrorTypeRateLimited, "slow down"), http.StatusTooManyRequests, ErrorTypeRateLimited, "debug"},
		{"plain error", errors.New("something went wrong"), http.StatusInternalServerError, ErrorTypeInternal, "error"},
		{"wrapped app error", fmt.Errorf("lookup: %w", NewNotFoundError("container")), http.StatusNotFound, ErrorTypeNotFound, "warning"},
		{"deadline", fmt.Errorf("list: %w", context.DeadlineExceeded), http.StatusServiceUnavailable, ErrorTypeServiceDown, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, buf := newTestHandler()
			req := httptest.NewRequest("GET", "/api/v1/containers/x", nil)
			req.Header.Set(logger.RequestIDHeader, "test-123")
			rr := httptest.NewRecorder()

			h.HandleError(rr, req, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			resp := decode(t, rr)
			assert.Equal(t, tt.wantType, resp.Error.Type)
			assert.NotEmpty(t, resp.Error.Message)
			assert.Equal(t, "test-123", resp.RequestID)

			var line map[string]interface{}
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, tt.wantLevel, line["level"])
			assert.Equal(t, "test-123", line["request_id"])
		})
	}
}

func TestHandleError_UsesRequestEntry(t *testing.T) {
	h, _ := newTestHandler()

	var buf bytes.Buffer
	reqLog := logrus.New()
	reqLog.SetOutput(&buf)
	reqLog.SetFormatter(&logrus.JSONFormatter{})

	req := httptest.NewRequest("GET", "/x", nil)
	ctx := logger.WithEntry(req.Context(), reqLog.WithField("scope", "request"))
	ctx = logger.WithRequestID(ctx, "req-9")
	req = req.WithContext(ctx)

	h.HandleError(httptest.NewRecorder(), req, NewInvalidState("busy"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request", line["scope"])
}

func TestHandleNotFound(t *testing.T) {
	h, _ := newTestHandler()
	rr := httptest.NewRecorder()
	h.HandleNotFound(rr, httptest.NewRequest("GET", "/nonexistent", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	resp := decode(t, rr)
	assert.Equal(t, ErrorTypeNotFound, resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "endpoint")
}

func TestHandleMethodNotAllowed(t *testing.T) {
	h, _ := newTestHandler()
	rr := httptest.NewRecorder()
	h.HandleMethodNotAllowed(rr, httptest.NewRequest("POST", "/version", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	resp := decode(t, rr)
	assert.Equal(t, ErrorTypeInvalidArgument, resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "Method not allowed")
}

func TestMiddleware(t *testing.T) {
	h, buf := newTestHandler()
	protected := h.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("middleware test panic")
	}))

	rr := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		protected.ServeHTTP(rr, httptest.NewRequest("GET", "/panic", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decode(t, rr)
	assert.Equal(t, ErrorTypeInternal, resp.Error.Type)
	assert.Contains(t, resp.Error.Message, "unexpected error")
	assert.Contains(t, buf.String(), "middleware test panic")
}
