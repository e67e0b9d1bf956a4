package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/zsiec/avcore/internal/logger"
)

// ErrorResponse is the JSON body of every API error.
type ErrorResponse struct {
	Error     ErrorDetails `json:"error"`
	RequestID string       `json:"request_id,omitempty"`
}

// ErrorDetails contains the error details.
type ErrorDetails struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorHandler turns errors into JSON responses and logs them.
type ErrorHandler struct {
	logger *logrus.Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleError writes err with the status of its ErrorType. Errors that are
// not AppErrors become INTERNAL_ERROR, except context timeouts, which
// become SERVICE_UNAVAILABLE.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	appErr := classify(err)
	status := appErr.HTTPStatus()

	entry := h.entry(r).WithFields(logrus.Fields{
		"error_type": appErr.Type,
		"status":     status,
	})
	if appErr.Code != "" {
		entry = entry.WithField("error_code", appErr.Code)
	}
	switch {
	case status >= http.StatusInternalServerError:
		entry.Error(appErr.Error())
	case status == http.StatusTooManyRequests:
		entry.Debug(appErr.Error())
	default:
		entry.Warn(appErr.Error())
	}

	h.respond(w, r, status, ErrorDetails{
		Type:    appErr.Type,
		Message: appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	})
}

func classify(err error) *AppError {
	if appErr, ok := GetAppError(err); ok {
		return appErr
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Wrap(err, ErrorTypeServiceDown, "request timed out")
	}
	return WrapInternalError(err, "An unexpected error occurred")
}

// HandleNotFound answers requests that matched no route.
func (h *ErrorHandler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	h.HandleError(w, r, NewNotFoundError("endpoint"))
}

// HandleMethodNotAllowed answers a known route with the wrong method.
func (h *ErrorHandler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	h.entry(r).Warn("Method not allowed")
	h.respond(w, r, http.StatusMethodNotAllowed, ErrorDetails{
		Type:    ErrorTypeInvalidArgument,
		Message: "Method not allowed",
	})
}

// HandlePanic answers a request whose handler panicked.
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	h.entry(r).WithField("panic", recovered).Error("Panic recovered in HTTP handler")
	h.HandleError(w, r, NewInternalError("An unexpected error occurred"))
}

// Middleware recovers handler panics into 500 responses.
func (h *ErrorHandler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if recovered := recover(); recovered != nil {
				h.HandlePanic(w, r, recovered)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// entry prefers the request-scoped entry set by the request logger.
func (h *ErrorHandler) entry(r *http.Request) *logrus.Entry {
	if logger.RequestID(r.Context()) != "" {
		return logger.FromContext(r.Context())
	}
	return h.logger.WithFields(logrus.Fields{
		"request_id": r.Header.Get(logger.RequestIDHeader),
		"method":     r.Method,
		"path":       r.URL.Path,
	})
}

func (h *ErrorHandler) respond(w http.ResponseWriter, r *http.Request, status int, details ErrorDetails) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	body := ErrorResponse{Error: details, RequestID: r.Header.Get(logger.RequestIDHeader)}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to encode error response")
	}
}
