package web

// errors.go provides unified error response handling for the web layer.
//
// Every failed request:
//  1. Has its error kind mapped to an HTTP status (statusFor)
//  2. Has its message mapped to a coded user message via core.MapError
//  3. Is logged server-side with the technical error and request ID
//  4. Is answered with an errorResponse body

import (
	"errors"
	"net/http"

	"github.com/JonMunkholm/datasets/internal/core"
	"github.com/JonMunkholm/datasets/internal/logging"
)

// errorResponse is the JSON body of a failed request. Message and Action
// are safe to show to users; Error carries the validation detail for
// client-correctable errors only.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch core.KindOf(err) {
	case core.ErrInvalidInput:
		return http.StatusBadRequest
	case core.ErrNotFound:
		return http.StatusNotFound
	case core.ErrInvalidState, core.ErrConflict:
		return http.StatusConflict
	case core.ErrUpstream:
		return http.StatusBadGateway
	case core.ErrTooManyUploads:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the mapped status and user message.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	userMsg := core.MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", userMsg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request error", attrs...)
	}

	if errors.Is(err, core.ErrTooManyUploads) {
		w.Header().Set("Retry-After", "5")
	}

	detail := userMsg.Message
	if status < http.StatusInternalServerError {
		var coreErr *core.Error
		if errors.As(err, &coreErr) && coreErr.Msg != "" {
			detail = coreErr.Msg
		}
	}

	writeJSON(w, status, errorResponse{
		Error:   detail,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}
