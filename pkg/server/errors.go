package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/parley-llm/parley/pkg/chat"
)

// HTTPStatusFromError maps a CompletionError to an HTTP status code.
// Backend errors that carry an upstream HTTP status (code "http_NNN")
// pass that status through; other backend failures become 502.
func HTTPStatusFromError(err *chat.CompletionError) int {
	switch err.Detail.Type {
	case chat.ErrorTypeInit, chat.ErrorTypeMissingModel, chat.ErrorTypeCapability:
		return http.StatusBadRequest
	case chat.ErrorTypeSinkFault:
		return http.StatusInternalServerError
	case chat.ErrorTypeBackend:
		if code, ok := strings.CutPrefix(err.Detail.Code, "http_"); ok {
			if status, convErr := strconv.Atoi(code); convErr == nil && status >= 400 && status < 600 {
				return status
			}
		}
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteCompletionError writes a CompletionError as the standard JSON
// error body, deriving the HTTP status from the error type.
func WriteCompletionError(w http.ResponseWriter, err *chat.CompletionError) {
	WriteErrorResponse(w, err, HTTPStatusFromError(err))
}

// WriteErrorResponse writes a CompletionError with an explicit status.
func WriteErrorResponse(w http.ResponseWriter, err *chat.CompletionError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(err)
}
