package openaicompat

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/parley-llm/parley/pkg/chat"
)

// MapHTTPError converts an HTTP response with a non-2xx status code into a
// *chat.CompletionError. The backend's own error message, type, and code are
// preserved when the body parses as a ChatErrorResponse; otherwise a
// status-derived message is synthesized.
func MapHTTPError(resp *http.Response) *chat.CompletionError {
	detail := ExtractErrorDetail(resp.Body)

	if detail.Message == "" {
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			detail.Message = "backend authentication failed"
		case resp.StatusCode == http.StatusNotFound:
			detail.Message = "backend resource not found"
		case resp.StatusCode == http.StatusTooManyRequests:
			detail.Message = "backend rate limit exceeded"
		default:
			detail.Message = fmt.Sprintf("backend request failed (HTTP %d)", resp.StatusCode)
		}
	}
	if detail.Type == "" {
		detail.Type = chat.ErrorTypeBackend
	}
	if detail.Code == "" {
		detail.Code = fmt.Sprintf("http_%d", resp.StatusCode)
	}

	return &chat.CompletionError{Detail: detail}
}

// MapNetworkError converts a network-level error (connection refused,
// timeout, DNS failure) into a *chat.CompletionError.
func MapNetworkError(err error) *chat.CompletionError {
	return chat.NewBackendError("backend connection error: "+err.Error(), "connection_error")
}

// ExtractErrorDetail tries to parse the response body as a ChatErrorResponse
// and lifts the backend's message, type, and code into an ErrorDetail. An
// unparseable or empty body yields a zero detail.
func ExtractErrorDetail(body io.Reader) chat.ErrorDetail {
	var detail chat.ErrorDetail
	if body == nil {
		return detail
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return detail
	}

	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err != nil || errResp.Error.Message == "" {
		return detail
	}

	detail.Message = errResp.Error.Message
	detail.Type = chat.ErrorType(errResp.Error.Type)
	detail.Code = stringifyCode(errResp.Error.Code)
	return detail
}

// stringifyCode normalizes the backend error code, which some backends send
// as a string and others as a number or null.
func stringifyCode(code any) string {
	switch v := code.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
