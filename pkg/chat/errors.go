package chat

import "fmt"

// ErrorType categorizes a completion failure.
type ErrorType string

const (
	// ErrorTypeInit marks bad or missing construction options, detected
	// synchronously before any network I/O.
	ErrorTypeInit ErrorType = "init_error"

	// ErrorTypeCapability marks an optional capability the resolved
	// provider does not implement.
	ErrorTypeCapability ErrorType = "capability_error"

	// ErrorTypeMissingModel marks a call with no model resolvable from
	// call options or client defaults.
	ErrorTypeMissingModel ErrorType = "missing_model"

	// ErrorTypeBackend marks a failure reported by the backend transport.
	ErrorTypeBackend ErrorType = "backend_error"

	// ErrorTypeSinkFault marks a fault raised inside a caller-supplied
	// delta sink or adapter-internal event processing.
	ErrorTypeSinkFault ErrorType = "sink_fault"
)

// ErrorDetail carries the failure message plus optional backend-provided
// classification.
type ErrorDetail struct {
	Message string    `json:"message"`
	Type    ErrorType `json:"type,omitempty"`
	Code    string    `json:"code,omitempty"`
}

// CompletionError is the single failure shape every completion path
// resolves to. The core never surfaces a bare string or a backend-native
// fault; adapters normalize into this type at their boundary.
type CompletionError struct {
	Detail ErrorDetail `json:"error"`
}

// Error implements the error interface.
func (e *CompletionError) Error() string {
	if e.Detail.Type != "" {
		return fmt.Sprintf("%s: %s", e.Detail.Type, e.Detail.Message)
	}
	return e.Detail.Message
}

// NewInitError creates a CompletionError for construction failures.
func NewInitError(message string) *CompletionError {
	return &CompletionError{Detail: ErrorDetail{Type: ErrorTypeInit, Message: message}}
}

// NewCapabilityError creates a CompletionError for unsupported optional
// capabilities.
func NewCapabilityError(message string) *CompletionError {
	return &CompletionError{Detail: ErrorDetail{Type: ErrorTypeCapability, Message: message}}
}

// NewMissingModelError creates a CompletionError for calls where neither
// the call options nor the client defaults name a model.
func NewMissingModelError() *CompletionError {
	return &CompletionError{Detail: ErrorDetail{
		Type:    ErrorTypeMissingModel,
		Message: "no model specified: set Options.Model or configure a client default model",
	}}
}

// NewBackendError creates a CompletionError for backend transport
// failures. Code may be empty.
func NewBackendError(message, code string) *CompletionError {
	return &CompletionError{Detail: ErrorDetail{Type: ErrorTypeBackend, Message: message, Code: code}}
}

// NewSinkFault creates a CompletionError for faults raised inside a
// caller-supplied sink or adapter event processing.
func NewSinkFault(message string) *CompletionError {
	return &CompletionError{Detail: ErrorDetail{Type: ErrorTypeSinkFault, Message: message}}
}

// AsCompletionError normalizes any error into a *CompletionError. Errors
// that already carry the shape pass through unchanged; everything else is
// wrapped as a backend error so callers always observe the documented
// failure structure.
func AsCompletionError(err error) *CompletionError {
	if err == nil {
		return nil
	}
	if ce, ok := err.(*CompletionError); ok {
		return ce
	}
	return NewBackendError(err.Error(), "")
}
