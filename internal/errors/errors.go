// Package errors provides the error taxonomy of the explorer engine.
package errors

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"
)

// ErrorType categorizes errors for propagation decisions.
type ErrorType int

const (
	// Unknown is an uncategorized error.
	Unknown ErrorType = iota
	// Validation means parameters do not satisfy a definition's contract.
	Validation
	// NotFound means an endpoint or definition id is unknown.
	NotFound
	// UnsupportedEndpointType means the endpoint type has no adapter.
	UnsupportedEndpointType
	// Timeout means the call deadline was exceeded.
	Timeout
	// Transport represents connection refused, DNS and TLS failures.
	Transport
	// Protocol means the remote answered in a shape the adapter cannot normalize.
	Protocol
	// Storage represents persistence failures.
	Storage
	// Cancelled represents caller cancellation.
	Cancelled
)

// String returns the string representation of ErrorType.
func (t ErrorType) String() string {
	switch t {
	case Validation:
		return "validation"
	case NotFound:
		return "not_found"
	case UnsupportedEndpointType:
		return "unsupported_endpoint_type"
	case Timeout:
		return "timeout"
	case Transport:
		return "transport"
	case Protocol:
		return "protocol"
	case Storage:
		return "storage"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsLocal reports whether errors of this type are raised before any network attempt.
func (t ErrorType) IsLocal() bool {
	switch t {
	case Validation, NotFound, UnsupportedEndpointType:
		return true
	default:
		return false
	}
}

// ExplorerError represents a categorized engine error.
type ExplorerError struct {
	Type       ErrorType
	EndpointID string
	Operation  string
	Message    string
	Cause      error
	StatusCode int
}

// Error implements the error interface.
func (e *ExplorerError) Error() string {
	var b strings.Builder
	b.WriteString(e.Type.String())
	b.WriteString(" error")
	if e.Operation != "" {
		b.WriteString(" during ")
		b.WriteString(e.Operation)
	}
	if e.EndpointID != "" {
		b.WriteString(" on ")
		b.WriteString(e.EndpointID)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, " (caused by: %v)", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ExplorerError) Unwrap() error {
	return e.Cause
}

// Is matches another ExplorerError of the same type.
func (e *ExplorerError) Is(target error) bool {
	t, ok := target.(*ExplorerError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// Sentinels usable with errors.Is.
var (
	ErrValidation  = &ExplorerError{Type: Validation}
	ErrNotFound    = &ExplorerError{Type: NotFound}
	ErrUnsupported = &ExplorerError{Type: UnsupportedEndpointType}
	ErrTimeout     = &ExplorerError{Type: Timeout}
	ErrTransport   = &ExplorerError{Type: Transport}
	ErrProtocol    = &ExplorerError{Type: Protocol}
	ErrStorage     = &ExplorerError{Type: Storage}
)

// New creates a new ExplorerError.
func New(errType ErrorType, endpointID, operation, message string, cause error) *ExplorerError {
	return &ExplorerError{
		Type:       errType,
		EndpointID: endpointID,
		Operation:  operation,
		Message:    message,
		Cause:      cause,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(endpointID, message string) *ExplorerError {
	return New(Validation, endpointID, "build", message, nil)
}

// NewNotFoundError creates a not found error for the given kind ("endpoint", "definition").
func NewNotFoundError(kind, id string) *ExplorerError {
	return New(NotFound, "", "lookup", fmt.Sprintf("%s %q not found", kind, id), nil)
}

// NewUnsupportedTypeError creates an unsupported endpoint type error.
func NewUnsupportedTypeError(endpointID, endpointType string) *ExplorerError {
	return New(UnsupportedEndpointType, endpointID, "select_adapter",
		fmt.Sprintf("unsupported endpoint type %q", endpointType), nil)
}

// NewTimeoutError creates a timeout error.
func NewTimeoutError(endpointID, operation string, cause error) *ExplorerError {
	return New(Timeout, endpointID, operation, "timeout", cause)
}

// NewTransportError creates a transport error.
func NewTransportError(endpointID, operation string, cause error) *ExplorerError {
	return New(Transport, endpointID, operation, "transport failure", cause)
}

// NewProtocolError creates a protocol error.
func NewProtocolError(endpointID, message string, cause error) *ExplorerError {
	return New(Protocol, endpointID, "normalize", message, cause)
}

// NewStorageError creates a storage error.
func NewStorageError(operation string, cause error) *ExplorerError {
	return New(Storage, "", operation, "storage failure", cause)
}

// NewCancelledError creates a cancelled error.
func NewCancelledError(endpointID, operation string) *ExplorerError {
	return New(Cancelled, endpointID, operation, "operation cancelled", context.Canceled)
}

// Categorize determines the error type of a transport-stage error.
func Categorize(err error, endpointID string) *ExplorerError {
	if err == nil {
		return nil
	}

	var explorerErr *ExplorerError
	if errors.As(err, &explorerErr) {
		return explorerErr
	}

	if errors.Is(err, context.Canceled) {
		return NewCancelledError(endpointID, "send")
	}

	if isTimeout(err) {
		return NewTimeoutError(endpointID, "send", err)
	}

	if isTransportError(err) {
		return NewTransportError(endpointID, "send", err)
	}

	return New(Unknown, endpointID, "send", err.Error(), err)
}

// CategorizeHTTPStatus returns a short failure description for an HTTP status,
// or "" when the status is not a failure.
func CategorizeHTTPStatus(statusCode int, statusText string) string {
	if statusCode < 400 {
		return ""
	}
	if statusText == "" {
		statusText = "error"
	}
	return fmt.Sprintf("HTTP %d: %s", statusCode, statusText)
}

// isTimeout checks if an error is a deadline expiry.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "Client.Timeout")
}

// isTransportError checks if an error comes from dialing, DNS or TLS.
func isTransportError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return true
	}

	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return true
	}

	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "tls:") ||
		strings.Contains(errStr, "x509:") ||
		strings.Contains(errStr, "dial tcp") ||
		strings.Contains(errStr, "EOF")
}

// IsValidation checks if an error is a validation error.
func IsValidation(err error) bool {
	return GetErrorType(err) == Validation
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return GetErrorType(err) == NotFound
}

// IsUnsupported checks if an error is an unsupported endpoint type error.
func IsUnsupported(err error) bool {
	return GetErrorType(err) == UnsupportedEndpointType
}

// IsStorage checks if an error is a storage error.
func IsStorage(err error) bool {
	return GetErrorType(err) == Storage
}

// GetStatusCode extracts the status code from an error.
func GetStatusCode(err error) int {
	var explorerErr *ExplorerError
	if errors.As(err, &explorerErr) {
		return explorerErr.StatusCode
	}
	return 0
}

// GetErrorType extracts the error type from an error.
func GetErrorType(err error) ErrorType {
	var explorerErr *ExplorerError
	if errors.As(err, &explorerErr) {
		return explorerErr.Type
	}
	return Unknown
}

// Message returns the bare message of an ExplorerError, or err.Error()
// for any other error.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var explorerErr *ExplorerError
	if errors.As(err, &explorerErr) {
		return explorerErr.Message
	}
	return err.Error()
}

// Describe returns the message stored in ExplorerResponse.error for a
// transport-stage failure: "timeout" for deadline expiry, otherwise the cause.
func Describe(err *ExplorerError) string {
	if err == nil {
		return ""
	}
	switch err.Type {
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	}
	if err.Cause != nil {
		return err.Cause.Error()
	}
	return err.Message
}
