package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// NoDocumentLoaded indicates no document is open in the host
	NoDocumentLoaded ErrorCode = "NO_DOCUMENT_LOADED"
	// UnknownDocument indicates the doc_id is not among loaded documents
	UnknownDocument ErrorCode = "UNKNOWN_DOCUMENT"
	// NotFound indicates an address, name, or string doesn't exist
	NotFound ErrorCode = "NOT_FOUND"
	// Ambiguous indicates a name resolved to more than one address
	Ambiguous ErrorCode = "AMBIGUOUS"
	// InvalidFormat indicates a malformed address, hex literal, or regex
	InvalidFormat ErrorCode = "INVALID_FORMAT"
	// NotCached indicates no string cache has been built for the document
	NotCached ErrorCode = "NOT_CACHED"
	// BackendUnavailable indicates a backend call failed or timed out
	BackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	// RebaseConflict indicates segments would overlap or wrap after a rebase
	RebaseConflict ErrorCode = "REBASE_CONFLICT"
	// CacheVersionMismatch indicates the cache artifact has an unsupported format version
	CacheVersionMismatch ErrorCode = "CACHE_VERSION_MISMATCH"
	// InternalError indicates an unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Command     string `json:"command,omitempty"`
	Safe        bool   `json:"safe,omitempty"`
	Description string `json:"description,omitempty"`
}

// BinError represents a binkb error with code, message, and suggestions
type BinError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new BinError
func New(code ErrorCode, message string, cause error) *BinError {
	return &BinError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *BinError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *BinError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *BinError) WithDetails(details interface{}) *BinError {
	e.Details = details
	return e
}

// CodeOf extracts the error code from an error chain.
// Unrecognized errors report InternalError.
func CodeOf(err error) ErrorCode {
	var be *BinError
	if errors.As(err, &be) {
		return be.Code
	}
	return InternalError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code ErrorCode) bool {
	var be *BinError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

// NewNoDocumentLoaded creates the standard "nothing open" error.
func NewNoDocumentLoaded() *BinError {
	return New(NoDocumentLoaded, "no document is currently loaded", nil)
}

// NewUnknownDocument creates an error for an unrecognized doc_id.
func NewUnknownDocument(docID string) *BinError {
	return New(UnknownDocument, fmt.Sprintf("unknown document %q", docID), nil)
}

// NewNotFound creates a NotFound error describing what was looked up.
func NewNotFound(what string) *BinError {
	return New(NotFound, what, nil)
}

// NewAmbiguous creates an Ambiguous error for a name with multiple bindings.
func NewAmbiguous(name string, count int) *BinError {
	return New(Ambiguous, fmt.Sprintf("name %q resolves to %d addresses", name, count), nil)
}

// NewInvalidFormat creates an InvalidFormat error for a malformed input.
func NewInvalidFormat(field, reason string) *BinError {
	return New(InvalidFormat, fmt.Sprintf("invalid %s: %s", field, reason), nil)
}

// NewNotCached creates the "build the cache first" error.
func NewNotCached(docID string) *BinError {
	return New(NotCached, fmt.Sprintf("no string cache built for document %q", docID), nil)
}

// NewBackendUnavailable wraps a failed backend call. The operation is not
// retried automatically: the backend is the host's live analysis session
// and blind retry risks re-issuing a minutes-scale operation.
func NewBackendUnavailable(op string, cause error) *BinError {
	return New(BackendUnavailable, fmt.Sprintf("backend call %s failed", op), cause)
}

// NewRebaseConflict creates a RebaseConflict error.
func NewRebaseConflict(reason string) *BinError {
	return New(RebaseConflict, reason, nil)
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	NotCached: {
		{
			Command:     "binkb cache build",
			Safe:        true,
			Description: "Build the string cache for the current document (expensive, minutes-scale)",
		},
	},
	CacheVersionMismatch: {
		{
			Command:     "binkb cache build",
			Safe:        true,
			Description: "Rebuild the string cache with the current artifact format",
		},
	},
	BackendUnavailable: {
		{
			Command:     "binkb doctor",
			Safe:        true,
			Description: "Check backend configuration and host session state",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
