package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeServiceUnavailable is used when an optional backend is not configured
	ErrCodeServiceUnavailable = "ERR_SERVICE_UNAVAILABLE"
)

// Request error codes
const (
	// ErrCodeValidation is used when request binding or validation fails
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Identity error codes
const (
	// ErrCodeUnauthorized is used when no caller account is presented
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeForbidden is used when the caller may not perform the action
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
)

// Custody error codes, one per failure kind of the custody flows
const (
	ErrCodeInvalidArgument       = "ERR_INVALID_ARGUMENT"
	ErrCodeInsufficientAllowance = "ERR_INSUFFICIENT_ALLOWANCE"
	ErrCodeTransferFailed        = "ERR_TRANSFER_FAILED"
	ErrCodeApprovalFailed        = "ERR_APPROVAL_FAILED"
	ErrCodeVaultCallFailed       = "ERR_VAULT_CALL_FAILED"
	ErrCodeReentrantCall         = "ERR_REENTRANT_CALL"
	ErrCodeCustodyInvariant      = "ERR_CUSTODY_INVARIANT"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:            http.StatusInternalServerError,
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,

	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound: http.StatusNotFound,

	// Argument errors -> 400 Bad Request
	ErrCodeInvalidArgument: http.StatusBadRequest,

	// Token and vault rejections -> 422 Unprocessable Entity
	ErrCodeInsufficientAllowance: http.StatusUnprocessableEntity,
	ErrCodeTransferFailed:        http.StatusUnprocessableEntity,
	ErrCodeApprovalFailed:        http.StatusUnprocessableEntity,
	ErrCodeVaultCallFailed:       http.StatusUnprocessableEntity,

	// A second flow entered while one is in progress
	ErrCodeReentrantCall: http.StatusConflict,

	// Custody accounting broke; nothing the client can fix
	ErrCodeCustodyInvariant: http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to the API codes above
var DomainErrorCodeMapping = map[string]string{
	"INVALID_STATE":          ErrCodeInternal,
	"NOT_FOUND":              ErrCodeNotFound,
	"UNAUTHORIZED":           ErrCodeForbidden,
	"INTERNAL_ERROR":         ErrCodeInternal,
	"JOURNAL_DISABLED":       ErrCodeServiceUnavailable,
	"INVALID_ARGUMENT":       ErrCodeInvalidArgument,
	"INSUFFICIENT_ALLOWANCE": ErrCodeInsufficientAllowance,
	"TRANSFER_FAILED":        ErrCodeTransferFailed,
	"APPROVAL_FAILED":        ErrCodeApprovalFailed,
	"VAULT_CALL_FAILED":      ErrCodeVaultCallFailed,
	"REENTRANT_CALL":         ErrCodeReentrantCall,
	"CUSTODY_INVARIANT":      ErrCodeCustodyInvariant,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format, and unknown codes, are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := DomainErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}
