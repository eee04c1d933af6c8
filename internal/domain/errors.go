package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Proration errors (PRORATION_*)
	ErrorCodeProrationInvalidRange ErrorCode = "PRORATION_INVALID_RANGE"

	// Contract errors (CONTRACT_*)
	ErrorCodeContractNotFound  ErrorCode = "CONTRACT_NOT_FOUND"
	ErrorCodeContractCancelled ErrorCode = "CONTRACT_CANCELLED"

	// Invoice errors (INVOICE_*)
	ErrorCodeInvoiceNotFound           ErrorCode = "INVOICE_NOT_FOUND"
	ErrorCodeInvoiceImmutable          ErrorCode = "INVOICE_IMMUTABLE"
	ErrorCodeInvoiceGenerationConflict ErrorCode = "INVOICE_GENERATION_CONFLICT"

	// Payment profile errors (PROFILE_*)
	ErrorCodeProfileNotFound        ErrorCode = "PROFILE_NOT_FOUND"
	ErrorCodeProfileUnsupportedBank ErrorCode = "PROFILE_UNSUPPORTED_BANK"

	// Reconciliation errors (RECON_*)
	ErrorCodeReconIncompatibleFile   ErrorCode = "RECON_INCOMPATIBLE_FILE"
	ErrorCodeReconMalformedFile      ErrorCode = "RECON_MALFORMED_FILE"
	ErrorCodeReconUnmatchedReference ErrorCode = "RECON_UNMATCHED_REFERENCE"

	// Webhook errors (WEBHOOK_*)
	ErrorCodeWebhookEventNotFound ErrorCode = "WEBHOOK_EVENT_NOT_FOUND"
	ErrorCodeWebhookStaleEvent    ErrorCode = "WEBHOOK_STALE_EVENT"
	ErrorCodeWebhookExchange      ErrorCode = "WEBHOOK_EXCHANGE_FAILED"

	// Validation errors (VALIDATION_*)
	ErrorCodeValidationFailed       ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationMissingField ErrorCode = "VALIDATION_MISSING_FIELD"

	// Internal errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeContractNotFound ||
		code == ErrorCodeInvoiceNotFound ||
		code == ErrorCodeProfileNotFound ||
		code == ErrorCodeWebhookEventNotFound
}

// IsGenerationConflict checks for the lock/unique-reference collision that the
// batch runner retries once with fresh state
func IsGenerationConflict(err error) bool {
	return GetErrorCode(err) == ErrorCodeInvoiceGenerationConflict
}

// IsStaleEvent reports whether an error is the idempotent webhook-redelivery
// short circuit, which callers treat as success
func IsStaleEvent(err error) bool {
	return GetErrorCode(err) == ErrorCodeWebhookStaleEvent
}

// Structured error instances
var (
	ErrProrationInvalidRange = NewDomainError(ErrorCodeProrationInvalidRange, "reference date precedes period start")

	ErrContractNotFound  = NewDomainError(ErrorCodeContractNotFound, "contract not found")
	ErrContractCancelled = NewDomainError(ErrorCodeContractCancelled, "contract is cancelled")

	ErrInvoiceNotFound           = NewDomainError(ErrorCodeInvoiceNotFound, "invoice not found")
	ErrInvoiceImmutable          = NewDomainError(ErrorCodeInvoiceImmutable, "invoice state forbids this mutation")
	ErrInvoiceGenerationConflict = NewDomainError(ErrorCodeInvoiceGenerationConflict, "concurrent invoice generation detected")

	ErrProfileNotFound        = NewDomainError(ErrorCodeProfileNotFound, "payment profile not found")
	ErrProfileUnsupportedBank = NewDomainError(ErrorCodeProfileUnsupportedBank, "no return-file layout registered for bank")

	ErrReconIncompatibleFile = NewDomainError(ErrorCodeReconIncompatibleFile, "return file does not belong to this payment profile")
	ErrReconMalformedFile    = NewDomainError(ErrorCodeReconMalformedFile, "return file is malformed")

	ErrWebhookEventNotFound = NewDomainError(ErrorCodeWebhookEventNotFound, "webhook event not found")
	ErrWebhookStaleEvent    = NewDomainError(ErrorCodeWebhookStaleEvent, "webhook event already processed")

	ErrValidationFailed       = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationMissingField = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
