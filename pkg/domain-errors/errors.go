// Package domainerrors carries coded errors from services to transports.
//
// Every failure the system surfaces has a Code; every Code belongs to one
// Category of the failure taxonomy. Stores return sentinel errors, services
// translate them into coded errors, and handlers map categories to HTTP status.
package domainerrors

import (
	"errors"
)

// Code identifies a specific failure reason.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"

	// Amounts
	CodeInvalidAmount Code = "invalid_amount"

	// Token account state
	CodeNoSourceAccount     Code = "no_source_account"
	CodeInsufficientBalance Code = "insufficient_balance"

	// Compliance gating
	CodeComplianceMissing        Code = "compliance_missing"
	CodeComplianceInactive       Code = "compliance_inactive"
	CodeEnsureRegistrationFailed Code = "ensure_registration_failed"

	// Transfer-hook resolution
	CodeHookMetadataUnavailable      Code = "hook_metadata_unavailable"
	CodeExtraAccountResolutionFailed Code = "extra_account_resolution_failed"

	// Submission
	CodeSubmissionFailed    Code = "submission_failed"
	CodeConfirmationTimeout Code = "confirmation_timeout"

	// On-chain rejections
	CodeComplianceRejected  Code = "compliance_rejected"
	CodeInsufficientFunds   Code = "insufficient_funds"
	CodeOnChainUnclassified Code = "onchain_unclassified"

	// Order and distribution conflicts
	CodeAlreadyFinalized     Code = "already_finalized"
	CodeDistributionInFlight Code = "distribution_in_flight"
)

// Category groups codes into the failure taxonomy.
type Category string

const (
	CategoryValidation     Category = "validation"
	CategoryAccountState   Category = "account_state"
	CategoryCompliance     Category = "compliance"
	CategoryHookResolution Category = "hook_resolution"
	CategorySubmission     Category = "submission"
	CategoryOnChain        Category = "onchain_rejection"
	CategoryConflict       Category = "conflict"
	CategoryAuth           Category = "auth"
	CategoryInternal       Category = "internal"
)

var codeCategories = map[Code]Category{
	CodeBadRequest:    CategoryValidation,
	CodeValidation:    CategoryValidation,
	CodeInvalidInput:  CategoryValidation,
	CodeInvalidAmount: CategoryValidation,

	CodeNotFound:            CategoryAccountState,
	CodeNoSourceAccount:     CategoryAccountState,
	CodeInsufficientBalance: CategoryAccountState,

	CodeComplianceMissing:        CategoryCompliance,
	CodeComplianceInactive:       CategoryCompliance,
	CodeEnsureRegistrationFailed: CategoryCompliance,

	CodeHookMetadataUnavailable:      CategoryHookResolution,
	CodeExtraAccountResolutionFailed: CategoryHookResolution,

	CodeSubmissionFailed:    CategorySubmission,
	CodeConfirmationTimeout: CategorySubmission,
	CodeTimeout:             CategorySubmission,

	CodeComplianceRejected:  CategoryOnChain,
	CodeInsufficientFunds:   CategoryOnChain,
	CodeOnChainUnclassified: CategoryOnChain,

	CodeConflict:             CategoryConflict,
	CodeAlreadyFinalized:     CategoryConflict,
	CodeDistributionInFlight: CategoryConflict,

	CodeUnauthorized: CategoryAuth,
	CodeForbidden:    CategoryAuth,
}

// Category returns the taxonomy category for the code. Unknown codes are internal.
func (c Code) Category() Category {
	if cat, ok := codeCategories[c]; ok {
		return cat
	}
	return CategoryInternal
}

// Error is a coded domain error with a human-readable reason.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// Is reports whether the outermost domain error in the chain carries code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// HasCode reports whether any domain error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// CategoryOf returns the taxonomy category of err.
func CategoryOf(err error) Category {
	return CodeOf(err).Category()
}
