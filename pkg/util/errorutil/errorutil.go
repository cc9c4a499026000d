package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API clients.
const (
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeForbidden           = "FORBIDDEN"
	CodeBlocked             = "BLOCKED"
	CodeNotFound            = "NOT_FOUND"
	CodeValidation          = "VALIDATION_FAILED"
	CodeInvalidState        = "INVALID_STATE"
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeConflict            = "CONFLICT"
	CodeQuotaExceeded       = "QUOTA_EXCEEDED"
	CodeAlreadyBoosted      = "ALREADY_BOOSTED"
	CodeDuplicateVote       = "DUPLICATE_VOTE"
	CodeSelfVote            = "SELF_VOTE"
	CodePaymentNotCompleted = "PAYMENT_NOT_COMPLETED"
	CodeGatewayUnavailable  = "GATEWAY_UNAVAILABLE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthenticated(message string) error {
	return NewDomainError(CodeUnauthenticated, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewBlocked() error {
	return NewDomainError(CodeBlocked, "account is blocked", http.StatusForbidden, nil)
}

func NewInvalidState(message string, details map[string]any) error {
	return NewDomainError(CodeInvalidState, message, http.StatusConflict, details)
}

func NewInvalidTransition(from, to string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("cannot change status from %s to %s", from, to),
		http.StatusUnprocessableEntity,
		map[string]any{"from": from, "to": to})
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewQuotaExceeded reports that the free issue allowance is used up.
func NewQuotaExceeded(limit int) error {
	return NewDomainError(CodeQuotaExceeded,
		"free issue limit reached, subscribe to report more issues",
		http.StatusForbidden,
		map[string]any{"limitReached": true, "limit": limit})
}

func NewAlreadyBoosted(issueID string) error {
	return NewDomainError(CodeAlreadyBoosted, "issue is already high priority", http.StatusConflict,
		map[string]any{"issue_id": issueID})
}

func NewDuplicateVote() error {
	return NewDomainError(CodeDuplicateVote, "you have already upvoted this issue", http.StatusConflict, nil)
}

func NewSelfVote() error {
	return NewDomainError(CodeSelfVote, "you cannot upvote your own issue", http.StatusForbidden, nil)
}

func NewPaymentNotCompleted(status string) error {
	return NewDomainError(CodePaymentNotCompleted, "payment not completed", http.StatusPaymentRequired,
		map[string]any{"payment_status": status})
}

func NewGatewayUnavailable(err error) error {
	return &DomainError{
		Code:       CodeGatewayUnavailable,
		Message:    "payment gateway unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

func NewRateLimited() error {
	return NewDomainError(CodeRateLimited, "too many requests", http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError. Anything that is not
// already a DomainError becomes INTERNAL_ERROR.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}

// HasCode reports whether err carries a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == code
}
