package domain

import (
	"errors"
	"fmt"
)

var (
	// Storage-level errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid database execution context")
)

// Code is the stable, machine-readable identifier carried by every payment error.
type Code string

const (
	CodeAlreadyOwned        Code = "ALREADY_OWNED"
	CodeNotPurchasable      Code = "NOT_PURCHASABLE"
	CodeInvalidBundle       Code = "INVALID_BUNDLE"
	CodeInvalidPlan         Code = "INVALID_PLAN"
	CodeInvalidComic        Code = "INVALID_COMIC"
	CodeGatewayUnavailable  Code = "GATEWAY_UNAVAILABLE"
	CodeGatewayRejected     Code = "GATEWAY_REJECTED"
	CodePaymentDeclined     Code = "PAYMENT_DECLINED"
	CodePaymentNotSucceeded Code = "PAYMENT_NOT_SUCCEEDED"
	CodeRetryLimitExceeded  Code = "RETRY_LIMIT_EXCEEDED"
	CodeNotRetryable        Code = "NOT_RETRYABLE"
	CodeNotRefundable       Code = "NOT_REFUNDABLE"
	CodeRevokePending       Code = "REVOKE_PENDING"
	CodeNotFound            Code = "NOT_FOUND"
	CodeInternal            Code = "INTERNAL"
)

// Class groups codes by how a caller is expected to react.
type Class int

const (
	ClassInternal   Class = iota
	ClassValidation       // caller error; never retried
	ClassTransient        // nothing committed locally; the whole operation may be retried
	ClassTerminal         // gateway or state machine said no
)

var codeClasses = map[Code]Class{
	CodeAlreadyOwned:        ClassValidation,
	CodeNotPurchasable:      ClassValidation,
	CodeInvalidBundle:       ClassValidation,
	CodeInvalidPlan:         ClassValidation,
	CodeInvalidComic:        ClassValidation,
	CodeNotFound:            ClassValidation,
	CodeGatewayUnavailable:  ClassTransient,
	CodeGatewayRejected:     ClassTerminal,
	CodePaymentDeclined:     ClassTerminal,
	CodePaymentNotSucceeded: ClassTerminal,
	CodeRetryLimitExceeded:  ClassTerminal,
	CodeNotRetryable:        ClassTerminal,
	CodeNotRefundable:       ClassTerminal,
	CodeRevokePending:       ClassTerminal,
}

// Error is a coded payment error. Two errors match under errors.Is when their codes match.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrAlreadyOwned        = &Error{Code: CodeAlreadyOwned, Msg: "comic already owned"}
	ErrNotPurchasable      = &Error{Code: CodeNotPurchasable, Msg: "comic is not purchasable"}
	ErrInvalidBundle       = &Error{Code: CodeInvalidBundle, Msg: "invalid bundle"}
	ErrInvalidPlan         = &Error{Code: CodeInvalidPlan, Msg: "unknown subscription plan"}
	ErrInvalidComic        = &Error{Code: CodeInvalidComic, Msg: "comic does not exist"}
	ErrGatewayUnavailable  = &Error{Code: CodeGatewayUnavailable, Msg: "payment gateway unavailable"}
	ErrGatewayRejected     = &Error{Code: CodeGatewayRejected, Msg: "payment gateway rejected the request"}
	ErrPaymentDeclined     = &Error{Code: CodePaymentDeclined, Msg: "payment declined"}
	ErrPaymentNotSucceeded = &Error{Code: CodePaymentNotSucceeded, Msg: "payment has not succeeded"}
	ErrRetryLimitExceeded  = &Error{Code: CodeRetryLimitExceeded, Msg: "retry limit exceeded"}
	ErrNotRetryable        = &Error{Code: CodeNotRetryable, Msg: "payment is not retryable"}
	ErrNotRefundable       = &Error{Code: CodeNotRefundable, Msg: "payment is not refundable"}
	ErrRevokePending       = &Error{Code: CodeRevokePending, Msg: "gateway refund succeeded but local revoke did not commit"}
	ErrPaymentNotFound     = &Error{Code: CodeNotFound, Msg: "payment not found"}
)

// NewError builds a coded error with a specific message, optionally wrapping a cause.
func NewError(code Code, msg string, cause error) *Error {
	return &Error{Code: code, Msg: msg, Err: cause}
}

// Wrap attaches a cause to a sentinel while keeping its code and message.
func Wrap(sentinel *Error, cause error) *Error {
	return &Error{Code: sentinel.Code, Msg: sentinel.Msg, Err: cause}
}

// CodeOf returns the code of the first *Error in the chain, NOT_FOUND for
// ErrNotFound and INTERNAL for anything else.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	if errors.Is(err, ErrNotFound) {
		return CodeNotFound
	}
	return CodeInternal
}

// ClassOf reports the class of err's code.
func ClassOf(err error) Class {
	if c, ok := codeClasses[CodeOf(err)]; ok {
		return c
	}
	return ClassInternal
}

// IsRetrySafe is true when the failed operation left no local state behind and may be repeated as-is.
func IsRetrySafe(err error) bool { return ClassOf(err) == ClassTransient }
