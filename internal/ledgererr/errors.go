// Package ledgererr defines the closed set of rejection reasons a split
// operation can report.
//
// Every error is a package-level sentinel; wrap with %w and match with
// errors.Is. Code extracts the stable name from any wrapped chain.
package ledgererr

import "errors"

// Code is the stable, caller-visible name of a rejection.
type Code string

const (
	CodeSplitIDTooLong       Code = "SplitIdTooLong"
	CodeNoParticipants       Code = "NoParticipants"
	CodeTooManyParticipants  Code = "TooManyParticipants"
	CodeInvalidAmount        Code = "InvalidAmount"
	CodeDuplicateParticipant Code = "DuplicateParticipant"
	CodeNotAParticipant      Code = "NotAParticipant"
	CodeAlreadyPaid          Code = "AlreadyPaid"
	CodeNotFullyPaid         Code = "NotFullyPaid"
	CodeUnauthorized         Code = "Unauthorized"
	CodeInsufficientFunds    Code = "InsufficientFunds"

	CodeDecodeError     Code = "DecodeError"
	CodeAddressMismatch Code = "AddressMismatch"
	CodeSplitNotFound   Code = "SplitNotFound"
	CodeSplitExists     Code = "SplitExists"
	CodeBalanceOverflow Code = "BalanceOverflow"
)

// Error is a named rejection.
type Error struct {
	code Code
	msg  string
}

func newError(code Code, msg string) *Error {
	return &Error{code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Code returns the rejection name.
func (e *Error) Code() Code { return e.code }

// Guard failures.
var (
	ErrSplitIDTooLong       = newError(CodeSplitIDTooLong, "split ID must be 32 characters or fewer")
	ErrNoParticipants       = newError(CodeNoParticipants, "at least one participant is required")
	ErrTooManyParticipants  = newError(CodeTooManyParticipants, "a maximum of 10 participants is allowed per split")
	ErrInvalidAmount        = newError(CodeInvalidAmount, "total amount must be greater than zero")
	ErrDuplicateParticipant = newError(CodeDuplicateParticipant, "a participant may appear only once per split")
	ErrNotAParticipant      = newError(CodeNotAParticipant, "the signing identity is not a participant in this split")
	ErrAlreadyPaid          = newError(CodeAlreadyPaid, "this participant has already paid their share")
	ErrNotFullyPaid         = newError(CodeNotFullyPaid, "cannot close a split that still has outstanding payments")
	ErrUnauthorized         = newError(CodeUnauthorized, "only the creator may close this split")
	ErrInsufficientFunds    = newError(CodeInsufficientFunds, "insufficient funds for transfer")
)

// Structural failures: malformed or misrouted calls.
var (
	ErrDecode          = newError(CodeDecodeError, "malformed split record")
	ErrAddressMismatch = newError(CodeAddressMismatch, "supplied address does not match the derived split address")
	ErrSplitNotFound   = newError(CodeSplitNotFound, "split not found")
	ErrSplitExists     = newError(CodeSplitExists, "split already exists at this address")
	ErrBalanceOverflow = newError(CodeBalanceOverflow, "balance overflow")
)

// CodeOf returns the rejection name carried anywhere in err's chain, or ""
// when err is not a ledger rejection.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ""
}

// IsGuard reports whether err is a guard failure, as opposed to a
// structural or infrastructure failure.
func IsGuard(err error) bool {
	switch CodeOf(err) {
	case CodeSplitIDTooLong, CodeNoParticipants, CodeTooManyParticipants,
		CodeInvalidAmount, CodeDuplicateParticipant, CodeNotAParticipant,
		CodeAlreadyPaid, CodeNotFullyPaid, CodeUnauthorized, CodeInsufficientFunds:
		return true
	}
	return false
}
