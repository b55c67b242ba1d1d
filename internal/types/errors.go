// internal/types/errors.go
package types

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a program failure. Values follow the Anchor custom
// error range so they can be matched against on-chain logs.
type ErrorCode uint32

const (
	CodeValidation ErrorCode = 6000 + iota
	CodeInsufficientReserve
	CodeSlippageExceeded
	CodeUnauthorized
	CodeInsufficientFunds
	CodeArithmetic
)

var codeNames = map[ErrorCode]string{
	CodeValidation:          "ValidationError",
	CodeInsufficientReserve: "InsufficientReserve",
	CodeSlippageExceeded:    "SlippageExceeded",
	CodeUnauthorized:        "Unauthorized",
	CodeInsufficientFunds:   "InsufficientFunds",
	CodeArithmetic:          "ArithmeticError",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", uint32(c))
}

// ProgramError is a local, synchronous failure of a ledger operation.
// Operations that return one have not changed any account.
type ProgramError struct {
	Code    ErrorCode
	Message string
}

func (e *ProgramError) Error() string {
	if e.Message == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any ProgramError carrying the same code, so the sentinels below
// work with errors.Is regardless of message.
func (e *ProgramError) Is(target error) bool {
	var pe *ProgramError
	if !errors.As(target, &pe) {
		return false
	}
	return pe.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrValidation          = &ProgramError{Code: CodeValidation}
	ErrInsufficientReserve = &ProgramError{Code: CodeInsufficientReserve}
	ErrSlippageExceeded    = &ProgramError{Code: CodeSlippageExceeded}
	ErrUnauthorized        = &ProgramError{Code: CodeUnauthorized}
	ErrInsufficientFunds   = &ProgramError{Code: CodeInsufficientFunds}
	ErrArithmetic          = &ProgramError{Code: CodeArithmetic}
)

// ErrUnknownOutcome is returned by clients when a submission failed at the
// transport level and the operation may or may not have been applied.
// Callers must re-query state instead of resubmitting.
var ErrUnknownOutcome = errors.New("operation outcome unknown")

func newError(code ErrorCode, format string, args ...interface{}) *ProgramError {
	return &ProgramError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *ProgramError {
	return newError(CodeValidation, format, args...)
}

func InsufficientReserve(format string, args ...interface{}) *ProgramError {
	return newError(CodeInsufficientReserve, format, args...)
}

func SlippageExceeded(format string, args ...interface{}) *ProgramError {
	return newError(CodeSlippageExceeded, format, args...)
}

func Unauthorized(format string, args ...interface{}) *ProgramError {
	return newError(CodeUnauthorized, format, args...)
}

func InsufficientFunds(format string, args ...interface{}) *ProgramError {
	return newError(CodeInsufficientFunds, format, args...)
}

func Arithmetic(format string, args ...interface{}) *ProgramError {
	return newError(CodeArithmetic, format, args...)
}

// CodeOf returns the code of the first ProgramError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var pe *ProgramError
	if errors.As(err, &pe) {
		return pe.Code, true
	}
	return 0, false
}

// IsProgramError reports whether err carries a program failure, as opposed
// to a transport or infrastructure error.
func IsProgramError(err error) bool {
	_, ok := CodeOf(err)
	return ok
}
