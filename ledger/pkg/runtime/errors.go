package runtime

import (
	"errors"
	"fmt"

	"github.com/malbeclabs/biox/ledger/pkg/accountsdb"
)

// InstructionError is a numbered failure returned by a program. Two instruction errors
// match under errors.Is when their code and name agree, regardless of message detail.
type InstructionError struct {
	Code    uint32 `json:"code"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

func NewInstructionError(code uint32, name, message string) *InstructionError {
	return &InstructionError{Code: code, Name: name, Message: message}
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Message)
}

func (e *InstructionError) Is(target error) bool {
	t, ok := target.(*InstructionError)
	return ok && t.Code == e.Code && t.Name == e.Name
}

// Withf returns a copy of e with detail appended to the message.
func (e *InstructionError) Withf(format string, args ...any) *InstructionError {
	return &InstructionError{
		Code:    e.Code,
		Name:    e.Name,
		Message: e.Message + ": " + fmt.Sprintf(format, args...),
	}
}

// AsInstructionError extracts an InstructionError from err's chain.
func AsInstructionError(err error) (*InstructionError, bool) {
	var ierr *InstructionError
	if errors.As(err, &ierr) {
		return ierr, true
	}
	return nil, false
}

// Framework errors raised by the runtime while validating account access.
var (
	ErrAccountAlreadyInUse          = NewInstructionError(0, "AccountAlreadyInUse", "account already in use")
	ErrInstructionFallbackNotFound  = NewInstructionError(101, "InstructionFallbackNotFound", "fallback functions are not supported")
	ErrInstructionDidNotDeserialize = NewInstructionError(102, "InstructionDidNotDeserialize", "the program could not deserialize the given instruction")
	ErrAccountNotMutable            = NewInstructionError(2000, "AccountNotMutable", "the given account is not mutable")
	ErrConstraintSeeds              = NewInstructionError(2006, "ConstraintSeeds", "a seeds constraint was violated")
	ErrConstraintAddress            = NewInstructionError(2012, "ConstraintAddress", "an address constraint was violated")
	ErrAccountDiscriminatorMismatch = NewInstructionError(3002, "AccountDiscriminatorMismatch", "account discriminator did not match what was expected")
	ErrAccountDidNotDeserialize     = NewInstructionError(3003, "AccountDidNotDeserialize", "failed to deserialize the account")
	ErrNotEnoughAccountKeys         = NewInstructionError(3005, "AccountNotEnoughKeys", "not enough account keys given to the instruction")
	ErrAccountOwnedByWrongProgram   = NewInstructionError(3007, "AccountOwnedByWrongProgram", "the given account is owned by a different program than expected")
	ErrAccountNotSigner             = NewInstructionError(3010, "AccountNotSigner", "the given account did not sign")
	ErrAccountNotInitialized        = NewInstructionError(3012, "AccountNotInitialized", "the program expected this account to be already initialized")
	ErrAccountNotDeclared           = NewInstructionError(3020, "AccountNotDeclared", "the account is not named by the transaction")
	ErrPrivilegeEscalation          = NewInstructionError(3021, "PrivilegeEscalation", "cross-program invocation requested a privilege the caller does not hold")
	ErrCallDepthExceeded            = NewInstructionError(3022, "CallDepthExceeded", "cross-program invocation depth exceeded")
)

// Transaction level failures. These reject a transaction before any program runs.
var (
	ErrInvalidSignature          = errors.New("transaction signature verification failed")
	ErrMissingRequiredSignature  = errors.New("account marked as signer is not the transaction signer")
	ErrProgramNotFound           = errors.New("program not found")
	ErrMalformedTransaction      = errors.New("malformed transaction")
	ErrSignatureAlreadyProcessed = accountsdb.ErrSignatureAlreadyProcessed
)
