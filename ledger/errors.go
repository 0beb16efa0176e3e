package ledger

import (
	"errors"
	"fmt"
)

// Gateway error codes as constants
const (
	// Environment checks failed, all mutating calls are blocked
	CodeEnvironmentViolation = "ENVIRONMENT_VIOLATION"
	// Fee estimation failed, recovered internally with the fallback ceiling
	CodeEstimationFailed = "ESTIMATION_FAILED"
	// The ledger rejected the call, carries the on-chain reason
	CodeReverted = "REVERTED"
	// Confirmation wait expired, the call may still confirm later
	CodeTimeout = "CONFIRMATION_TIMEOUT"
	// The node did not answer at the transport level
	CodeNetworkUnreachable = "NETWORK_UNREACHABLE"
	// The signing identity cannot cover value plus fee
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"
)

// Error represents an error raised by the ledger gateway or the guard
type Error struct {
	Code    string
	Message string
	Detail  string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
}

// Retryable reports whether the caller may attempt the call again.
// A timed out confirmation is retryable only after re-querying ledger
// state, the submitted call may have confirmed in the meantime.
func (e *Error) Retryable() bool {
	return e.Code == CodeTimeout
}

// IsCode reports whether err is a ledger Error with the given code
func IsCode(err error, code string) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Code == code
	}
	return false
}
