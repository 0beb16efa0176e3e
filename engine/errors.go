package engine

import "fmt"

// SyncDivergenceError reports that the ledger confirmed a mutation but
// the mirror failed to record it. It is never swallowed, the caller
// surfaces it as a reconciliation task. The on-chain effect stands and
// must not be retried.
type SyncDivergenceError struct {
	Kind            string
	TargetID        string
	ConfirmationRef string
	Intent          any
	Cause           error
}

func (e *SyncDivergenceError) Error() string {
	return fmt.Sprintf("SYNC_DIVERGENCE: %s %s confirmed on ledger (%s) but the mirror write failed: %v",
		e.Kind, e.TargetID, e.ConfirmationRef, e.Cause)
}

func (e *SyncDivergenceError) Unwrap() error { return e.Cause }

// InvalidTransitionError rejects a lifecycle action requested from a
// disallowed state, before any external call is attempted
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("INVALID_TRANSITION: %s cannot move from %q to %q", e.Entity, e.From, e.To)
}

// InsufficientStockError rejects an action requesting more quantity
// than is available. User-correctable, nothing was mutated.
type InsufficientStockError struct {
	Available uint64
	Requested uint64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("INSUFFICIENT_STOCK: requested %d, available %d", e.Requested, e.Available)
}

// ListingUnavailableError rejects a purchase of an inactive listing
// before any payment-carrying call is issued
type ListingUnavailableError struct {
	ListingID uint64
}

func (e *ListingUnavailableError) Error() string {
	return fmt.Sprintf("listing %d is not available for sale", e.ListingID)
}
