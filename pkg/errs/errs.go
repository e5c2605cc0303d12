// Package errs holds the failure taxonomy shared by the ledger, floor,
// distributor and vault. Components wrap these sentinels with context;
// callers match them with errors.Is.
package errs

import "errors"

var (
	// ErrInsufficientAmount rejects zero or otherwise degenerate amounts.
	ErrInsufficientAmount = errors.New("insufficient amount")
	// ErrInsufficientBalance means the requested amount exceeds a tracked share or ledger balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrAllowanceExceeded is returned by delegated transfers without enough prior approval.
	ErrAllowanceExceeded = errors.New("transfer amount exceeds allowance")
	// ErrInsufficientReserve means a floor payout would exceed the reserve.
	ErrInsufficientReserve = errors.New("insufficient reserve")
	// ErrForbidden means the caller lacks the required role.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyInitialized rejects re-initialization of a singleton setting.
	ErrAlreadyInitialized = errors.New("already initialized")
	// ErrTransferLimit covers per-account max-transfer and min-holding rules.
	ErrTransferLimit = errors.New("transfer limit exceeded")
	// ErrInvalidArgument rejects malformed governance input.
	ErrInvalidArgument = errors.New("invalid argument")
)
