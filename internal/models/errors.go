package models

import "errors"

// Error taxonomy for the economy workflow. Services return these wrapped with
// context; callers branch with errors.Is.
var (
	ErrInvalidAmount               = errors.New("invalid amount")
	ErrInvalidQuantity             = errors.New("invalid quantity")
	ErrInsufficientFunds           = errors.New("insufficient funds")
	ErrInsufficientFundsAtApproval = errors.New("insufficient funds at approval")
	ErrAccountNotApproved          = errors.New("account not approved")
	ErrAlreadyResolved             = errors.New("already resolved")
	ErrUnknownAccount              = errors.New("unknown account")
	ErrUnknownPlayer               = errors.New("unknown player")
	ErrStorageUnavailable          = errors.New("storage unavailable")
)
