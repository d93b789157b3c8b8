package entities

import "errors"

// Error taxonomy shared across services. Callers branch with errors.Is;
// wrapping with fmt.Errorf("%w") preserves the category.
var (
	// ErrValidation marks malformed input (address, hash, amount). Rejected
	// before any side effect.
	ErrValidation = errors.New("validation error")

	// ErrChainUnavailable marks node or network failures, including timeouts.
	// Always retryable by a later sweep; never marks a record failed.
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrTxNotFound means the node does not know the transaction hash.
	ErrTxNotFound = errors.New("transaction not found")

	// ErrTxNotSecure means the transaction has not reached the required
	// confirmation depth yet. Retryable once more blocks land.
	ErrTxNotSecure = errors.New("transaction not secure yet")

	// ErrTxFailed means the transaction reverted on chain. Terminal.
	ErrTxFailed = errors.New("transaction failed on chain")

	// ErrInsufficientFunds marks a balance check failure during a build.
	// Permanent for the current attempt; the record stays PENDING.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidToken marks a contract that does not answer the ERC20 probe.
	ErrInvalidToken = errors.New("invalid token contract")

	ErrAddressNotFound    = errors.New("address not found")
	ErrTokenNotFound      = errors.New("token not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")

	// ErrAddressBusy means another withdrawal for the same address is already
	// in flight; the claim was not granted.
	ErrAddressBusy = errors.New("address has a withdrawal in progress")
)
