package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WithdrawalStatus represents the lifecycle state of an outbound transfer
type WithdrawalStatus string

const (
	WithdrawalStatusPending    WithdrawalStatus = "PENDING"
	WithdrawalStatusInProgress WithdrawalStatus = "IN_PROGRESS"
	WithdrawalStatusFailed     WithdrawalStatus = "FAILED"
	WithdrawalStatusSuccess    WithdrawalStatus = "SUCCESS"
)

// ValidWithdrawalTransitions defines allowed status transitions.
// SUCCESS and FAILED are terminal and never revisited.
var ValidWithdrawalTransitions = map[WithdrawalStatus][]WithdrawalStatus{
	WithdrawalStatusPending:    {WithdrawalStatusInProgress, WithdrawalStatusFailed},
	WithdrawalStatusInProgress: {WithdrawalStatusSuccess, WithdrawalStatusFailed},
	WithdrawalStatusSuccess:    {},
	WithdrawalStatusFailed:     {},
}

// IsValid checks if the status is a known withdrawal status
func (s WithdrawalStatus) IsValid() bool {
	_, ok := ValidWithdrawalTransitions[s]
	return ok
}

// IsTerminal returns true for SUCCESS and FAILED
func (s WithdrawalStatus) IsTerminal() bool {
	return s == WithdrawalStatusSuccess || s == WithdrawalStatusFailed
}

// CanTransitionTo checks if transition to newStatus is allowed
func (s WithdrawalStatus) CanTransitionTo(newStatus WithdrawalStatus) bool {
	for _, allowed := range ValidWithdrawalTransitions[s] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error if the transition is not allowed
func (s WithdrawalStatus) ValidateTransition(newStatus WithdrawalStatus) error {
	if !newStatus.IsValid() {
		return fmt.Errorf("invalid withdrawal status: %s", newStatus)
	}
	if !s.CanTransitionTo(newStatus) {
		return fmt.Errorf("invalid status transition from %s to %s", s, newStatus)
	}
	return nil
}

// Withdrawal is an outbound transfer from a controlled address.
//
// Hash invariant: PENDING rows have no hash; IN_PROGRESS and SUCCESS rows
// always have one. FAILED rows keep the broadcast hash when the transaction
// reverted on chain, and have none only when the row was dead-lettered after
// exhausting its attempts before any broadcast.
type Withdrawal struct {
	ID            uuid.UUID        `db:"id" json:"id"`
	TxHash        *string          `db:"tx_hash" json:"tx_hash,omitempty"`
	Status        WithdrawalStatus `db:"status" json:"status"`
	AddressID     uuid.UUID        `db:"address_id" json:"address_id"`
	ToAddress     string           `db:"to_address" json:"to_address"`
	TokenID       uuid.UUID        `db:"token_id" json:"token_id"`
	Amount        decimal.Decimal  `db:"amount" json:"amount"`
	Confirmations int64            `db:"confirmations" json:"confirmations"`
	GasCost       decimal.Decimal  `db:"gas_cost" json:"gas_cost"`
	Attempts      int              `db:"attempts" json:"attempts"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// CheckHashInvariant verifies the stored tx_hash/status consistency rule
func (w *Withdrawal) CheckHashInvariant() error {
	switch w.Status {
	case WithdrawalStatusPending:
		if w.TxHash != nil {
			return fmt.Errorf("withdrawal %s: PENDING must not carry a tx hash", w.ID)
		}
	case WithdrawalStatusInProgress, WithdrawalStatusSuccess:
		if w.TxHash == nil {
			return fmt.Errorf("withdrawal %s: %s requires a tx hash", w.ID, w.Status)
		}
	case WithdrawalStatusFailed:
		// hash optional: present after an on-chain revert, absent when
		// dead-lettered before broadcast
	default:
		return fmt.Errorf("withdrawal %s: unknown status %s", w.ID, w.Status)
	}
	return nil
}
