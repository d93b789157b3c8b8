package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DepositStatus represents the status of a detected inbound transfer.
// The current reconciliation flow only writes SUCCESS; PENDING, IN_PROGRESS
// and ERROR are reserved for a multi-stage confirmation flow.
type DepositStatus string

const (
	DepositStatusPending    DepositStatus = "PENDING"
	DepositStatusInProgress DepositStatus = "IN_PROGRESS"
	DepositStatusError      DepositStatus = "ERROR"
	DepositStatusSuccess    DepositStatus = "SUCCESS"
)

// IsValid checks if the status is a known deposit status
func (s DepositStatus) IsValid() bool {
	switch s {
	case DepositStatusPending, DepositStatusInProgress, DepositStatusError, DepositStatusSuccess:
		return true
	}
	return false
}

// Deposit is a detected inbound transfer to a controlled address.
// Uniqueness is keyed on (tx_hash, address_id, token_id): one transaction may
// carry transfers to several owned addresses or in several tokens.
type Deposit struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	TxHash        string          `db:"tx_hash" json:"tx_hash"`
	Status        DepositStatus   `db:"status" json:"status"`
	AddressID     uuid.UUID       `db:"address_id" json:"address_id"`
	FromAddress   string          `db:"from_address" json:"from_address"`
	TokenID       uuid.UUID       `db:"token_id" json:"token_id"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	Confirmations int64           `db:"confirmations" json:"confirmations"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}
