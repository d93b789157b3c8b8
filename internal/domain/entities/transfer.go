package entities

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransferInfo is one value movement decoded from a confirmed transaction:
// either the native value or a single ERC20 Transfer log. Ephemeral; consumed
// by deposit reconciliation and never persisted.
type TransferInfo struct {
	TokenID     uuid.UUID
	FromAddress string
	ToAddress   string
	Amount      decimal.Decimal
}
