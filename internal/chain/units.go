package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a decimal token amount to the token's smallest unit:
// round(amount * 10^decimals). Exact fixed-point arithmetic throughout; the
// ledger carries up to 18 fractional digits and floats would drift on-chain.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Round(0).BigInt()
}

// FromBaseUnits is the exact inverse of ToBaseUnits: raw / 10^decimals.
func FromBaseUnits(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, 0).Shift(-decimals)
}
