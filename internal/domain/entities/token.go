package entities

import (
	"time"

	"github.com/google/uuid"
)

// TokenType distinguishes the chain's native asset from ERC20 contracts
type TokenType string

const (
	TokenTypeNative TokenType = "NATIVE"
	TokenTypeERC20  TokenType = "ERC20"
)

// Token is a fungible asset descriptor. Address is nil for the native asset.
// Read-only to the transaction engine.
type Token struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Symbol    string    `db:"symbol" json:"symbol"`
	Address   *string   `db:"address" json:"address,omitempty"`
	Decimals  int32     `db:"decimals" json:"decimals"`
	Type      TokenType `db:"type" json:"type"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// IsNative reports whether this token is the chain's native asset
func (t *Token) IsNative() bool {
	return t.Type == TokenTypeNative
}
