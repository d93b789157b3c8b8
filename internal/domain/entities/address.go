package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Address is a keypair the system controls. The private key is stored
// encrypted and only ever decrypted for the signing step of a withdrawal.
// Immutable after creation except for the active flag.
type Address struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Address    string    `db:"address" json:"address"`
	PrivateKey string    `db:"private_key" json:"-"`
	IsActive   bool      `db:"is_active" json:"is_active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// NormalizeAddress lowercases a hex address for storage and lookups
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// IsHexAddress reports whether addr looks like a 0x-prefixed 20-byte address
func IsHexAddress(addr string) bool {
	addr = strings.TrimSpace(addr)
	if !strings.HasPrefix(addr, "0x") || len(addr) != 42 {
		return false
	}
	for _, c := range addr[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
