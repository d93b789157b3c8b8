package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs priced transactions with a hex-encoded private key. Keys are
// decrypted by the caller immediately before signing and never retained here.
type Signer struct {
	chainID *big.Int
}

func NewSigner(chainID int64) *Signer {
	return &Signer{chainID: big.NewInt(chainID)}
}

// Sign produces the signed transaction ready for broadcast.
func (s *Signer) Sign(unsigned *UnsignedTx, privateKeyHex string) (*types.Transaction, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	signed, err := types.SignTx(unsigned.Transaction(), types.NewEIP155Signer(s.chainID), key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}
