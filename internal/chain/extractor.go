package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/pkg/logger"
)

// transferTopic is keccak256("Transfer(address,address,uint256)"), the first
// topic of every ERC20 Transfer log.
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// TokenResolver resolves active tokens from the registry. Implementations
// return entities.ErrTokenNotFound for unknown or inactive entries.
type TokenResolver interface {
	ActiveBySymbol(ctx context.Context, symbol string) (*entities.Token, error)
	ActiveByAddress(ctx context.Context, address string) (*entities.Token, error)
}

// TransferExtractor decodes the value movements of a mined transaction: the
// native transfer when the transaction carries value, plus one entry per
// well-formed ERC20 Transfer log whose contract is a registered active token.
type TransferExtractor struct {
	tokens       TokenResolver
	nativeSymbol string
	log          *logger.Logger
}

func NewTransferExtractor(tokens TokenResolver, nativeSymbol string, log *logger.Logger) *TransferExtractor {
	return &TransferExtractor{tokens: tokens, nativeSymbol: nativeSymbol, log: log}
}

// Extract returns every decodable transfer in the transaction. Logs from
// unregistered contracts and malformed logs are skipped, never fatal: one
// broken log must not hide the other movements in the same transaction.
func (e *TransferExtractor) Extract(ctx context.Context, txd *TxData) ([]entities.TransferInfo, error) {
	if txd == nil || txd.Tx == nil {
		return nil, fmt.Errorf("extract transfers: %w: empty transaction data", entities.ErrValidation)
	}

	var transfers []entities.TransferInfo

	if native, ok, err := e.extractNative(ctx, txd.Tx); err != nil {
		return nil, err
	} else if ok {
		transfers = append(transfers, native)
	}

	if txd.Receipt != nil {
		for _, lg := range txd.Receipt.Logs {
			transfer, ok := e.extractLog(ctx, lg)
			if ok {
				transfers = append(transfers, transfer)
			}
		}
	}

	return transfers, nil
}

func (e *TransferExtractor) extractNative(ctx context.Context, tx *types.Transaction) (entities.TransferInfo, bool, error) {
	if tx.Value().Sign() <= 0 || tx.To() == nil {
		return entities.TransferInfo{}, false, nil
	}

	token, err := e.tokens.ActiveBySymbol(ctx, e.nativeSymbol)
	if err != nil {
		return entities.TransferInfo{}, false, fmt.Errorf("resolve native token %s: %w", e.nativeSymbol, err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(tx.ChainId()), tx)
	if err != nil {
		return entities.TransferInfo{}, false, fmt.Errorf("recover sender: %w", err)
	}

	return entities.TransferInfo{
		TokenID:     token.ID,
		FromAddress: entities.NormalizeAddress(from.Hex()),
		ToAddress:   entities.NormalizeAddress(tx.To().Hex()),
		Amount:      FromBaseUnits(tx.Value(), token.Decimals),
	}, true, nil
}

func (e *TransferExtractor) extractLog(ctx context.Context, lg *types.Log) (entities.TransferInfo, bool) {
	if len(lg.Topics) != 3 || lg.Topics[0] != transferTopic {
		return entities.TransferInfo{}, false
	}

	token, err := e.tokens.ActiveByAddress(ctx, entities.NormalizeAddress(lg.Address.Hex()))
	if err != nil {
		if !errors.Is(err, entities.ErrTokenNotFound) {
			e.log.Warn("token lookup failed for transfer log",
				"contract", lg.Address.Hex(), "tx_hash", lg.TxHash.Hex(), "error", err)
		}
		return entities.TransferInfo{}, false
	}

	amount, ok := unpackTransferValue(lg.Data)
	if !ok {
		e.log.Warn("malformed transfer log data",
			"contract", lg.Address.Hex(), "tx_hash", lg.TxHash.Hex(), "log_index", lg.Index)
		return entities.TransferInfo{}, false
	}

	from := common.BytesToAddress(lg.Topics[1].Bytes()[12:])
	to := common.BytesToAddress(lg.Topics[2].Bytes()[12:])

	return entities.TransferInfo{
		TokenID:     token.ID,
		FromAddress: entities.NormalizeAddress(from.Hex()),
		ToAddress:   entities.NormalizeAddress(to.Hex()),
		Amount:      FromBaseUnits(amount, token.Decimals),
	}, true
}

func unpackTransferValue(data []byte) (*big.Int, bool) {
	results, err := erc20ABI.Unpack("Transfer", data)
	if err != nil || len(results) != 1 {
		return nil, false
	}
	value, ok := results[0].(*big.Int)
	return value, ok
}
