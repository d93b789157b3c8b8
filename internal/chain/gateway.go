package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/pkg/logger"
)

// erc20ABIJSON covers the subset of the ERC20 interface the engine touches:
// the symbol probe, balance reads, the transfer call and the Transfer event.
const erc20ABIJSON = `[
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"type":"function"},
	{"constant":true,"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"from","type":"address"},{"indexed":true,"name":"to","type":"address"},{"indexed":false,"name":"value","type":"uint256"}],"name":"Transfer","type":"event"}
]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		panic(fmt.Sprintf("chain: parse erc20 abi: %v", err))
	}
	erc20ABI = parsed
}

// TxData bundles a transaction with its receipt as fetched from the node.
// Receipt is nil while the transaction is still pending.
type TxData struct {
	Tx      *types.Transaction
	Receipt *types.Receipt
}

// BlockNumber returns the block the transaction was mined in and false when
// it has not been mined yet.
func (d *TxData) BlockNumber() (uint64, bool) {
	if d.Receipt == nil || d.Receipt.BlockNumber == nil {
		return 0, false
	}
	return d.Receipt.BlockNumber.Uint64(), true
}

// Gateway is the engine's view of the EVM node. Implementations map transport
// and node failures to entities.ErrChainUnavailable and unknown hashes to
// entities.ErrTxNotFound so callers can branch with errors.Is.
type Gateway interface {
	GetTransaction(ctx context.Context, hash string) (*TxData, error)
	CurrentBlock(ctx context.Context) (uint64, error)
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, contract, owner common.Address) (*big.Int, error)
	TokenSymbol(ctx context.Context, contract common.Address) (string, error)
	EstimateTransferGas(ctx context.Context, contract, from, to common.Address, amount *big.Int) (uint64, error)
	GasPrice(ctx context.Context) (*big.Int, error)
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
	Broadcast(ctx context.Context, tx *types.Transaction) (string, error)
}

// EthGateway implements Gateway on top of go-ethereum's ethclient. Every call
// is bounded by a per-call timeout so a stalled node surfaces as
// ErrChainUnavailable instead of hanging a sweep.
type EthGateway struct {
	client  *ethclient.Client
	timeout time.Duration
	log     *logger.Logger
}

func NewEthGateway(rpcURL string, timeout time.Duration, log *logger.Logger) (*EthGateway, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc node: %w", err)
	}
	return &EthGateway{client: client, timeout: timeout, log: log}, nil
}

func (g *EthGateway) Close() {
	g.client.Close()
}

func (g *EthGateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, g.timeout)
}

// nodeErr maps a raw client error onto the shared taxonomy.
func nodeErr(op string, err error) error {
	if errors.Is(err, ethereum.NotFound) {
		return fmt.Errorf("%s: %w", op, entities.ErrTxNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, entities.ErrChainUnavailable, err)
}

func (g *EthGateway) GetTransaction(ctx context.Context, hash string) (*TxData, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	txHash := common.HexToHash(hash)
	tx, pending, err := g.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, nodeErr("fetch transaction", err)
	}
	if pending {
		return &TxData{Tx: tx}, nil
	}

	receipt, err := g.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			// mined per the tx lookup but receipt not indexed yet
			return &TxData{Tx: tx}, nil
		}
		return nil, nodeErr("fetch receipt", err)
	}
	return &TxData{Tx: tx, Receipt: receipt}, nil
}

func (g *EthGateway) CurrentBlock(ctx context.Context) (uint64, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	n, err := g.client.BlockNumber(ctx)
	if err != nil {
		return 0, nodeErr("fetch block number", err)
	}
	return n, nil
}

func (g *EthGateway) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	bal, err := g.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, nodeErr("fetch native balance", err)
	}
	return bal, nil
}

func (g *EthGateway) TokenBalance(ctx context.Context, contract, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	out, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, nodeErr("call balanceOf", err)
	}

	results, err := erc20ABI.Unpack("balanceOf", out)
	if err != nil || len(results) != 1 {
		return nil, fmt.Errorf("unpack balanceOf: %w: %v", entities.ErrInvalidToken, err)
	}
	bal, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack balanceOf: %w", entities.ErrInvalidToken)
	}
	return bal, nil
}

func (g *EthGateway) TokenSymbol(ctx context.Context, contract common.Address) (string, error) {
	data, err := erc20ABI.Pack("symbol")
	if err != nil {
		return "", fmt.Errorf("pack symbol: %w", err)
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	out, err := g.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil || len(out) == 0 {
		return "", fmt.Errorf("call symbol: %w: %v", entities.ErrInvalidToken, err)
	}

	results, err := erc20ABI.Unpack("symbol", out)
	if err != nil || len(results) != 1 {
		return "", fmt.Errorf("unpack symbol: %w: %v", entities.ErrInvalidToken, err)
	}
	symbol, ok := results[0].(string)
	if !ok {
		return "", fmt.Errorf("unpack symbol: %w", entities.ErrInvalidToken)
	}
	return symbol, nil
}

func (g *EthGateway) EstimateTransferGas(ctx context.Context, contract, from, to common.Address, amount *big.Int) (uint64, error) {
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return 0, fmt.Errorf("pack transfer: %w", err)
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	gas, err := g.client.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &contract, Data: data})
	if err != nil {
		return 0, nodeErr("estimate gas", err)
	}
	return gas, nil
}

func (g *EthGateway) GasPrice(ctx context.Context) (*big.Int, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	price, err := g.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, nodeErr("fetch gas price", err)
	}
	return price, nil
}

func (g *EthGateway) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	nonce, err := g.client.PendingNonceAt(ctx, addr)
	if err != nil {
		return 0, nodeErr("fetch nonce", err)
	}
	return nonce, nil
}

func (g *EthGateway) Broadcast(ctx context.Context, tx *types.Transaction) (string, error) {
	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	if err := g.client.SendTransaction(ctx, tx); err != nil {
		return "", nodeErr("broadcast transaction", err)
	}
	hash := tx.Hash().Hex()
	g.log.Info("transaction broadcast", "tx_hash", hash)
	return hash, nil
}

// PackTransfer encodes an ERC20 transfer(to, amount) call.
func PackTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return nil, fmt.Errorf("pack transfer: %w", err)
	}
	return data, nil
}
