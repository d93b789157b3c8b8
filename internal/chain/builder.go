package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"

	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/pkg/logger"
)

// UnsignedTx is a fully priced legacy transaction awaiting a signature.
type UnsignedTx struct {
	Nonce    uint64
	To       common.Address
	Value    *big.Int
	GasLimit uint64
	GasPrice *big.Int
	Data     []byte
	ChainID  *big.Int
}

// Transaction materializes the go-ethereum transaction for signing.
func (u *UnsignedTx) Transaction() *types.Transaction {
	return types.NewTx(&types.LegacyTx{
		Nonce:    u.Nonce,
		To:       &u.To,
		Value:    u.Value,
		Gas:      u.GasLimit,
		GasPrice: u.GasPrice,
		Data:     u.Data,
	})
}

// BuilderConfig carries the gas policy knobs.
type BuilderConfig struct {
	ChainID            int64
	NativeGasLimit     uint64 // fixed limit for plain value transfers
	ERC20GasLimit      uint64 // hard cap and fallback for token transfers
	GasLimitMultiplier float64
	GasPriceMultiplier float64
	DefaultGasPrice    *big.Int // fallback price when the node estimate fails
}

// TransactionBuilder turns validated withdrawal requests into priced
// transactions, enforcing balance sufficiency before anything is signed.
type TransactionBuilder struct {
	gw  Gateway
	cfg BuilderConfig
	log *logger.Logger
}

func NewTransactionBuilder(gw Gateway, cfg BuilderConfig, log *logger.Logger) *TransactionBuilder {
	return &TransactionBuilder{gw: gw, cfg: cfg, log: log}
}

// BuildNativeTransfer prices a plain value transfer. The source address must
// cover amount plus the full gas cost.
func (b *TransactionBuilder) BuildNativeTransfer(ctx context.Context, from, to string, amount decimal.Decimal, decimals int32) (*UnsignedTx, error) {
	fromAddr := common.HexToAddress(from)
	toAddr := common.HexToAddress(to)
	amountWei := ToBaseUnits(amount, decimals)

	gasPrice, err := b.gasPrice(ctx)
	if err != nil {
		return nil, err
	}
	gasLimit := b.cfg.NativeGasLimit

	gasCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	required := new(big.Int).Add(amountWei, gasCost)

	balance, err := b.gw.NativeBalance(ctx, fromAddr)
	if err != nil {
		return nil, err
	}
	if balance.Cmp(required) < 0 {
		return nil, fmt.Errorf("address %s: balance %s below required %s: %w",
			from, balance, required, entities.ErrInsufficientFunds)
	}

	nonce, err := b.gw.PendingNonce(ctx, fromAddr)
	if err != nil {
		return nil, err
	}

	return &UnsignedTx{
		Nonce:    nonce,
		To:       toAddr,
		Value:    amountWei,
		GasLimit: gasLimit,
		GasPrice: gasPrice,
		ChainID:  big.NewInt(b.cfg.ChainID),
	}, nil
}

// BuildTokenTransfer prices an ERC20 transfer. The contract is probed via
// symbol() first; a contract that cannot answer is rejected as an invalid
// token. The source must hold the token amount and enough native balance for
// gas.
func (b *TransactionBuilder) BuildTokenTransfer(ctx context.Context, from, to string, amount decimal.Decimal, token *entities.Token) (*UnsignedTx, error) {
	if token.Address == nil {
		return nil, fmt.Errorf("token %s has no contract address: %w", token.Symbol, entities.ErrInvalidToken)
	}

	fromAddr := common.HexToAddress(from)
	toAddr := common.HexToAddress(to)
	contract := common.HexToAddress(*token.Address)
	amountRaw := ToBaseUnits(amount, token.Decimals)

	if _, err := b.gw.TokenSymbol(ctx, contract); err != nil {
		return nil, fmt.Errorf("probe token %s: %w", token.Symbol, entities.ErrInvalidToken)
	}

	tokenBalance, err := b.gw.TokenBalance(ctx, contract, fromAddr)
	if err != nil {
		return nil, err
	}
	if tokenBalance.Cmp(amountRaw) < 0 {
		return nil, fmt.Errorf("address %s: token balance %s below %s %s: %w",
			from, tokenBalance, amountRaw, token.Symbol, entities.ErrInsufficientFunds)
	}

	nonce, err := b.gw.PendingNonce(ctx, fromAddr)
	if err != nil {
		return nil, err
	}

	gasLimit, gasPrice := b.tokenGas(ctx, contract, fromAddr, toAddr, amountRaw)

	gasCost := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasLimit))
	nativeBalance, err := b.gw.NativeBalance(ctx, fromAddr)
	if err != nil {
		return nil, err
	}
	if nativeBalance.Cmp(gasCost) < 0 {
		return nil, fmt.Errorf("address %s: native balance %s below gas cost %s: %w",
			from, nativeBalance, gasCost, entities.ErrInsufficientFunds)
	}

	data, err := PackTransfer(toAddr, amountRaw)
	if err != nil {
		return nil, err
	}

	return &UnsignedTx{
		Nonce:    nonce,
		To:       contract,
		Value:    big.NewInt(0),
		GasLimit: gasLimit,
		GasPrice: gasPrice,
		Data:     data,
		ChainID:  big.NewInt(b.cfg.ChainID),
	}, nil
}

// tokenGas estimates the gas pair for a token transfer. Estimation failures
// never abort the build: the configured defaults take over so that a flaky
// eth_estimateGas endpoint cannot stall withdrawals.
func (b *TransactionBuilder) tokenGas(ctx context.Context, contract, from, to common.Address, amount *big.Int) (uint64, *big.Int) {
	estimated, err := b.gw.EstimateTransferGas(ctx, contract, from, to, amount)
	if err != nil {
		b.log.Warn("gas estimation failed, using defaults",
			"contract", contract.Hex(), "error", err)
		return b.cfg.ERC20GasLimit, b.applyMultiplier(b.cfg.DefaultGasPrice, b.cfg.GasPriceMultiplier)
	}

	gasLimit := uint64(decimal.NewFromUint64(estimated).
		Mul(decimal.NewFromFloat(b.cfg.GasLimitMultiplier)).IntPart())
	if gasLimit > b.cfg.ERC20GasLimit {
		b.log.Warn("estimated gas limit exceeds cap, clamping",
			"estimated", gasLimit, "cap", b.cfg.ERC20GasLimit)
		gasLimit = b.cfg.ERC20GasLimit
	}

	gasPrice, err := b.gw.GasPrice(ctx)
	if err != nil {
		b.log.Warn("gas price fetch failed, using default", "error", err)
		gasPrice = b.cfg.DefaultGasPrice
	}

	return gasLimit, b.applyMultiplier(gasPrice, b.cfg.GasPriceMultiplier)
}

func (b *TransactionBuilder) gasPrice(ctx context.Context) (*big.Int, error) {
	price, err := b.gw.GasPrice(ctx)
	if err != nil {
		return nil, err
	}
	return b.applyMultiplier(price, b.cfg.GasPriceMultiplier), nil
}

func (b *TransactionBuilder) applyMultiplier(price *big.Int, multiplier float64) *big.Int {
	return decimal.NewFromBigInt(price, 0).
		Mul(decimal.NewFromFloat(multiplier)).Round(0).BigInt()
}
