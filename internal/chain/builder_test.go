package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/pkg/logger"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) GetTransaction(ctx context.Context, hash string) (*TxData, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*TxData), args.Error(1)
}

func (m *MockGateway) CurrentBlock(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockGateway) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockGateway) TokenBalance(ctx context.Context, contract, owner common.Address) (*big.Int, error) {
	args := m.Called(ctx, contract, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockGateway) TokenSymbol(ctx context.Context, contract common.Address) (string, error) {
	args := m.Called(ctx, contract)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) EstimateTransferGas(ctx context.Context, contract, from, to common.Address, amount *big.Int) (uint64, error) {
	args := m.Called(ctx, contract, from, to, amount)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockGateway) GasPrice(ctx context.Context) (*big.Int, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*big.Int), args.Error(1)
}

func (m *MockGateway) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	args := m.Called(ctx, addr)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockGateway) Broadcast(ctx context.Context, tx *types.Transaction) (string, error) {
	args := m.Called(ctx, tx)
	return args.String(0), args.Error(1)
}

const (
	testFrom     = "0x1111111111111111111111111111111111111111"
	testTo       = "0x2222222222222222222222222222222222222222"
	testContract = "0x3333333333333333333333333333333333333333"
)

var gwei = big.NewInt(1_000_000_000)

func testBuilderConfig() BuilderConfig {
	return BuilderConfig{
		ChainID:            1,
		NativeGasLimit:     21000,
		ERC20GasLimit:      65000,
		GasLimitMultiplier: 1.1,
		GasPriceMultiplier: 1.2,
		DefaultGasPrice:    new(big.Int).Mul(big.NewInt(20), gwei),
	}
}

func erc20Token(decimals int32) *entities.Token {
	contract := testContract
	return &entities.Token{
		Symbol:   "USDT",
		Address:  &contract,
		Decimals: decimals,
		Type:     entities.TokenTypeERC20,
		IsActive: true,
	}
}

func TestBuildNativeTransfer(t *testing.T) {
	gw := new(MockGateway)
	builder := NewTransactionBuilder(gw, testBuilderConfig(), logger.NewNop())

	// 10 gwei network price becomes 12 after the multiplier
	gw.On("GasPrice", mock.Anything).Return(new(big.Int).Mul(big.NewInt(10), gwei), nil)
	// balance covers 1 ETH plus 21000 * 12 gwei
	balance, _ := new(big.Int).SetString("1000252000000000000", 10)
	gw.On("NativeBalance", mock.Anything, common.HexToAddress(testFrom)).Return(balance, nil)
	gw.On("PendingNonce", mock.Anything, common.HexToAddress(testFrom)).Return(uint64(7), nil)

	unsigned, err := builder.BuildNativeTransfer(context.Background(), testFrom, testTo, decimal.NewFromInt(1), 18)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), unsigned.Nonce)
	assert.Equal(t, uint64(21000), unsigned.GasLimit)
	assert.Equal(t, new(big.Int).Mul(big.NewInt(12), gwei), unsigned.GasPrice)
	assert.Equal(t, "1000000000000000000", unsigned.Value.String())
	assert.Empty(t, unsigned.Data)
}

func TestBuildNativeTransferInsufficientFunds(t *testing.T) {
	gw := new(MockGateway)
	builder := NewTransactionBuilder(gw, testBuilderConfig(), logger.NewNop())

	gw.On("GasPrice", mock.Anything).Return(new(big.Int).Mul(big.NewInt(10), gwei), nil)
	// exactly 1 ETH: amount fits but gas does not
	balance, _ := new(big.Int).SetString("1000000000000000000", 10)
	gw.On("NativeBalance", mock.Anything, mock.Anything).Return(balance, nil)

	_, err := builder.BuildNativeTransfer(context.Background(), testFrom, testTo, decimal.NewFromInt(1), 18)
	assert.ErrorIs(t, err, entities.ErrInsufficientFunds)
}

func TestBuildTokenTransferClampsGasLimit(t *testing.T) {
	gw := new(MockGateway)
	builder := NewTransactionBuilder(gw, testBuilderConfig(), logger.NewNop())
	contract := common.HexToAddress(testContract)

	gw.On("TokenSymbol", mock.Anything, contract).Return("USDT", nil)
	gw.On("TokenBalance", mock.Anything, contract, mock.Anything).Return(big.NewInt(10_000_000), nil)
	gw.On("PendingNonce", mock.Anything, mock.Anything).Return(uint64(0), nil)
	// 80000 * 1.1 = 88000, above the 65000 cap
	gw.On("EstimateTransferGas", mock.Anything, contract, mock.Anything, mock.Anything, mock.Anything).
		Return(uint64(80000), nil)
	gw.On("GasPrice", mock.Anything).Return(new(big.Int).Mul(big.NewInt(10), gwei), nil)
	gw.On("NativeBalance", mock.Anything, mock.Anything).Return(new(big.Int).Mul(big.NewInt(1_000_000), gwei), nil)

	unsigned, err := builder.BuildTokenTransfer(context.Background(), testFrom, testTo,
		decimal.RequireFromString("0.5"), erc20Token(6))
	require.NoError(t, err)

	assert.Equal(t, uint64(65000), unsigned.GasLimit)
	assert.Equal(t, common.HexToAddress(testContract), unsigned.To)
	assert.Equal(t, "0", unsigned.Value.String())
	assert.NotEmpty(t, unsigned.Data)
}

func TestBuildTokenTransferEstimateFallback(t *testing.T) {
	gw := new(MockGateway)
	builder := NewTransactionBuilder(gw, testBuilderConfig(), logger.NewNop())
	contract := common.HexToAddress(testContract)

	gw.On("TokenSymbol", mock.Anything, contract).Return("USDT", nil)
	gw.On("TokenBalance", mock.Anything, contract, mock.Anything).Return(big.NewInt(10_000_000), nil)
	gw.On("PendingNonce", mock.Anything, mock.Anything).Return(uint64(0), nil)
	gw.On("EstimateTransferGas", mock.Anything, contract, mock.Anything, mock.Anything, mock.Anything).
		Return(uint64(0), errors.New("execution reverted"))
	gw.On("NativeBalance", mock.Anything, mock.Anything).Return(new(big.Int).Mul(big.NewInt(10_000_000), gwei), nil)

	unsigned, err := builder.BuildTokenTransfer(context.Background(), testFrom, testTo,
		decimal.NewFromInt(1), erc20Token(6))
	require.NoError(t, err)

	// defaults take over: 65000 limit, 20 gwei * 1.2 = 24 gwei
	assert.Equal(t, uint64(65000), unsigned.GasLimit)
	assert.Equal(t, new(big.Int).Mul(big.NewInt(24), gwei), unsigned.GasPrice)
}

func TestBuildTokenTransferInvalidToken(t *testing.T) {
	gw := new(MockGateway)
	builder := NewTransactionBuilder(gw, testBuilderConfig(), logger.NewNop())

	gw.On("TokenSymbol", mock.Anything, mock.Anything).Return("", errors.New("no code at address"))

	_, err := builder.BuildTokenTransfer(context.Background(), testFrom, testTo,
		decimal.NewFromInt(1), erc20Token(6))
	assert.ErrorIs(t, err, entities.ErrInvalidToken)
}

func TestBuildTokenTransferInsufficientTokenBalance(t *testing.T) {
	gw := new(MockGateway)
	builder := NewTransactionBuilder(gw, testBuilderConfig(), logger.NewNop())
	contract := common.HexToAddress(testContract)

	gw.On("TokenSymbol", mock.Anything, contract).Return("USDT", nil)
	// holds 0.4, wants 0.5
	gw.On("TokenBalance", mock.Anything, contract, mock.Anything).Return(big.NewInt(400_000), nil)

	_, err := builder.BuildTokenTransfer(context.Background(), testFrom, testTo,
		decimal.RequireFromString("0.5"), erc20Token(6))
	assert.ErrorIs(t, err, entities.ErrInsufficientFunds)
}

func TestBuildTokenTransferGasUnaffordable(t *testing.T) {
	gw := new(MockGateway)
	builder := NewTransactionBuilder(gw, testBuilderConfig(), logger.NewNop())
	contract := common.HexToAddress(testContract)

	gw.On("TokenSymbol", mock.Anything, contract).Return("USDT", nil)
	gw.On("TokenBalance", mock.Anything, contract, mock.Anything).Return(big.NewInt(10_000_000), nil)
	gw.On("PendingNonce", mock.Anything, mock.Anything).Return(uint64(0), nil)
	gw.On("EstimateTransferGas", mock.Anything, contract, mock.Anything, mock.Anything, mock.Anything).
		Return(uint64(50000), nil)
	gw.On("GasPrice", mock.Anything).Return(new(big.Int).Mul(big.NewInt(10), gwei), nil)
	// plenty of tokens, no ether for gas
	gw.On("NativeBalance", mock.Anything, mock.Anything).Return(big.NewInt(0), nil)

	_, err := builder.BuildTokenTransfer(context.Background(), testFrom, testTo,
		decimal.NewFromInt(1), erc20Token(6))
	assert.ErrorIs(t, err, entities.ErrInsufficientFunds)
}
