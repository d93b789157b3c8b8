package services

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vaultline/vault-service/internal/chain"
	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/pkg/logger"
	"github.com/vaultline/vault-service/pkg/metrics"
)

type MockWithdrawalRepository struct {
	mock.Mock
}

func (m *MockWithdrawalRepository) Create(ctx context.Context, w *entities.Withdrawal) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *MockWithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Withdrawal), args.Error(1)
}

func (m *MockWithdrawalRepository) ListByStatus(ctx context.Context, status entities.WithdrawalStatus, limit int) ([]*entities.Withdrawal, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Withdrawal), args.Error(1)
}

func (m *MockWithdrawalRepository) List(ctx context.Context, limit, offset int) ([]*entities.Withdrawal, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Withdrawal), args.Error(1)
}

func (m *MockWithdrawalRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockWithdrawalRepository) Claim(ctx context.Context, id uuid.UUID, txHash string) error {
	args := m.Called(ctx, id, txHash)
	return args.Error(0)
}

func (m *MockWithdrawalRepository) MarkSuccess(ctx context.Context, id uuid.UUID, confirmations int64, gasCost decimal.Decimal) error {
	args := m.Called(ctx, id, confirmations, gasCost)
	return args.Error(0)
}

func (m *MockWithdrawalRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockWithdrawalRepository) IncrementAttempts(ctx context.Context, id uuid.UUID, maxAttempts int) (bool, error) {
	args := m.Called(ctx, id, maxAttempts)
	return args.Bool(0), args.Error(1)
}

func (m *MockWithdrawalRepository) DistinctPendingAddresses(ctx context.Context, limit int) ([]uuid.UUID, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockWithdrawalRepository) OldestPendingForAddress(ctx context.Context, addressID uuid.UUID) (*entities.Withdrawal, error) {
	args := m.Called(ctx, addressID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Withdrawal), args.Error(1)
}

func (m *MockWithdrawalRepository) HasInProgressForAddress(ctx context.Context, addressID uuid.UUID) (bool, error) {
	args := m.Called(ctx, addressID)
	return args.Bool(0), args.Error(1)
}

type MockAddressRepository struct {
	mock.Mock
}

func (m *MockAddressRepository) CreateBatch(ctx context.Context, addresses []*entities.Address) (int, error) {
	args := m.Called(ctx, addresses)
	return args.Int(0), args.Error(1)
}

func (m *MockAddressRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Address, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Address), args.Error(1)
}

func (m *MockAddressRepository) GetActiveByAddress(ctx context.Context, addr string) (*entities.Address, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Address), args.Error(1)
}

func (m *MockAddressRepository) List(ctx context.Context, limit, offset int) ([]*entities.Address, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Address), args.Error(1)
}

func (m *MockAddressRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAddressRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	args := m.Called(ctx, id, active)
	return args.Error(0)
}

type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Token, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Token), args.Error(1)
}

func (m *MockTokenRepository) ActiveBySymbol(ctx context.Context, symbol string) (*entities.Token, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Token), args.Error(1)
}

type MockKeyProvider struct {
	mock.Mock
}

func (m *MockKeyProvider) DecryptedKey(ctx context.Context, id uuid.UUID) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

type MockTransactionBuilder struct {
	mock.Mock
}

func (m *MockTransactionBuilder) BuildNativeTransfer(ctx context.Context, from, to string, amount decimal.Decimal, decimals int32) (*chain.UnsignedTx, error) {
	args := m.Called(ctx, from, to, amount, decimals)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.UnsignedTx), args.Error(1)
}

func (m *MockTransactionBuilder) BuildTokenTransfer(ctx context.Context, from, to string, amount decimal.Decimal, token *entities.Token) (*chain.UnsignedTx, error) {
	args := m.Called(ctx, from, to, amount, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.UnsignedTx), args.Error(1)
}

type MockTransactionSigner struct {
	mock.Mock
}

func (m *MockTransactionSigner) Sign(unsigned *chain.UnsignedTx, privateKeyHex string) (*types.Transaction, error) {
	args := m.Called(unsigned, privateKeyHex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Transaction), args.Error(1)
}

type MockChainWriter struct {
	mock.Mock
}

func (m *MockChainWriter) GetTransaction(ctx context.Context, hash string) (*chain.TxData, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chain.TxData), args.Error(1)
}

func (m *MockChainWriter) CurrentBlock(ctx context.Context) (uint64, error) {
	args := m.Called(ctx)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockChainWriter) Broadcast(ctx context.Context, tx *types.Transaction) (string, error) {
	args := m.Called(ctx, tx)
	return args.String(0), args.Error(1)
}

type withdrawalFixture struct {
	withdrawals *MockWithdrawalRepository
	addresses   *MockAddressRepository
	tokens      *MockTokenRepository
	keys        *MockKeyProvider
	builder     *MockTransactionBuilder
	signer      *MockTransactionSigner
	writer      *MockChainWriter
	svc         *WithdrawalService
}

func newWithdrawalFixture() *withdrawalFixture {
	f := &withdrawalFixture{
		withdrawals: new(MockWithdrawalRepository),
		addresses:   new(MockAddressRepository),
		tokens:      new(MockTokenRepository),
		keys:        new(MockKeyProvider),
		builder:     new(MockTransactionBuilder),
		signer:      new(MockTransactionSigner),
		writer:      new(MockChainWriter),
	}
	f.svc = NewWithdrawalService(
		f.withdrawals, f.addresses, f.tokens, f.keys,
		f.builder, f.signer, f.writer,
		chain.NewConfirmationPolicy(3), 5, metrics.NewNop(), logger.NewNop())
	return f
}

var (
	sourceAddress = "0x1111111111111111111111111111111111111111"
	destAddress   = "0x2222222222222222222222222222222222222222"
)

func activeAddress() *entities.Address {
	return &entities.Address{ID: uuid.New(), Address: sourceAddress, IsActive: true}
}

func activeNativeToken() *entities.Token {
	return &entities.Token{ID: uuid.New(), Symbol: "ETH", Decimals: 18, Type: entities.TokenTypeNative, IsActive: true}
}

func TestAdmitRejectsSelfTransfer(t *testing.T) {
	f := newWithdrawalFixture()
	addr := activeAddress()
	f.addresses.On("GetActiveByAddress", mock.Anything, sourceAddress).Return(addr, nil)

	_, err := f.svc.Admit(context.Background(), AdmitWithdrawalRequest{
		FromAddress: sourceAddress,
		ToAddress:   sourceAddress, // same as the source
		TokenSymbol: "ETH",
		Amount:      decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, entities.ErrValidation)
	f.withdrawals.AssertNotCalled(t, "Create")
}

func TestAdmitRejectsBadInput(t *testing.T) {
	f := newWithdrawalFixture()

	_, err := f.svc.Admit(context.Background(), AdmitWithdrawalRequest{
		FromAddress: sourceAddress,
		ToAddress:   "not-an-address",
		TokenSymbol: "ETH",
		Amount:      decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, entities.ErrValidation)

	_, err = f.svc.Admit(context.Background(), AdmitWithdrawalRequest{
		FromAddress: "bogus",
		ToAddress:   destAddress,
		TokenSymbol: "ETH",
		Amount:      decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, entities.ErrValidation)

	_, err = f.svc.Admit(context.Background(), AdmitWithdrawalRequest{
		FromAddress: sourceAddress,
		ToAddress:   destAddress,
		TokenSymbol: "ETH",
		Amount:      decimal.Zero,
	})
	assert.ErrorIs(t, err, entities.ErrValidation)
}

func TestAdmitRejectsUnknownSource(t *testing.T) {
	f := newWithdrawalFixture()
	f.addresses.On("GetActiveByAddress", mock.Anything, sourceAddress).
		Return(nil, entities.ErrAddressNotFound)

	_, err := f.svc.Admit(context.Background(), AdmitWithdrawalRequest{
		FromAddress: sourceAddress,
		ToAddress:   destAddress,
		TokenSymbol: "ETH",
		Amount:      decimal.NewFromInt(1),
	})
	assert.ErrorIs(t, err, entities.ErrAddressNotFound)
	f.withdrawals.AssertNotCalled(t, "Create")
}

func TestAdmitQueuesPending(t *testing.T) {
	f := newWithdrawalFixture()
	addr := activeAddress()
	token := activeNativeToken()

	f.addresses.On("GetActiveByAddress", mock.Anything, sourceAddress).Return(addr, nil)
	f.tokens.On("ActiveBySymbol", mock.Anything, "ETH").Return(token, nil)
	f.withdrawals.On("Create", mock.Anything, mock.MatchedBy(func(w *entities.Withdrawal) bool {
		return w.Status == entities.WithdrawalStatusPending && w.TxHash == nil &&
			w.AddressID == addr.ID && w.TokenID == token.ID
	})).Return(nil)

	w, err := f.svc.Admit(context.Background(), AdmitWithdrawalRequest{
		FromAddress: sourceAddress,
		ToAddress:   destAddress,
		TokenSymbol: "ETH",
		Amount:      decimal.RequireFromString("0.25"),
	})
	require.NoError(t, err)
	assert.Equal(t, entities.WithdrawalStatusPending, w.Status)
	assert.Nil(t, w.TxHash)
	assert.NoError(t, w.CheckHashInvariant())
}

func TestAdvancePendingBroadcastsAndClaims(t *testing.T) {
	f := newWithdrawalFixture()
	addr := activeAddress()
	token := activeNativeToken()
	w := &entities.Withdrawal{
		ID:        uuid.New(),
		Status:    entities.WithdrawalStatusPending,
		AddressID: addr.ID,
		ToAddress: destAddress,
		TokenID:   token.ID,
		Amount:    decimal.NewFromInt(1),
	}

	unsigned := &chain.UnsignedTx{GasLimit: 21000, GasPrice: big.NewInt(1), Value: big.NewInt(1), ChainID: big.NewInt(1)}
	to := common.HexToAddress(destAddress)
	signed := types.NewTx(&types.LegacyTx{To: &to, Value: big.NewInt(1), Gas: 21000, GasPrice: big.NewInt(1)})

	f.withdrawals.On("HasInProgressForAddress", mock.Anything, addr.ID).Return(false, nil)
	f.withdrawals.On("OldestPendingForAddress", mock.Anything, addr.ID).Return(w, nil)
	f.addresses.On("GetByID", mock.Anything, addr.ID).Return(addr, nil)
	f.tokens.On("GetByID", mock.Anything, token.ID).Return(token, nil)
	f.builder.On("BuildNativeTransfer", mock.Anything, addr.Address, destAddress, w.Amount, int32(18)).Return(unsigned, nil)
	f.keys.On("DecryptedKey", mock.Anything, addr.ID).Return("deadbeef", nil)
	f.signer.On("Sign", unsigned, "deadbeef").Return(signed, nil)
	f.writer.On("Broadcast", mock.Anything, signed).Return("0xhash", nil)
	f.withdrawals.On("Claim", mock.Anything, w.ID, "0xhash").Return(nil)

	err := f.svc.AdvancePending(context.Background(), addr.ID)
	require.NoError(t, err)
	f.withdrawals.AssertExpectations(t)
}

func TestAdvancePendingSkipsBusyAddress(t *testing.T) {
	f := newWithdrawalFixture()
	addressID := uuid.New()

	f.withdrawals.On("HasInProgressForAddress", mock.Anything, addressID).Return(true, nil)

	err := f.svc.AdvancePending(context.Background(), addressID)
	assert.ErrorIs(t, err, entities.ErrAddressBusy)
	f.withdrawals.AssertNotCalled(t, "OldestPendingForAddress")
	f.writer.AssertNotCalled(t, "Broadcast")
}

func TestAdvancePendingNoBacklog(t *testing.T) {
	f := newWithdrawalFixture()
	addressID := uuid.New()

	f.withdrawals.On("HasInProgressForAddress", mock.Anything, addressID).Return(false, nil)
	f.withdrawals.On("OldestPendingForAddress", mock.Anything, addressID).
		Return(nil, entities.ErrWithdrawalNotFound)

	err := f.svc.AdvancePending(context.Background(), addressID)
	assert.NoError(t, err)
}

func TestAdvancePendingBurnsAttemptOnPermanentFailure(t *testing.T) {
	f := newWithdrawalFixture()
	addr := activeAddress()
	token := activeNativeToken()
	w := &entities.Withdrawal{
		ID: uuid.New(), Status: entities.WithdrawalStatusPending,
		AddressID: addr.ID, ToAddress: destAddress, TokenID: token.ID,
		Amount: decimal.NewFromInt(1),
	}

	f.withdrawals.On("HasInProgressForAddress", mock.Anything, addr.ID).Return(false, nil)
	f.withdrawals.On("OldestPendingForAddress", mock.Anything, addr.ID).Return(w, nil)
	f.addresses.On("GetByID", mock.Anything, addr.ID).Return(addr, nil)
	f.tokens.On("GetByID", mock.Anything, token.ID).Return(token, nil)
	f.builder.On("BuildNativeTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("balance too low: %w", entities.ErrInsufficientFunds))
	f.withdrawals.On("IncrementAttempts", mock.Anything, w.ID, 5).Return(true, nil)

	err := f.svc.AdvancePending(context.Background(), addr.ID)
	assert.ErrorIs(t, err, entities.ErrInsufficientFunds)
	f.withdrawals.AssertCalled(t, "IncrementAttempts", mock.Anything, w.ID, 5)
	f.writer.AssertNotCalled(t, "Broadcast")
}

func TestAdvancePendingDefersOnChainUnavailable(t *testing.T) {
	f := newWithdrawalFixture()
	addr := activeAddress()
	token := activeNativeToken()
	w := &entities.Withdrawal{
		ID: uuid.New(), Status: entities.WithdrawalStatusPending,
		AddressID: addr.ID, ToAddress: destAddress, TokenID: token.ID,
		Amount: decimal.NewFromInt(1),
	}

	f.withdrawals.On("HasInProgressForAddress", mock.Anything, addr.ID).Return(false, nil)
	f.withdrawals.On("OldestPendingForAddress", mock.Anything, addr.ID).Return(w, nil)
	f.addresses.On("GetByID", mock.Anything, addr.ID).Return(addr, nil)
	f.tokens.On("GetByID", mock.Anything, token.ID).Return(token, nil)
	f.builder.On("BuildNativeTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("rpc timeout: %w", entities.ErrChainUnavailable))

	err := f.svc.AdvancePending(context.Background(), addr.ID)
	assert.ErrorIs(t, err, entities.ErrChainUnavailable)
	// a flaky node must not burn the retry budget
	f.withdrawals.AssertNotCalled(t, "IncrementAttempts")
}

func inProgressWithdrawal() *entities.Withdrawal {
	hash := "0xaaa1111111111111111111111111111111111111111111111111111111111111"
	return &entities.Withdrawal{
		ID:        uuid.New(),
		TxHash:    &hash,
		Status:    entities.WithdrawalStatusInProgress,
		AddressID: uuid.New(),
		ToAddress: destAddress,
		TokenID:   uuid.New(),
		Amount:    decimal.NewFromInt(1),
	}
}

func inProgressTxData(receiptStatus uint64, block int64, gasUsed uint64, price *big.Int) *chain.TxData {
	to := common.HexToAddress(destAddress)
	tx := types.NewTx(&types.LegacyTx{To: &to, Value: big.NewInt(0), Gas: 21000, GasPrice: price})
	return &chain.TxData{
		Tx: tx,
		Receipt: &types.Receipt{
			Status:            receiptStatus,
			BlockNumber:       big.NewInt(block),
			GasUsed:           gasUsed,
			EffectiveGasPrice: price,
		},
	}
}

func TestAdvanceInProgressMarksSuccess(t *testing.T) {
	f := newWithdrawalFixture()
	w := inProgressWithdrawal()

	// 21000 gas at 10 gwei costs 0.00021 ether
	price := big.NewInt(10_000_000_000)
	f.writer.On("GetTransaction", mock.Anything, *w.TxHash).Return(inProgressTxData(1, 100, 21000, price), nil)
	f.writer.On("CurrentBlock", mock.Anything).Return(uint64(110), nil)
	f.withdrawals.On("MarkSuccess", mock.Anything, w.ID, int64(10), mock.MatchedBy(func(cost decimal.Decimal) bool {
		return cost.Equal(decimal.RequireFromString("0.00021"))
	})).Return(nil)

	err := f.svc.AdvanceInProgress(context.Background(), w)
	require.NoError(t, err)
	f.withdrawals.AssertExpectations(t)
}

func TestAdvanceInProgressMarksFailedOnRevert(t *testing.T) {
	f := newWithdrawalFixture()
	w := inProgressWithdrawal()

	f.writer.On("GetTransaction", mock.Anything, *w.TxHash).
		Return(inProgressTxData(0, 100, 21000, big.NewInt(1)), nil)
	f.writer.On("CurrentBlock", mock.Anything).Return(uint64(200), nil)
	f.withdrawals.On("MarkFailed", mock.Anything, w.ID).Return(nil)

	err := f.svc.AdvanceInProgress(context.Background(), w)
	require.NoError(t, err)
	f.withdrawals.AssertCalled(t, "MarkFailed", mock.Anything, w.ID)
}

func TestAdvanceInProgressWaitsForConfirmations(t *testing.T) {
	f := newWithdrawalFixture()
	w := inProgressWithdrawal()

	f.writer.On("GetTransaction", mock.Anything, *w.TxHash).
		Return(inProgressTxData(1, 100, 21000, big.NewInt(1)), nil)
	f.writer.On("CurrentBlock", mock.Anything).Return(uint64(101), nil)

	err := f.svc.AdvanceInProgress(context.Background(), w)
	require.NoError(t, err)
	f.withdrawals.AssertNotCalled(t, "MarkSuccess")
	f.withdrawals.AssertNotCalled(t, "MarkFailed")
}

func TestAdvanceInProgressToleratesMissingTx(t *testing.T) {
	f := newWithdrawalFixture()
	w := inProgressWithdrawal()

	f.writer.On("GetTransaction", mock.Anything, *w.TxHash).
		Return(nil, fmt.Errorf("lookup: %w", entities.ErrTxNotFound))

	err := f.svc.AdvanceInProgress(context.Background(), w)
	assert.NoError(t, err)
	f.withdrawals.AssertNotCalled(t, "MarkFailed")
}
