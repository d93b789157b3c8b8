package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vaultline/vault-service/internal/chain"
	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/pkg/logger"
	"github.com/vaultline/vault-service/pkg/metrics"
)

// nativeDecimals is the base-unit scale of the chain's native asset.
const nativeDecimals = 18

// WithdrawalRepository interface for withdrawal persistence
type WithdrawalRepository interface {
	Create(ctx context.Context, w *entities.Withdrawal) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error)
	ListByStatus(ctx context.Context, status entities.WithdrawalStatus, limit int) ([]*entities.Withdrawal, error)
	List(ctx context.Context, limit, offset int) ([]*entities.Withdrawal, error)
	Count(ctx context.Context) (int64, error)
	Claim(ctx context.Context, id uuid.UUID, txHash string) error
	MarkSuccess(ctx context.Context, id uuid.UUID, confirmations int64, gasCost decimal.Decimal) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	IncrementAttempts(ctx context.Context, id uuid.UUID, maxAttempts int) (bool, error)
	DistinctPendingAddresses(ctx context.Context, limit int) ([]uuid.UUID, error)
	OldestPendingForAddress(ctx context.Context, addressID uuid.UUID) (*entities.Withdrawal, error)
	HasInProgressForAddress(ctx context.Context, addressID uuid.UUID) (bool, error)
}

// TokenRepository interface for token registry reads
type TokenRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Token, error)
	ActiveBySymbol(ctx context.Context, symbol string) (*entities.Token, error)
}

// KeyProvider decrypts an address's private key for one signing step
type KeyProvider interface {
	DecryptedKey(ctx context.Context, id uuid.UUID) (string, error)
}

// TransactionBuilder prices transfers against live balances
type TransactionBuilder interface {
	BuildNativeTransfer(ctx context.Context, from, to string, amount decimal.Decimal, decimals int32) (*chain.UnsignedTx, error)
	BuildTokenTransfer(ctx context.Context, from, to string, amount decimal.Decimal, token *entities.Token) (*chain.UnsignedTx, error)
}

// TransactionSigner signs a priced transaction
type TransactionSigner interface {
	Sign(unsigned *chain.UnsignedTx, privateKeyHex string) (*types.Transaction, error)
}

// ChainWriter is the slice of the node gateway withdrawal processing needs
type ChainWriter interface {
	GetTransaction(ctx context.Context, hash string) (*chain.TxData, error)
	CurrentBlock(ctx context.Context) (uint64, error)
	Broadcast(ctx context.Context, tx *types.Transaction) (string, error)
}

// AdmitWithdrawalRequest is a request to queue an outbound transfer. The
// source is identified by its on-chain address and the asset by symbol.
type AdmitWithdrawalRequest struct {
	FromAddress string
	ToAddress   string
	TokenSymbol string
	Amount      decimal.Decimal
}

// WithdrawalService owns the withdrawal lifecycle: admission into PENDING,
// the send step that broadcasts and claims IN_PROGRESS, and the update step
// that finalizes IN_PROGRESS rows from on-chain state.
//
// At most one withdrawal per source address is ever in flight. A per-address
// mutex serializes concurrent send attempts in this process and the claim
// update re-checks the rule in SQL, so a second instance cannot slip through.
type WithdrawalService struct {
	withdrawals WithdrawalRepository
	addresses   AddressRepository
	tokens      TokenRepository
	keys        KeyProvider
	builder     TransactionBuilder
	signer      TransactionSigner
	writer      ChainWriter
	policy      *chain.ConfirmationPolicy
	maxAttempts int
	metrics     *metrics.Metrics
	logger      *logger.Logger

	addressLocks sync.Map // uuid.UUID -> *sync.Mutex
}

// NewWithdrawalService creates a new withdrawal service
func NewWithdrawalService(
	withdrawals WithdrawalRepository,
	addresses AddressRepository,
	tokens TokenRepository,
	keys KeyProvider,
	builder TransactionBuilder,
	signer TransactionSigner,
	writer ChainWriter,
	policy *chain.ConfirmationPolicy,
	maxAttempts int,
	m *metrics.Metrics,
	logger *logger.Logger,
) *WithdrawalService {
	return &WithdrawalService{
		withdrawals: withdrawals,
		addresses:   addresses,
		tokens:      tokens,
		keys:        keys,
		builder:     builder,
		signer:      signer,
		writer:      writer,
		policy:      policy,
		maxAttempts: maxAttempts,
		metrics:     m,
		logger:      logger,
	}
}

// Admit validates a withdrawal request and queues it as PENDING. No chain
// interaction happens here; balances are checked at send time against live
// state.
func (s *WithdrawalService) Admit(ctx context.Context, req AdmitWithdrawalRequest) (*entities.Withdrawal, error) {
	if !entities.IsHexAddress(req.ToAddress) {
		return nil, fmt.Errorf("malformed destination address %q: %w", req.ToAddress, entities.ErrValidation)
	}
	if !entities.IsHexAddress(req.FromAddress) {
		return nil, fmt.Errorf("malformed source address %q: %w", req.FromAddress, entities.ErrValidation)
	}
	if req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive: %w", entities.ErrValidation)
	}

	address, err := s.addresses.GetActiveByAddress(ctx, entities.NormalizeAddress(req.FromAddress))
	if err != nil {
		return nil, err
	}

	toAddress := entities.NormalizeAddress(req.ToAddress)
	if toAddress == address.Address {
		return nil, fmt.Errorf("source and destination are the same address: %w", entities.ErrValidation)
	}

	token, err := s.tokens.ActiveBySymbol(ctx, req.TokenSymbol)
	if err != nil {
		return nil, err
	}

	withdrawal := &entities.Withdrawal{
		ID:        uuid.New(),
		Status:    entities.WithdrawalStatusPending,
		AddressID: address.ID,
		ToAddress: toAddress,
		TokenID:   token.ID,
		Amount:    req.Amount,
	}

	if err := s.withdrawals.Create(ctx, withdrawal); err != nil {
		return nil, err
	}

	s.metrics.WithdrawalsAdmitted.Inc()
	s.logger.Info("withdrawal admitted",
		"withdrawal_id", withdrawal.ID, "address", address.Address,
		"to", toAddress, "token", token.Symbol, "amount", req.Amount.String())

	return withdrawal, nil
}

// GetByID retrieves a withdrawal
func (s *WithdrawalService) GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	return s.withdrawals.GetByID(ctx, id)
}

// List retrieves withdrawals with pagination
func (s *WithdrawalService) List(ctx context.Context, limit, offset int) ([]*entities.Withdrawal, int64, error) {
	withdrawals, err := s.withdrawals.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.withdrawals.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return withdrawals, total, nil
}

// PendingAddresses lists addresses with a PENDING backlog for the send sweep
func (s *WithdrawalService) PendingAddresses(ctx context.Context, limit int) ([]uuid.UUID, error) {
	return s.withdrawals.DistinctPendingAddresses(ctx, limit)
}

// InProgress lists in-flight withdrawals for the update sweep
func (s *WithdrawalService) InProgress(ctx context.Context, limit int) ([]*entities.Withdrawal, error) {
	return s.withdrawals.ListByStatus(ctx, entities.WithdrawalStatusInProgress, limit)
}

// AdvancePending attempts to send the oldest PENDING withdrawal of one
// address: build, sign, broadcast, then claim IN_PROGRESS with the hash.
// The address keeps at most one withdrawal in flight; if one exists the
// attempt is skipped with ErrAddressBusy and retried on a later sweep.
func (s *WithdrawalService) AdvancePending(ctx context.Context, addressID uuid.UUID) error {
	lock := s.lockFor(addressID)
	lock.Lock()
	defer lock.Unlock()

	busy, err := s.withdrawals.HasInProgressForAddress(ctx, addressID)
	if err != nil {
		return err
	}
	if busy {
		return fmt.Errorf("address %s: %w", addressID, entities.ErrAddressBusy)
	}

	withdrawal, err := s.withdrawals.OldestPendingForAddress(ctx, addressID)
	if err != nil {
		if errors.Is(err, entities.ErrWithdrawalNotFound) {
			return nil
		}
		return err
	}

	hash, err := s.send(ctx, withdrawal)
	if err != nil {
		return s.recordSendFailure(ctx, withdrawal, err)
	}

	if err := s.withdrawals.Claim(ctx, withdrawal.ID, hash); err != nil {
		// the transaction is on the wire; surface loudly so the hash is
		// never lost even though the claim was denied
		s.logger.Error("claim failed after broadcast",
			"withdrawal_id", withdrawal.ID, "tx_hash", hash, "error", err)
		return err
	}

	s.metrics.WithdrawalsSent.Inc()
	s.logger.Info("withdrawal broadcast",
		"withdrawal_id", withdrawal.ID, "tx_hash", hash, "attempt", withdrawal.Attempts+1)

	return nil
}

func (s *WithdrawalService) send(ctx context.Context, w *entities.Withdrawal) (string, error) {
	address, err := s.addresses.GetByID(ctx, w.AddressID)
	if err != nil {
		return "", err
	}
	token, err := s.tokens.GetByID(ctx, w.TokenID)
	if err != nil {
		return "", err
	}

	var unsigned *chain.UnsignedTx
	if token.IsNative() {
		unsigned, err = s.builder.BuildNativeTransfer(ctx, address.Address, w.ToAddress, w.Amount, token.Decimals)
	} else {
		unsigned, err = s.builder.BuildTokenTransfer(ctx, address.Address, w.ToAddress, w.Amount, token)
	}
	if err != nil {
		return "", err
	}

	key, err := s.keys.DecryptedKey(ctx, w.AddressID)
	if err != nil {
		return "", err
	}

	signed, err := s.signer.Sign(unsigned, key)
	if err != nil {
		return "", err
	}

	return s.writer.Broadcast(ctx, signed)
}

// recordSendFailure decides what a failed send attempt does to the row.
// Node and network failures leave it untouched; the next sweep simply tries
// again. Anything else burns an attempt, and exhausting the budget
// dead-letters the row to FAILED with no hash.
func (s *WithdrawalService) recordSendFailure(ctx context.Context, w *entities.Withdrawal, sendErr error) error {
	if errors.Is(sendErr, entities.ErrChainUnavailable) {
		s.logger.Warn("send attempt deferred, chain unavailable",
			"withdrawal_id", w.ID, "error", sendErr)
		return sendErr
	}

	deadLettered, err := s.withdrawals.IncrementAttempts(ctx, w.ID, s.maxAttempts)
	if err != nil {
		s.logger.Error("failed to record send failure",
			"withdrawal_id", w.ID, "send_error", sendErr, "error", err)
		return sendErr
	}

	if deadLettered {
		s.metrics.WithdrawalsFailed.Inc()
		s.logger.Error("withdrawal dead-lettered after repeated failures",
			"withdrawal_id", w.ID, "attempts", w.Attempts+1, "error", sendErr)
	} else {
		s.logger.Warn("send attempt failed",
			"withdrawal_id", w.ID, "attempt", w.Attempts+1, "error", sendErr)
	}

	return sendErr
}

// AdvanceInProgress finalizes one in-flight withdrawal from on-chain state:
// a reverted receipt marks it FAILED, a secure one marks it SUCCESS with the
// gas actually paid. Anything short of a verdict leaves the row untouched.
func (s *WithdrawalService) AdvanceInProgress(ctx context.Context, w *entities.Withdrawal) error {
	if w.TxHash == nil {
		return fmt.Errorf("withdrawal %s is IN_PROGRESS without a hash", w.ID)
	}

	txd, err := s.writer.GetTransaction(ctx, *w.TxHash)
	if err != nil {
		if errors.Is(err, entities.ErrTxNotFound) {
			// dropped from the mempool or not yet indexed; keep waiting
			s.logger.Warn("in-flight transaction not found on node",
				"withdrawal_id", w.ID, "tx_hash", *w.TxHash)
			return nil
		}
		return err
	}

	txBlock, mined := txd.BlockNumber()
	if !mined {
		return nil
	}

	head, err := s.writer.CurrentBlock(ctx)
	if err != nil {
		return err
	}

	confirmations, known := s.policy.Confirmations(txBlock, head)
	switch s.policy.Evaluate(txd.Receipt.Status, confirmations, known) {
	case chain.VerdictFailed:
		if err := s.withdrawals.MarkFailed(ctx, w.ID); err != nil {
			return err
		}
		s.metrics.WithdrawalsFailed.Inc()
		s.logger.Error("withdrawal reverted on chain",
			"withdrawal_id", w.ID, "tx_hash", *w.TxHash)

	case chain.VerdictSecure:
		gasCost := s.gasCost(txd)
		if err := s.withdrawals.MarkSuccess(ctx, w.ID, confirmations, gasCost); err != nil {
			return err
		}
		s.metrics.WithdrawalsSucceeded.Inc()
		s.logger.Info("withdrawal confirmed",
			"withdrawal_id", w.ID, "tx_hash", *w.TxHash,
			"confirmations", confirmations, "gas_cost", gasCost.String())
	}

	return nil
}

// gasCost computes the native cost actually paid: gasUsed * effective price
func (s *WithdrawalService) gasCost(txd *chain.TxData) decimal.Decimal {
	price := txd.Receipt.EffectiveGasPrice
	if price == nil {
		price = txd.Tx.GasPrice()
	}
	cost := decimal.NewFromUint64(txd.Receipt.GasUsed).Mul(decimal.NewFromBigInt(price, 0))
	return cost.Shift(-nativeDecimals)
}

func (s *WithdrawalService) lockFor(addressID uuid.UUID) *sync.Mutex {
	lock, _ := s.addressLocks.LoadOrStore(addressID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}
