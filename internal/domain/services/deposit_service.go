package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vaultline/vault-service/internal/chain"
	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/pkg/logger"
	"github.com/vaultline/vault-service/pkg/metrics"
)

// DepositRepository interface for deposit persistence
type DepositRepository interface {
	Create(ctx context.Context, deposit *entities.Deposit) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*entities.Deposit, error)
	Count(ctx context.Context) (int64, error)
}

// AddressResolver maps hex addresses to owned active address rows
type AddressResolver interface {
	ResolveActive(ctx context.Context, addrs []string) (map[string]*entities.Address, error)
}

// ChainReader is the slice of the node gateway deposit reconciliation needs
type ChainReader interface {
	GetTransaction(ctx context.Context, hash string) (*chain.TxData, error)
	CurrentBlock(ctx context.Context) (uint64, error)
}

// TransferSource decodes value movements out of a mined transaction
type TransferSource interface {
	Extract(ctx context.Context, txd *chain.TxData) ([]entities.TransferInfo, error)
}

// DepositService reconciles observed transactions into deposit records.
// Reconciliation is idempotent: replaying a hash never duplicates rows.
type DepositService struct {
	deposits  DepositRepository
	addresses AddressResolver
	reader    ChainReader
	transfers TransferSource
	policy    *chain.ConfirmationPolicy
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewDepositService creates a new deposit service
func NewDepositService(
	deposits DepositRepository,
	addresses AddressResolver,
	reader ChainReader,
	transfers TransferSource,
	policy *chain.ConfirmationPolicy,
	m *metrics.Metrics,
	logger *logger.Logger,
) *DepositService {
	return &DepositService{
		deposits:  deposits,
		addresses: addresses,
		reader:    reader,
		transfers: transfers,
		policy:    policy,
		metrics:   m,
		logger:    logger,
	}
}

// ProcessTransaction fetches the transaction, verifies it is secure, and
// persists one SUCCESS deposit per transfer that lands on an owned active
// address. Transfers to addresses the system does not control are excluded
// silently. Returns the deposits persisted by this call; an empty result with
// no error means the transaction carried nothing for us.
func (s *DepositService) ProcessTransaction(ctx context.Context, txHash string) ([]*entities.Deposit, error) {
	txHash = strings.ToLower(strings.TrimSpace(txHash))
	if !isHexTxHash(txHash) {
		return nil, fmt.Errorf("malformed transaction hash %q: %w", txHash, entities.ErrValidation)
	}

	txd, err := s.reader.GetTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}

	confirmations, err := s.secure(ctx, txd)
	if err != nil {
		return nil, err
	}

	transfers, err := s.transfers.Extract(ctx, txd)
	if err != nil {
		return nil, err
	}
	if len(transfers) == 0 {
		return nil, nil
	}

	recipients := make([]string, 0, len(transfers))
	for _, t := range transfers {
		recipients = append(recipients, t.ToAddress)
	}
	owned, err := s.addresses.ResolveActive(ctx, recipients)
	if err != nil {
		return nil, err
	}

	var created []*entities.Deposit
	var lastErr error
	for _, t := range transfers {
		addr, ok := owned[t.ToAddress]
		if !ok {
			continue
		}

		deposit := &entities.Deposit{
			ID:            uuid.New(),
			TxHash:        txHash,
			Status:        entities.DepositStatusSuccess,
			AddressID:     addr.ID,
			FromAddress:   t.FromAddress,
			TokenID:       t.TokenID,
			Amount:        t.Amount,
			Confirmations: confirmations,
		}

		inserted, err := s.deposits.Create(ctx, deposit)
		if err != nil {
			// one bad row must not abort the rest; the whole call is
			// idempotent and can be replayed for the stragglers
			s.logger.Error("failed to persist deposit",
				"tx_hash", txHash, "address_id", addr.ID, "token_id", t.TokenID, "error", err)
			lastErr = err
			continue
		}
		if !inserted {
			s.metrics.DepositsDuplicate.Inc()
			s.logger.Debug("deposit already recorded",
				"tx_hash", txHash, "address_id", addr.ID, "token_id", t.TokenID)
			continue
		}

		s.metrics.DepositsDetected.Inc()
		s.logger.Info("deposit recorded",
			"tx_hash", txHash, "address", t.ToAddress,
			"token_id", t.TokenID, "amount", t.Amount.String())
		created = append(created, deposit)
	}

	if len(created) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return created, nil
}

// secure verifies receipt success and confirmation depth, returning the depth
func (s *DepositService) secure(ctx context.Context, txd *chain.TxData) (int64, error) {
	txBlock, mined := txd.BlockNumber()
	if !mined {
		return 0, fmt.Errorf("transaction %s: %w", txd.Tx.Hash().Hex(), entities.ErrTxNotSecure)
	}

	head, err := s.reader.CurrentBlock(ctx)
	if err != nil {
		return 0, err
	}

	confirmations, known := s.policy.Confirmations(txBlock, head)
	switch s.policy.Evaluate(txd.Receipt.Status, confirmations, known) {
	case chain.VerdictFailed:
		return 0, fmt.Errorf("transaction %s: %w", txd.Tx.Hash().Hex(), entities.ErrTxFailed)
	case chain.VerdictUnconfirmed:
		return 0, fmt.Errorf("transaction %s at %d confirmations: %w",
			txd.Tx.Hash().Hex(), confirmations, entities.ErrTxNotSecure)
	}

	return confirmations, nil
}

// List retrieves deposits with pagination
func (s *DepositService) List(ctx context.Context, limit, offset int) ([]*entities.Deposit, int64, error) {
	deposits, err := s.deposits.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.deposits.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return deposits, total, nil
}

func isHexTxHash(h string) bool {
	if !strings.HasPrefix(h, "0x") || len(h) != 66 {
		return false
	}
	for _, c := range h[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
