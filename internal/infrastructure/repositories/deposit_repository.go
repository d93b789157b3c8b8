package repositories

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vaultline/vault-service/internal/domain/entities"
)

// DepositRepository persists detected inbound transfers
type DepositRepository struct {
	db *sqlx.DB
}

// NewDepositRepository creates a new deposit repository
func NewDepositRepository(db *sqlx.DB) *DepositRepository {
	return &DepositRepository{db: db}
}

// Create inserts a deposit. Replays of the same (tx_hash, address_id,
// token_id) are skipped silently; created reports whether a row was written.
func (r *DepositRepository) Create(ctx context.Context, deposit *entities.Deposit) (created bool, err error) {
	query := `
		INSERT INTO deposits (
			id, tx_hash, status, address_id, from_address,
			token_id, amount, confirmations, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (tx_hash, address_id, token_id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		deposit.ID,
		deposit.TxHash,
		deposit.Status,
		deposit.AddressID,
		deposit.FromAddress,
		deposit.TokenID,
		deposit.Amount,
		deposit.Confirmations,
	)
	if err != nil {
		return false, fmt.Errorf("failed to create deposit: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return n > 0, nil
}

// List retrieves deposits with pagination, newest first
func (r *DepositRepository) List(ctx context.Context, limit, offset int) ([]*entities.Deposit, error) {
	query := `
		SELECT id, tx_hash, status, address_id, from_address,
			   token_id, amount, confirmations, created_at, updated_at
		FROM deposits
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	var deposits []*entities.Deposit
	err := r.db.SelectContext(ctx, &deposits, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}

	return deposits, nil
}

// ListByAddressID retrieves deposits for one address with pagination
func (r *DepositRepository) ListByAddressID(ctx context.Context, addressID string, limit, offset int) ([]*entities.Deposit, error) {
	query := `
		SELECT id, tx_hash, status, address_id, from_address,
			   token_id, amount, confirmations, created_at, updated_at
		FROM deposits
		WHERE address_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	var deposits []*entities.Deposit
	err := r.db.SelectContext(ctx, &deposits, query, addressID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list deposits: %w", err)
	}

	return deposits, nil
}

// Count returns the total number of deposits
func (r *DepositRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM deposits`)
	if err != nil {
		return 0, fmt.Errorf("failed to count deposits: %w", err)
	}

	return count, nil
}
