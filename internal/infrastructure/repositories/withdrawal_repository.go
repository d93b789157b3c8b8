package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/vaultline/vault-service/internal/domain/entities"
)

// WithdrawalRepository persists outbound transfers and enforces the
// status/hash rules at the SQL level so concurrent sweeps cannot race past
// them.
type WithdrawalRepository struct {
	db *sqlx.DB
}

// NewWithdrawalRepository creates a new withdrawal repository
func NewWithdrawalRepository(db *sqlx.DB) *WithdrawalRepository {
	return &WithdrawalRepository{db: db}
}

// Create inserts a withdrawal in PENDING with no hash
func (r *WithdrawalRepository) Create(ctx context.Context, w *entities.Withdrawal) error {
	query := `
		INSERT INTO withdrawals (
			id, status, address_id, to_address, token_id, amount,
			confirmations, gas_cost, attempts, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, 0, 0, 0, NOW(), NOW())
	`

	_, err := r.db.ExecContext(ctx, query,
		w.ID,
		entities.WithdrawalStatusPending,
		w.AddressID,
		w.ToAddress,
		w.TokenID,
		w.Amount,
	)
	if err != nil {
		return fmt.Errorf("failed to create withdrawal: %w", err)
	}

	return nil
}

// GetByID retrieves a withdrawal by ID
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error) {
	query := `
		SELECT id, tx_hash, status, address_id, to_address, token_id, amount,
			   confirmations, gas_cost, attempts, created_at, updated_at
		FROM withdrawals
		WHERE id = $1
	`

	var w entities.Withdrawal
	err := r.db.GetContext(ctx, &w, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to get withdrawal: %w", err)
	}

	return &w, nil
}

// ListByStatus retrieves withdrawals in the given status, oldest first, so
// sweeps always work through the backlog in admission order.
func (r *WithdrawalRepository) ListByStatus(ctx context.Context, status entities.WithdrawalStatus, limit int) ([]*entities.Withdrawal, error) {
	query := `
		SELECT id, tx_hash, status, address_id, to_address, token_id, amount,
			   confirmations, gas_cost, attempts, created_at, updated_at
		FROM withdrawals
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	var withdrawals []*entities.Withdrawal
	err := r.db.SelectContext(ctx, &withdrawals, query, status, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}

	return withdrawals, nil
}

// List retrieves withdrawals with pagination, newest first
func (r *WithdrawalRepository) List(ctx context.Context, limit, offset int) ([]*entities.Withdrawal, error) {
	query := `
		SELECT id, tx_hash, status, address_id, to_address, token_id, amount,
			   confirmations, gas_cost, attempts, created_at, updated_at
		FROM withdrawals
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	var withdrawals []*entities.Withdrawal
	err := r.db.SelectContext(ctx, &withdrawals, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list withdrawals: %w", err)
	}

	return withdrawals, nil
}

// Count returns the total number of withdrawals
func (r *WithdrawalRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM withdrawals`)
	if err != nil {
		return 0, fmt.Errorf("failed to count withdrawals: %w", err)
	}

	return count, nil
}

// Claim moves a PENDING withdrawal to IN_PROGRESS and records its broadcast
// hash in one conditional update. The update is granted only while the row is
// still PENDING and no other withdrawal for the same address is IN_PROGRESS;
// a denied claim returns ErrAddressBusy without touching the row.
func (r *WithdrawalRepository) Claim(ctx context.Context, id uuid.UUID, txHash string) error {
	query := `
		UPDATE withdrawals w
		SET status = $2, tx_hash = $3, updated_at = NOW()
		WHERE w.id = $1
		  AND w.status = $4
		  AND NOT EXISTS (
			SELECT 1 FROM withdrawals s
			WHERE s.address_id = w.address_id
			  AND s.status = $2
			  AND s.id <> w.id
		  )
	`

	res, err := r.db.ExecContext(ctx, query, id,
		entities.WithdrawalStatusInProgress, txHash, entities.WithdrawalStatusPending)
	if err != nil {
		return fmt.Errorf("failed to claim withdrawal: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return entities.ErrAddressBusy
	}

	return nil
}

// MarkSuccess finalizes an IN_PROGRESS withdrawal with its confirmation depth
// and the gas actually paid
func (r *WithdrawalRepository) MarkSuccess(ctx context.Context, id uuid.UUID, confirmations int64, gasCost decimal.Decimal) error {
	query := `
		UPDATE withdrawals
		SET status = $2, confirmations = $3, gas_cost = $4, updated_at = NOW()
		WHERE id = $1 AND status = $5
	`

	res, err := r.db.ExecContext(ctx, query, id,
		entities.WithdrawalStatusSuccess, confirmations, gasCost, entities.WithdrawalStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to mark withdrawal success: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entities.ErrWithdrawalNotFound
	}

	return nil
}

// MarkFailed moves a withdrawal to FAILED, keeping whatever hash it carries
func (r *WithdrawalRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE withdrawals
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ($3, $4)
	`

	res, err := r.db.ExecContext(ctx, query, id,
		entities.WithdrawalStatusFailed,
		entities.WithdrawalStatusPending,
		entities.WithdrawalStatusInProgress)
	if err != nil {
		return fmt.Errorf("failed to mark withdrawal failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entities.ErrWithdrawalNotFound
	}

	return nil
}

// IncrementAttempts bumps the retry counter of a PENDING withdrawal and
// dead-letters it to FAILED once maxAttempts is reached. Dead-lettered rows
// keep a NULL hash: nothing was ever broadcast for them.
func (r *WithdrawalRepository) IncrementAttempts(ctx context.Context, id uuid.UUID, maxAttempts int) (deadLettered bool, err error) {
	query := `
		UPDATE withdrawals
		SET attempts = attempts + 1,
			status = CASE WHEN attempts + 1 >= $2 THEN $3 ELSE status END,
			updated_at = NOW()
		WHERE id = $1 AND status = $4
		RETURNING status
	`

	var status entities.WithdrawalStatus
	err = r.db.GetContext(ctx, &status, query, id, maxAttempts,
		entities.WithdrawalStatusFailed, entities.WithdrawalStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, entities.ErrWithdrawalNotFound
		}
		return false, fmt.Errorf("failed to increment withdrawal attempts: %w", err)
	}

	return status == entities.WithdrawalStatusFailed, nil
}

// DistinctPendingAddresses returns the address IDs that currently have at
// least one PENDING withdrawal, for the send sweep's per-address fan-out.
func (r *WithdrawalRepository) DistinctPendingAddresses(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT address_id
		FROM withdrawals
		WHERE status = $1
		GROUP BY address_id
		ORDER BY MIN(created_at) ASC
		LIMIT $2
	`

	var ids []uuid.UUID
	err := r.db.SelectContext(ctx, &ids, query, entities.WithdrawalStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending addresses: %w", err)
	}

	return ids, nil
}

// OldestPendingForAddress returns the next withdrawal the send sweep should
// attempt for the address, if any.
func (r *WithdrawalRepository) OldestPendingForAddress(ctx context.Context, addressID uuid.UUID) (*entities.Withdrawal, error) {
	query := `
		SELECT id, tx_hash, status, address_id, to_address, token_id, amount,
			   confirmations, gas_cost, attempts, created_at, updated_at
		FROM withdrawals
		WHERE address_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT 1
	`

	var w entities.Withdrawal
	err := r.db.GetContext(ctx, &w, query, addressID, entities.WithdrawalStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to get pending withdrawal: %w", err)
	}

	return &w, nil
}

// HasInProgressForAddress reports whether the address already has an
// in-flight withdrawal.
func (r *WithdrawalRepository) HasInProgressForAddress(ctx context.Context, addressID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM withdrawals
			WHERE address_id = $1 AND status = $2
		)
	`

	var exists bool
	err := r.db.GetContext(ctx, &exists, query, addressID, entities.WithdrawalStatusInProgress)
	if err != nil {
		return false, fmt.Errorf("failed to check in-progress withdrawals: %w", err)
	}

	return exists, nil
}
