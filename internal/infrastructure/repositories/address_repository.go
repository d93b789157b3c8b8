package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vaultline/vault-service/internal/domain/entities"
)

// AddressRepository persists controlled addresses
type AddressRepository struct {
	db *sqlx.DB
}

// NewAddressRepository creates a new address repository
func NewAddressRepository(db *sqlx.DB) *AddressRepository {
	return &AddressRepository{db: db}
}

// CreateBatch inserts a batch of freshly generated addresses in one
// transaction. Collisions on the address column are skipped silently; the
// returned count is the number of rows actually written.
func (r *AddressRepository) CreateBatch(ctx context.Context, addresses []*entities.Address) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO addresses (id, address, private_key, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (address) DO NOTHING
	`

	inserted := 0
	for _, addr := range addresses {
		res, err := tx.ExecContext(ctx, query, addr.ID, addr.Address, addr.PrivateKey, addr.IsActive)
		if err != nil {
			return 0, fmt.Errorf("failed to insert address: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to read rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit address batch: %w", err)
	}

	return inserted, nil
}

// GetByID retrieves an address by ID
func (r *AddressRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Address, error) {
	query := `
		SELECT id, address, private_key, is_active, created_at, updated_at
		FROM addresses
		WHERE id = $1
	`

	var address entities.Address
	err := r.db.GetContext(ctx, &address, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}

	return &address, nil
}

// GetActiveByAddress retrieves an active address by its hex string
func (r *AddressRepository) GetActiveByAddress(ctx context.Context, addr string) (*entities.Address, error) {
	query := `
		SELECT id, address, private_key, is_active, created_at, updated_at
		FROM addresses
		WHERE address = $1 AND is_active = TRUE
	`

	var address entities.Address
	err := r.db.GetContext(ctx, &address, query, entities.NormalizeAddress(addr))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrAddressNotFound
		}
		return nil, fmt.Errorf("failed to get address: %w", err)
	}

	return &address, nil
}

// ResolveActive maps hex address strings to owned active address rows in one
// round trip. Unknown and inactive addresses are simply absent from the result;
// callers treat absence as "not ours".
func (r *AddressRepository) ResolveActive(ctx context.Context, addrs []string) (map[string]*entities.Address, error) {
	if len(addrs) == 0 {
		return map[string]*entities.Address{}, nil
	}

	normalized := make([]string, 0, len(addrs))
	for _, a := range addrs {
		normalized = append(normalized, entities.NormalizeAddress(a))
	}

	query, args, err := sqlx.In(`
		SELECT id, address, private_key, is_active, created_at, updated_at
		FROM addresses
		WHERE address IN (?) AND is_active = TRUE
	`, normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to build address lookup: %w", err)
	}

	var rows []*entities.Address
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to resolve addresses: %w", err)
	}

	result := make(map[string]*entities.Address, len(rows))
	for _, row := range rows {
		result[row.Address] = row
	}

	return result, nil
}

// List retrieves addresses with pagination, newest first
func (r *AddressRepository) List(ctx context.Context, limit, offset int) ([]*entities.Address, error) {
	query := `
		SELECT id, address, private_key, is_active, created_at, updated_at
		FROM addresses
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	var addresses []*entities.Address
	err := r.db.SelectContext(ctx, &addresses, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list addresses: %w", err)
	}

	return addresses, nil
}

// Count returns the total number of addresses
func (r *AddressRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM addresses`)
	if err != nil {
		return 0, fmt.Errorf("failed to count addresses: %w", err)
	}

	return count, nil
}

// SetActive flips the active flag on an address
func (r *AddressRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	query := `
		UPDATE addresses
		SET is_active = $2, updated_at = NOW()
		WHERE id = $1
	`

	res, err := r.db.ExecContext(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("failed to update address: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return entities.ErrAddressNotFound
	}

	return nil
}
