package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vaultline/vault-service/internal/domain/entities"
)

// TokenRepository reads the token registry. The engine never writes tokens;
// the registry is seeded by migrations and managed out of band.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// GetByID retrieves a token by ID
func (r *TokenRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Token, error) {
	query := `
		SELECT id, name, symbol, address, decimals, type, is_active, created_at, updated_at
		FROM tokens
		WHERE id = $1
	`

	var token entities.Token
	err := r.db.GetContext(ctx, &token, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return &token, nil
}

// ActiveBySymbol retrieves an active token by symbol, case-insensitive
func (r *TokenRepository) ActiveBySymbol(ctx context.Context, symbol string) (*entities.Token, error) {
	query := `
		SELECT id, name, symbol, address, decimals, type, is_active, created_at, updated_at
		FROM tokens
		WHERE UPPER(symbol) = $1 AND is_active = TRUE
	`

	var token entities.Token
	err := r.db.GetContext(ctx, &token, query, strings.ToUpper(strings.TrimSpace(symbol)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return &token, nil
}

// ActiveByAddress retrieves an active token by contract address
func (r *TokenRepository) ActiveByAddress(ctx context.Context, address string) (*entities.Token, error) {
	query := `
		SELECT id, name, symbol, address, decimals, type, is_active, created_at, updated_at
		FROM tokens
		WHERE LOWER(address) = $1 AND is_active = TRUE
	`

	var token entities.Token
	err := r.db.GetContext(ctx, &token, query, entities.NormalizeAddress(address))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, entities.ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	return &token, nil
}

// ListActive retrieves all active tokens
func (r *TokenRepository) ListActive(ctx context.Context) ([]*entities.Token, error) {
	query := `
		SELECT id, name, symbol, address, decimals, type, is_active, created_at, updated_at
		FROM tokens
		WHERE is_active = TRUE
		ORDER BY symbol
	`

	var tokens []*entities.Token
	err := r.db.SelectContext(ctx, &tokens, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}

	return tokens, nil
}
