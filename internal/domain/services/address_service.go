package services

import (
	"context"
	"encoding/hex"
	"fmt"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/pkg/crypto"
	"github.com/vaultline/vault-service/pkg/logger"
)

// AddressRepository interface for address persistence
type AddressRepository interface {
	CreateBatch(ctx context.Context, addresses []*entities.Address) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Address, error)
	GetActiveByAddress(ctx context.Context, addr string) (*entities.Address, error)
	List(ctx context.Context, limit, offset int) ([]*entities.Address, error)
	Count(ctx context.Context) (int64, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// MaxBatchSize bounds one generation request
const MaxBatchSize = 1000

// AddressService generates and manages controlled keypairs. Private keys are
// encrypted at rest and only decrypted for signing.
type AddressService struct {
	repo    AddressRepository
	custody *crypto.KeyCustody
	logger  *logger.Logger
}

// NewAddressService creates a new address service
func NewAddressService(repo AddressRepository, custody *crypto.KeyCustody, logger *logger.Logger) *AddressService {
	return &AddressService{repo: repo, custody: custody, logger: logger}
}

// GenerateBatch creates count fresh secp256k1 keypairs, encrypts the private
// keys and persists them as active addresses. Returns the stored addresses
// without key material.
func (s *AddressService) GenerateBatch(ctx context.Context, count int) ([]*entities.Address, error) {
	if count <= 0 || count > MaxBatchSize {
		return nil, fmt.Errorf("batch size must be between 1 and %d: %w", MaxBatchSize, entities.ErrValidation)
	}

	addresses := make([]*entities.Address, 0, count)
	for i := 0; i < count; i++ {
		key, err := gethcrypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("generate keypair: %w", err)
		}

		privHex := hex.EncodeToString(gethcrypto.FromECDSA(key))
		encrypted, err := s.custody.Encrypt(privHex)
		if err != nil {
			return nil, fmt.Errorf("encrypt private key: %w", err)
		}

		addresses = append(addresses, &entities.Address{
			ID:         uuid.New(),
			Address:    entities.NormalizeAddress(gethcrypto.PubkeyToAddress(key.PublicKey).Hex()),
			PrivateKey: encrypted,
			IsActive:   true,
		})
	}

	inserted, err := s.repo.CreateBatch(ctx, addresses)
	if err != nil {
		return nil, err
	}

	s.logger.Info("generated address batch", "requested", count, "inserted", inserted)

	for _, a := range addresses {
		a.PrivateKey = ""
	}
	return addresses, nil
}

// GetByID retrieves an address without key material
func (s *AddressService) GetByID(ctx context.Context, id uuid.UUID) (*entities.Address, error) {
	addr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	addr.PrivateKey = ""
	return addr, nil
}

// List retrieves addresses with pagination, without key material
func (s *AddressService) List(ctx context.Context, limit, offset int) ([]*entities.Address, int64, error) {
	addresses, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	for _, a := range addresses {
		a.PrivateKey = ""
	}
	return addresses, total, nil
}

// SetActive flips the active flag on an address
func (s *AddressService) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	s.logger.Info("address active flag updated", "address_id", id, "is_active", active)
	return nil
}

// DecryptedKey returns the plaintext private key of an address. Callers use
// it for one signing step and must not retain it.
func (s *AddressService) DecryptedKey(ctx context.Context, id uuid.UUID) (string, error) {
	addr, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	key, err := s.custody.Decrypt(addr.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("decrypt private key for %s: %w", addr.Address, err)
	}
	return key, nil
}
