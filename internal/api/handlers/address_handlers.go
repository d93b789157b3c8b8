package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/pkg/logger"
)

// AddressManager is the address service surface the API uses
type AddressManager interface {
	GenerateBatch(ctx context.Context, count int) ([]*entities.Address, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Address, error)
	List(ctx context.Context, limit, offset int) ([]*entities.Address, int64, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
}

// AddressHandlers handles address management endpoints
type AddressHandlers struct {
	addresses AddressManager
	logger    *logger.Logger
}

// NewAddressHandlers creates address handlers
func NewAddressHandlers(addresses AddressManager, logger *logger.Logger) *AddressHandlers {
	return &AddressHandlers{addresses: addresses, logger: logger}
}

// GenerateAddressesRequest is the body of POST /addresses
type GenerateAddressesRequest struct {
	Count int `json:"count" binding:"required,min=1,max=1000"`
}

// Generate creates a batch of fresh controlled addresses
func (h *AddressHandlers) Generate(c *gin.Context) {
	var req GenerateAddressesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "count must be between 1 and 1000")
		return
	}

	addresses, err := h.addresses.GenerateBatch(c.Request.Context(), req.Count)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, gin.H{"addresses": addresses, "count": len(addresses)})
}

// Get returns one address by ID
func (h *AddressHandlers) Get(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	address, err := h.addresses.GetByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, address)
}

// List returns addresses with pagination
func (h *AddressHandlers) List(c *gin.Context) {
	limit, offset := pagination(c)

	addresses, total, err := h.addresses.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, PaginatedResponse{Data: addresses, Total: total, Limit: limit, Offset: offset})
}

// SetActiveRequest is the body of PATCH /addresses/:id/active
type SetActiveRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// SetActive flips the active flag on an address
func (h *AddressHandlers) SetActive(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	var req SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "is_active is required")
		return
	}

	if err := h.addresses.SetActive(c.Request.Context(), id, *req.IsActive); err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, gin.H{"id": id, "is_active": *req.IsActive})
}
