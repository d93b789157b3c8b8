package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/internal/domain/services"
	"github.com/vaultline/vault-service/pkg/logger"
)

// WithdrawalManager is the withdrawal service surface the API uses
type WithdrawalManager interface {
	Admit(ctx context.Context, req services.AdmitWithdrawalRequest) (*entities.Withdrawal, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Withdrawal, error)
	List(ctx context.Context, limit, offset int) ([]*entities.Withdrawal, int64, error)
}

// WithdrawalHandlers handles withdrawal endpoints
type WithdrawalHandlers struct {
	withdrawals WithdrawalManager
	logger      *logger.Logger
}

// NewWithdrawalHandlers creates withdrawal handlers
func NewWithdrawalHandlers(withdrawals WithdrawalManager, logger *logger.Logger) *WithdrawalHandlers {
	return &WithdrawalHandlers{withdrawals: withdrawals, logger: logger}
}

// CreateWithdrawalRequest is the body of POST /withdrawals. Amount comes as a
// string so callers cannot lose precision to float encoding.
type CreateWithdrawalRequest struct {
	FromAddress string `json:"from_address" binding:"required"`
	ToAddress   string `json:"to_address" binding:"required"`
	TokenSymbol string `json:"token_symbol" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
}

// Create admits a withdrawal into the PENDING queue. The actual send happens
// asynchronously on the next sweep.
func (h *WithdrawalHandlers) Create(c *gin.Context) {
	var req CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "from_address, to_address, token_symbol and amount are required")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondBadRequest(c, "invalid amount")
		return
	}

	withdrawal, err := h.withdrawals.Admit(c.Request.Context(), services.AdmitWithdrawalRequest{
		FromAddress: req.FromAddress,
		ToAddress:   req.ToAddress,
		TokenSymbol: req.TokenSymbol,
		Amount:      amount,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, withdrawal)
}

// Get returns one withdrawal by ID
func (h *WithdrawalHandlers) Get(c *gin.Context) {
	id, ok := parseUUIDParam(c, "id")
	if !ok {
		return
	}

	withdrawal, err := h.withdrawals.GetByID(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, withdrawal)
}

// List returns withdrawals with pagination
func (h *WithdrawalHandlers) List(c *gin.Context) {
	limit, offset := pagination(c)

	withdrawals, total, err := h.withdrawals.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, PaginatedResponse{Data: withdrawals, Total: total, Limit: limit, Offset: offset})
}
