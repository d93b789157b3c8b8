package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/vaultline/vault-service/internal/domain/entities"
	"github.com/vaultline/vault-service/pkg/logger"
)

// DepositReconciler is the deposit service surface the API uses
type DepositReconciler interface {
	ProcessTransaction(ctx context.Context, txHash string) ([]*entities.Deposit, error)
	List(ctx context.Context, limit, offset int) ([]*entities.Deposit, int64, error)
}

// DepositHandlers handles deposit reconciliation endpoints
type DepositHandlers struct {
	deposits DepositReconciler
	logger   *logger.Logger
}

// NewDepositHandlers creates deposit handlers
func NewDepositHandlers(deposits DepositReconciler, logger *logger.Logger) *DepositHandlers {
	return &DepositHandlers{deposits: deposits, logger: logger}
}

// ProcessDepositRequest is the body of POST /deposits
type ProcessDepositRequest struct {
	TxHash string `json:"tx_hash" binding:"required"`
}

// Process reconciles an observed transaction into deposit records. Safe to
// replay: already-recorded transfers are skipped.
func (h *DepositHandlers) Process(c *gin.Context) {
	var req ProcessDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "tx_hash is required")
		return
	}

	deposits, err := h.deposits.ProcessTransaction(c.Request.Context(), req.TxHash)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondCreated(c, gin.H{"deposits": deposits, "count": len(deposits)})
}

// List returns deposits with pagination
func (h *DepositHandlers) List(c *gin.Context) {
	limit, offset := pagination(c)

	deposits, total, err := h.deposits.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondSuccess(c, PaginatedResponse{Data: deposits, Total: total, Limit: limit, Offset: offset})
}
