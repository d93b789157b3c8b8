package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vaultline/vault-service/internal/domain/entities"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// ErrorResponse is the shape of every error body
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PaginatedResponse wraps list results with total count
type PaginatedResponse struct {
	Data   interface{} `json:"data"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, ErrorResponse{Code: code, Message: message})
}

// respondServiceError maps domain errors to HTTP statuses
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, entities.ErrValidation):
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, entities.ErrAddressNotFound),
		errors.Is(err, entities.ErrTokenNotFound),
		errors.Is(err, entities.ErrWithdrawalNotFound),
		errors.Is(err, entities.ErrTxNotFound):
		respondError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, entities.ErrTxNotSecure):
		respondError(c, http.StatusConflict, "TX_NOT_SECURE", err.Error())
	case errors.Is(err, entities.ErrTxFailed):
		respondError(c, http.StatusUnprocessableEntity, "TX_FAILED", err.Error())
	case errors.Is(err, entities.ErrInvalidToken):
		respondError(c, http.StatusUnprocessableEntity, "INVALID_TOKEN", err.Error())
	case errors.Is(err, entities.ErrInsufficientFunds):
		respondError(c, http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", err.Error())
	case errors.Is(err, entities.ErrChainUnavailable):
		respondError(c, http.StatusBadGateway, "CHAIN_UNAVAILABLE", "blockchain node unavailable")
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// respondBadRequest sends a bad request error
func respondBadRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, "INVALID_REQUEST", message)
}

// respondSuccess sends a success response with data
func respondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// respondCreated sends a created response with data
func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// parseUUIDParam parses a path parameter as a UUID
func parseUUIDParam(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		respondBadRequest(c, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

// pagination extracts limit/offset from the query, clamped to sane bounds
func pagination(c *gin.Context) (limit, offset int) {
	limit = parseIntQuery(c, "limit", defaultPageLimit)
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	offset = parseIntQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func parseIntQuery(c *gin.Context, param string, defaultVal int) int {
	val := c.Query(param)
	if val == "" {
		return defaultVal
	}
	n := 0
	for _, ch := range val {
		if ch < '0' || ch > '9' {
			return defaultVal
		}
		n = n*10 + int(ch-'0')
		if n > 1<<30 {
			return defaultVal
		}
	}
	return n
}
