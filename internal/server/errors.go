package server

import (
	"errors"
	"net/http"

	catalogdomain "github.com/creditrail/creditrail/internal/catalog/domain"
	consumptiondomain "github.com/creditrail/creditrail/internal/consumption/domain"
	grantdomain "github.com/creditrail/creditrail/internal/grant/domain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware maps domain errors collected on the context to
// typed JSON payloads. Expected denials (rate limit, insufficient credits)
// never land here: they are decision values, not errors.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, catalogdomain.ErrUnknownModel):
		return http.StatusBadRequest, errorPayload{
			Type:    "unknown_model",
			Message: "no active pricing entry for provider/model",
		}
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, consumptiondomain.ErrLedgerUnavailable),
		errors.Is(err, grantdomain.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "ledger temporarily unavailable, retry later",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, consumptiondomain.ErrInvalidIdentity),
		errors.Is(err, consumptiondomain.ErrInvalidRequestRef),
		errors.Is(err, consumptiondomain.ErrInvalidStatus),
		errors.Is(err, consumptiondomain.ErrInvalidUnits),
		errors.Is(err, grantdomain.ErrInvalidIdentity),
		errors.Is(err, grantdomain.ErrInvalidAmount),
		errors.Is(err, grantdomain.ErrInvalidGrantType),
		errors.Is(err, grantdomain.ErrInvalidReference),
		errors.Is(err, catalogdomain.ErrInvalidProvider),
		errors.Is(err, catalogdomain.ErrInvalidModel),
		errors.Is(err, catalogdomain.ErrInvalidPricing):
		return true
	default:
		return false
	}
}
