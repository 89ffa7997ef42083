package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chungtau/ledger-bank/internal/domain"
	"github.com/chungtau/ledger-bank/internal/middleware"
)

type APIError struct {
	HTTPStatus int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Message
}

// ToAPIError converts a ledger error to an API error with appropriate HTTP status
func ToAPIError(err error) *APIError {
	if err == nil {
		return nil
	}

	var derr *domain.Error
	if !errors.As(err, &derr) {
		return &APIError{
			HTTPStatus: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    "Internal server error",
		}
	}

	switch derr.Kind {
	case domain.KindNotFound:
		return &APIError{
			HTTPStatus: http.StatusNotFound,
			Code:       "NOT_FOUND",
			Message:    derr.Message,
		}

	case domain.KindForbidden:
		return &APIError{
			HTTPStatus: http.StatusForbidden,
			Code:       "FORBIDDEN",
			Message:    "You are not allowed to perform this operation",
		}

	case domain.KindInsufficientFunds:
		return &APIError{
			HTTPStatus: http.StatusBadRequest,
			Code:       "INSUFFICIENT_FUNDS",
			Message:    "Insufficient funds",
		}

	case domain.KindDuplicateAccount:
		return &APIError{
			HTTPStatus: http.StatusBadRequest,
			Code:       "DUPLICATE_ACCOUNT",
			Message:    derr.Message,
		}

	case domain.KindInvalidRequest:
		return &APIError{
			HTTPStatus: http.StatusBadRequest,
			Code:       "INVALID_REQUEST",
			Message:    derr.Message,
		}

	case domain.KindStoreFailure:
		return &APIError{
			HTTPStatus: http.StatusInternalServerError,
			Code:       "INTERNAL_ERROR",
			Message:    "Internal server error",
		}

	default:
		return &APIError{
			HTTPStatus: http.StatusInternalServerError,
			Code:       "UNKNOWN_ERROR",
			Message:    "An unexpected error occurred",
		}
	}
}

func respondError(c *gin.Context, err error) {
	apiErr := ToAPIError(err)
	if apiErr.HTTPStatus >= http.StatusInternalServerError {
		middleware.Logger(c).Error("request failed", zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(apiErr.HTTPStatus, gin.H{
		"code":    apiErr.Code,
		"message": apiErr.Message,
	})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "INVALID_REQUEST",
		"message": message,
	})
}

func unauthenticated(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"code":    "UNAUTHORIZED",
		"message": "Caller identity not found in token",
	})
}
