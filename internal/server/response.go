package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/payflow/internal/payment/domain"
)

// Every endpoint answers the same envelope: {"success": true, "data": ...} or
// {"success": false, "message": ...}.

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func respondCreated(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, gin.H{"success": true, "data": data})
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"success": false, "message": err.Error()})
}

func statusFor(err error) int {
	switch {
	case isValidationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, paymentdomain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, paymentdomain.ErrRetryNotAllowed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, paymentdomain.ErrInvalidUser),
		errors.Is(err, paymentdomain.ErrInvalidAmount),
		errors.Is(err, paymentdomain.ErrInvalidCurrency),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrInvalidMerchant):
		return true
	default:
		return false
	}
}
