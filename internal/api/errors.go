package api

import (
	"errors"
	"net/http"

	"salon-service/internal/service"
	"salon-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorBody maps a service error to a status and the JSON envelope
// {"error", "code", "details"}
func errorBody(err error) (int, gin.H) {
	var (
		partial *service.PartialBookingError
		fields  *service.FieldErrors
		card    *service.CardError
	)

	switch {
	case errors.As(err, &partial):
		return http.StatusBadGateway, gin.H{
			"error":         partial.Error(),
			"code":          "payment_captured_booking_failed",
			"transactionId": partial.TxID,
		}
	case errors.As(err, &fields):
		return http.StatusBadRequest, gin.H{
			"error":   "Validation failed",
			"code":    "validation_error",
			"details": fields.Fields,
		}
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, gin.H{"error": err.Error(), "code": "validation_error"}
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized, gin.H{"error": "Unauthorized", "code": "unauthorized"}
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": err.Error(), "code": "not_found"}
	case errors.Is(err, service.ErrAmountMismatch):
		return http.StatusConflict, gin.H{"error": err.Error(), "code": "amount_mismatch"}
	case errors.Is(err, service.ErrAlreadyBooked):
		return http.StatusConflict, gin.H{"error": err.Error(), "code": "already_booked"}
	case errors.Is(err, service.ErrWidgetActive):
		return http.StatusConflict, gin.H{"error": err.Error(), "code": "widget_active"}
	case errors.Is(err, service.ErrPaymentTimeout):
		return http.StatusGatewayTimeout, gin.H{"error": err.Error(), "code": "payment_timeout", "retryable": true}
	case errors.As(err, &card):
		return http.StatusPaymentRequired, gin.H{"error": card.Message, "code": "card_declined", "details": card.Code}
	case errors.Is(err, service.ErrCardDeclined):
		return http.StatusPaymentRequired, gin.H{"error": err.Error(), "code": "card_declined"}
	case errors.Is(err, service.ErrSDKUnavailable):
		return http.StatusServiceUnavailable, gin.H{"error": err.Error(), "code": "payment_unavailable", "retryable": true}
	case errors.Is(err, service.ErrGateway):
		return http.StatusPaymentRequired, gin.H{"error": err.Error(), "code": "gateway_error"}
	}

	return http.StatusInternalServerError, gin.H{"error": "Internal server error", "code": "internal_error"}
}

// writeError responds with the mapped error and aborts the chain
func writeError(c *gin.Context, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, msg string, err error) {
	body := gin.H{"error": msg, "code": "bad_request"}
	if err != nil {
		body["details"] = err.Error()
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, body)
}
