package gateway

import (
	"errors"
	"net/http"

	"github.com/noah-isme/paybridge/internal/common"
)

var (
	// ErrOrderNotFound reports an order id the host does not know.
	ErrOrderNotFound = errors.New("gateway: order not found")
	// ErrOrderAlreadyPaid rejects a new handoff for a settled order.
	ErrOrderAlreadyPaid = errors.New("gateway: order already paid")
	// ErrGatewayDisabled rejects handoffs while the payment method is switched off.
	ErrGatewayDisabled = errors.New("gateway: payment method disabled")
	// ErrBuildFailure wraps anything that prevented a redirect from being built.
	ErrBuildFailure = errors.New("gateway: build redirect failed")

	// ErrMissingFields reports a callback without payload or signature.
	ErrMissingFields = errors.New("gateway: missing payload or signature")
	// ErrSignatureInvalid reports a callback whose signature does not match.
	ErrSignatureInvalid = errors.New("gateway: signature invalid")
	// ErrPayloadMalformed reports a correctly signed payload that cannot be decoded.
	ErrPayloadMalformed = errors.New("gateway: payload malformed")
	// ErrPaymentNotCompleted reports a processor status other than paid.
	ErrPaymentNotCompleted = errors.New("gateway: payment not completed")
)

// toAppError maps gateway errors onto API error codes for the JSON endpoints.
func toAppError(err error) *common.AppError {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return common.NewAppError("ORDER_NOT_FOUND", "order not found", http.StatusNotFound, err)
	case errors.Is(err, ErrOrderAlreadyPaid):
		return common.NewAppError("ORDER_ALREADY_PAID", "order already paid", http.StatusConflict, err)
	case errors.Is(err, ErrGatewayDisabled):
		return common.NewAppError("PAYMENT_METHOD_DISABLED", "payment method unavailable", http.StatusConflict, err)
	case errors.Is(err, ErrBuildFailure):
		return common.NewAppError("PAYMENT_REDIRECT_FAILED", "unable to start payment", http.StatusInternalServerError, err)
	default:
		return common.AsAppError(err)
	}
}

// rejectionReason is the log and metric label for a failed callback.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingFields):
		return "missing_fields"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrPayloadMalformed):
		return "payload_malformed"
	case errors.Is(err, ErrOrderNotFound):
		return "order_not_found"
	case errors.Is(err, ErrPaymentNotCompleted):
		return "payment_not_completed"
	default:
		return "internal_error"
	}
}
