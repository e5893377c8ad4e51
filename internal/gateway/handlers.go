package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/paybridge/internal/common"
)

// MethodInfo is the buyer-facing description of the gateway.
type MethodInfo struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Image        string `json:"image,omitempty"`
	Instructions string `json:"instructions,omitempty"`
	Enabled      bool   `json:"enabled"`
}

// Handler exposes the handoff, callback and payment method endpoints.
type Handler struct {
	Builder     *Builder
	Verifier    *Verifier
	Method      MethodInfo
	CheckoutURL string
}

type payResp struct {
	Result   string            `json:"result"`
	Redirect string            `json:"redirect,omitempty"`
	Error    *common.ErrorBody `json:"error,omitempty"`
}

// Pay starts the handoff for an order. Clients receive the processor URL as
// JSON, or a 303 redirect when ?redirect=1 is set.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Builder == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "payment handler unavailable")
		return
	}
	orderID, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "orderId")), 10, 64)
	if err != nil || orderID <= 0 {
		common.JSON(w, http.StatusBadRequest, payResp{
			Result: "failure",
			Error:  &common.ErrorBody{Code: "BAD_REQUEST", Message: "invalid order id"},
		})
		return
	}
	target, err := h.Builder.Build(r.Context(), orderID)
	if err != nil {
		appErr := toAppError(err)
		common.JSON(w, appErr.HTTPStatus, payResp{
			Result: "failure",
			Error:  &common.ErrorBody{Code: appErr.Code, Message: appErr.Message},
		})
		return
	}
	if r.URL.Query().Get("redirect") == "1" {
		http.Redirect(w, r, target.URL, http.StatusSeeOther)
		return
	}
	common.JSON(w, http.StatusOK, payResp{Result: "success", Redirect: target.URL})
}

// Callback receives the processor's return. Paid orders redirect to the
// order-received page; every failure renders a terminal page.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Verifier == nil {
		renderPage(w, http.StatusInternalServerError, page{Title: "Payment Error", Message: "Payment processing is unavailable."})
		return
	}
	raw, signature, err := callbackFields(r)
	if err != nil {
		h.Verifier.Reject(r.Context(), fmt.Errorf("%w: %w", ErrPayloadMalformed, err))
		renderPage(w, http.StatusBadRequest, page{Title: "Invalid Data", Message: "Invalid payment response."})
		return
	}
	outcome, err := h.Verifier.Process(r.Context(), raw, signature)
	if err == nil {
		http.Redirect(w, r, outcome.RedirectURL, http.StatusFound)
		return
	}
	switch {
	case errors.Is(err, ErrPaymentNotCompleted):
		renderPage(w, http.StatusBadRequest, page{
			Title:    "Payment Not Completed",
			Message:  "Payment not completed.",
			LinkURL:  h.CheckoutURL,
			LinkText: "Return to checkout",
		})
	case errors.Is(err, ErrMissingFields):
		renderPage(w, http.StatusBadRequest, page{Title: "Invalid Data", Message: "Missing payment response data."})
	case errors.Is(err, ErrSignatureInvalid), errors.Is(err, ErrPayloadMalformed):
		renderPage(w, http.StatusBadRequest, page{Title: "Invalid Data", Message: "Invalid payment response."})
	case errors.Is(err, ErrOrderNotFound):
		renderPage(w, http.StatusNotFound, page{Title: "Order Not Found", Message: "We could not find the order for this payment."})
	default:
		renderPage(w, http.StatusInternalServerError, page{
			Title:   "Payment Error",
			Message: "We could not record your payment. Please try again shortly.",
		})
	}
}

// PaymentMethod describes the gateway for checkout pages.
func (h *Handler) PaymentMethod(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, h.Method)
}

type callbackJSON struct {
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

// callbackFields reads data and signature from the query string, a form body
// or a JSON body.
func callbackFields(r *http.Request) (string, string, error) {
	if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "application/json" {
		var body callbackJSON
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return "", "", err
		}
		q := r.URL.Query()
		if body.Data == "" {
			body.Data = q.Get(PayloadParam)
		}
		if body.Signature == "" {
			body.Signature = q.Get(SignatureParam)
		}
		return body.Data, body.Signature, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", "", err
	}
	return r.Form.Get(PayloadParam), r.Form.Get(SignatureParam), nil
}
