package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/markjakearzadon/mpesa-gobackend/internal/models"
	"github.com/markjakearzadon/mpesa-gobackend/internal/services"
)

type PaymentHandler struct {
	payments  *services.PaymentService
	callbacks *services.CallbackService
	logger    *zap.Logger
}

func NewPaymentHandler(payments *services.PaymentService, callbacks *services.CallbackService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, callbacks: callbacks, logger: logger}
}

const maxBodyBytes = 1 << 20

// callbackAck is the acknowledgement body M-Pesa expects.
type callbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// RequestPayment handles POST /api/request-payment
func (h *PaymentHandler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req models.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	result, err := h.payments.RequestPayment(r.Context(), req)
	if err != nil {
		var perr *services.ProviderError
		switch {
		case errors.Is(err, services.ErrInvalidRequest):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrAuthentication):
			respondError(w, http.StatusInternalServerError, "Failed to authenticate with MPesa")
		case errors.As(err, &perr):
			respondError(w, http.StatusBadRequest, perr.Message)
		default:
			h.logger.Error("error in request payment", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Payment request failed: "+err.Error())
		}
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// MpesaCallback handles POST /api/mpesa-callback. The response is always
// 200; ResultCode 1 asks M-Pesa to deliver the notification again.
func (h *PaymentHandler) MpesaCallback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.Error("error processing callback: undecodable payload", zap.Error(err))
		respondJSON(w, http.StatusOK, callbackAck{ResultCode: 1, ResultDesc: "Callback processing failed"})
		return
	}
	h.logger.Debug("received callback", zap.Any("payload", payload))

	if _, err := h.callbacks.HandleCallback(r.Context(), payload); err != nil {
		respondJSON(w, http.StatusOK, callbackAck{ResultCode: 1, ResultDesc: "Callback processing failed"})
		return
	}

	respondJSON(w, http.StatusOK, callbackAck{ResultCode: 0, ResultDesc: "Callback processed successfully"})
}
