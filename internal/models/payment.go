package models

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
)

var errFractionalAmount = errors.New("amount must be a whole number")

// PaymentRequest is the body of POST /api/request-payment.
type PaymentRequest struct {
	Phone       string `json:"phone"`
	Amount      int64  `json:"amount"`
	OrderNumber string `json:"order_number"`
	Description string `json:"description"`
}

// UnmarshalJSON accepts integral amounts written as floats, e.g. 10.0.
func (r *PaymentRequest) UnmarshalJSON(data []byte) error {
	type alias PaymentRequest
	aux := struct {
		*alias
		Amount json.Number `json:"amount"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.Amount == "" {
		r.Amount = 0
		return nil
	}

	if n, err := strconv.ParseInt(aux.Amount.String(), 10, 64); err == nil {
		r.Amount = n
		return nil
	}
	f, err := strconv.ParseFloat(aux.Amount.String(), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt64/2 {
		return errFractionalAmount
	}
	r.Amount = int64(f)
	return nil
}

// PaymentResult is returned once M-Pesa has accepted the push request.
type PaymentResult struct {
	Success           bool   `json:"success"`
	Message           string `json:"message"`
	CheckoutRequestID string `json:"checkout_request_id"`
	TransactionID     string `json:"transaction_id"`
}
