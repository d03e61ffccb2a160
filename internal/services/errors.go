package services

import (
	"errors"
)

var (
	ErrInvalidRequest           = errors.New("invalid payment request")
	ErrAuthentication           = errors.New("failed to authenticate with MPesa")
	ErrNoSuccessfulTransactions = errors.New("no successful transactions found")
	ErrMissingCheckoutID        = errors.New("mpesa accepted the push without a CheckoutRequestID")
)

// ProviderError carries M-Pesa's own message for a rejected STK push.
type ProviderError struct {
	Message string
}

func (e *ProviderError) Error() string {
	return e.Message
}
