package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/markjakearzadon/mpesa-gobackend/internal/metrics"
	"github.com/markjakearzadon/mpesa-gobackend/internal/models"
	"github.com/markjakearzadon/mpesa-gobackend/internal/mpesa"
)

const paymentInitiatedMessage = "STK Push initiated successfully"

// Gateway is implemented by *mpesa.Client.
type Gateway interface {
	AccessToken(ctx context.Context) (string, error)
	StkPush(ctx context.Context, token string, req mpesa.PushRequest) (*mpesa.PushResponse, error)
}

type PaymentService struct {
	gateway Gateway
	store   TransactionStore
	logger  *zap.Logger
	newID   func() string
	now     func() time.Time
}

func NewPaymentService(gateway Gateway, store TransactionStore, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		gateway: gateway,
		store:   store,
		logger:  logger,
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
}

// RequestPayment sends an STK push to the payer and records the
// transaction once M-Pesa accepts it. Nothing is stored otherwise.
func (s *PaymentService) RequestPayment(ctx context.Context, req models.PaymentRequest) (*models.PaymentResult, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	req.OrderNumber = strings.TrimSpace(req.OrderNumber)
	if err := validatePaymentRequest(req); err != nil {
		return nil, err
	}

	token, err := s.gateway.AccessToken(ctx)
	if err != nil {
		metrics.StkPushes.WithLabelValues("auth_failed").Inc()
		s.logger.Error("no access token for stk push", zap.String("order_number", req.OrderNumber), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	resp, err := s.gateway.StkPush(ctx, token, mpesa.PushRequest{
		Phone:            req.Phone,
		Amount:           req.Amount,
		AccountReference: req.OrderNumber,
		Description:      req.Description,
	})
	if err != nil {
		metrics.StkPushes.WithLabelValues("error").Inc()
		s.logger.Error("stk push failed", zap.String("order_number", req.OrderNumber), zap.Error(err))
		return nil, err
	}

	if !resp.Accepted() {
		metrics.StkPushes.WithLabelValues("rejected").Inc()
		s.logger.Warn("stk push rejected",
			zap.String("order_number", req.OrderNumber),
			zap.Int("http_status", resp.HTTPStatus),
			zap.String("response_code", resp.ResponseCode),
			zap.String("error_code", resp.ErrorCode),
			zap.String("reason", resp.Reason()))
		return nil, &ProviderError{Message: resp.Reason()}
	}
	// callbacks are matched on the checkout id, a record without one could never settle
	if resp.CheckoutRequestID == "" {
		metrics.StkPushes.WithLabelValues("error").Inc()
		s.logger.Error("stk push accepted without checkout request id",
			zap.String("order_number", req.OrderNumber),
			zap.String("merchant_request_id", resp.MerchantRequestID))
		return nil, ErrMissingCheckoutID
	}

	tx := &models.Transaction{
		ID:                s.newID(),
		Phone:             req.Phone,
		Amount:            req.Amount,
		OrderNumber:       req.OrderNumber,
		Description:       req.Description,
		Status:            models.StatusPending,
		CheckoutRequestID: resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		Timestamp:         s.now().UTC(),
	}
	if err := s.store.Insert(ctx, tx); err != nil {
		metrics.StkPushes.WithLabelValues("error").Inc()
		s.logger.Error("failed to save transaction",
			zap.String("checkout_request_id", tx.CheckoutRequestID),
			zap.Error(err))
		return nil, err
	}

	metrics.StkPushes.WithLabelValues("accepted").Inc()
	s.logger.Info("stk push accepted",
		zap.String("transaction_id", tx.ID),
		zap.String("checkout_request_id", tx.CheckoutRequestID),
		zap.String("order_number", tx.OrderNumber))

	return &models.PaymentResult{
		Success:           true,
		Message:           paymentInitiatedMessage,
		CheckoutRequestID: tx.CheckoutRequestID,
		TransactionID:     tx.ID,
	}, nil
}

// Phone numbers are passed to M-Pesa as given; Daraja rejects bad ones.
func validatePaymentRequest(req models.PaymentRequest) error {
	if req.Phone == "" {
		return fmt.Errorf("%w: phone is required", ErrInvalidRequest)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}
	if req.OrderNumber == "" {
		return fmt.Errorf("%w: order_number is required", ErrInvalidRequest)
	}
	return nil
}
