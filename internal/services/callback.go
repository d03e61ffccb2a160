package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/markjakearzadon/mpesa-gobackend/internal/events"
	"github.com/markjakearzadon/mpesa-gobackend/internal/metrics"
	"github.com/markjakearzadon/mpesa-gobackend/internal/models"
	"github.com/markjakearzadon/mpesa-gobackend/internal/mpesa"
)

type CallbackOutcome string

const (
	// CallbackIgnored means the payload had no CheckoutRequestID.
	CallbackIgnored   CallbackOutcome = "ignored"
	CallbackUnmatched CallbackOutcome = "unmatched"
	CallbackUpdated   CallbackOutcome = "updated"
)

type CallbackService struct {
	store     TransactionStore
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewCallbackService(store TransactionStore, publisher events.Publisher, logger *zap.Logger) *CallbackService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &CallbackService{
		store:     store,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleCallback applies an M-Pesa result notification. Redelivery of the
// same notification rewrites the same status. Only a storage failure is
// returned as an error.
func (s *CallbackService) HandleCallback(ctx context.Context, payload map[string]any) (CallbackOutcome, error) {
	result, ok := mpesa.ParseCallback(payload)
	if !ok {
		metrics.Callbacks.WithLabelValues(string(CallbackIgnored)).Inc()
		s.logger.Warn("callback without CheckoutRequestID ignored")
		return CallbackIgnored, nil
	}

	status := models.StatusFailed
	if result.Success {
		status = models.StatusSuccess
	}

	matched, err := s.store.UpdateStatus(ctx, result.CheckoutRequestID, status, result.ResultDesc)
	if err != nil {
		metrics.Callbacks.WithLabelValues("error").Inc()
		s.logger.Error("error processing callback",
			zap.String("checkout_request_id", result.CheckoutRequestID),
			zap.Error(err))
		return "", err
	}

	if matched == 0 {
		metrics.Callbacks.WithLabelValues(string(CallbackUnmatched)).Inc()
		s.logger.Warn("callback matched no transaction",
			zap.String("checkout_request_id", result.CheckoutRequestID),
			zap.Int64("result_code", result.ResultCode))
		return CallbackUnmatched, nil
	}

	metrics.Callbacks.WithLabelValues(string(CallbackUpdated)).Inc()
	s.logger.Info("transaction status updated",
		zap.String("checkout_request_id", result.CheckoutRequestID),
		zap.String("status", string(status)),
		zap.Int64("result_code", result.ResultCode))

	event := events.PaymentResult{
		CheckoutRequestID: result.CheckoutRequestID,
		MerchantRequestID: result.MerchantRequestID,
		Status:            status,
		ResultCode:        result.ResultCode,
		ResultDesc:        result.ResultDesc,
		ReceivedAt:        s.now().UTC(),
	}
	if err := s.publisher.PublishPaymentResult(ctx, event); err != nil {
		// the status is already stored; a lost event must not trigger redelivery
		s.logger.Warn("payment result event not published",
			zap.String("checkout_request_id", result.CheckoutRequestID),
			zap.Error(err))
	}

	return CallbackUpdated, nil
}
