package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/markjakearzadon/mpesa-gobackend/internal/models"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// PaymentResult is emitted once a callback has moved a transaction to a
// terminal status.
type PaymentResult struct {
	CheckoutRequestID string        `json:"checkout_request_id"`
	MerchantRequestID string        `json:"merchant_request_id,omitempty"`
	Status            models.Status `json:"status"`
	ResultCode        int64         `json:"result_code"`
	ResultDesc        string        `json:"result_desc"`
	ReceivedAt        time.Time     `json:"received_at"`
}

type Publisher interface {
	PublishPaymentResult(ctx context.Context, event PaymentResult) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	logger *zap.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *zap.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: writer, logger: logger}
}

// PublishPaymentResult keys messages by CheckoutRequestID so every result
// for one transaction lands on the same partition.
func (p *KafkaPublisher) PublishPaymentResult(ctx context.Context, event PaymentResult) error {
	value, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(event.CheckoutRequestID),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish payment result",
			zap.String("checkout_request_id", event.CheckoutRequestID),
			zap.Error(err))
		return err
	}
	p.logger.Debug("payment result published",
		zap.String("checkout_request_id", event.CheckoutRequestID),
		zap.String("status", string(event.Status)))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher is used when no Kafka brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishPaymentResult(context.Context, PaymentResult) error { return nil }

func (NopPublisher) Close() error { return nil }
