package models

import (
	"time"
)

type Status string

const (
	StatusPending Status = "Pending"
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// Transaction is a single STK push attempt accepted by M-Pesa.
type Transaction struct {
	ID                string    `bson:"_id" json:"id"`
	Phone             string    `bson:"phone" json:"phone"`
	Amount            int64     `bson:"amount" json:"amount"`
	OrderNumber       string    `bson:"order_number" json:"order_number"`
	Description       string    `bson:"description" json:"description"`
	Status            Status    `bson:"status" json:"status"`
	CheckoutRequestID string    `bson:"checkout_request_id" json:"checkout_request_id"`
	MerchantRequestID string    `bson:"merchant_request_id" json:"merchant_request_id"`
	ResultDesc        string    `bson:"result_desc,omitempty" json:"result_desc,omitempty"` // set by the callback
	Timestamp         time.Time `bson:"timestamp" json:"timestamp"`
}

// TransactionView is what GET /api/transactions returns per record.
type TransactionView struct {
	ID          string    `json:"id"`
	Phone       string    `json:"phone"`
	Amount      int64     `json:"amount"`
	OrderNumber string    `json:"order_number"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

func (t Transaction) View() TransactionView {
	return TransactionView{
		ID:          t.ID,
		Phone:       t.Phone,
		Amount:      t.Amount,
		OrderNumber: t.OrderNumber,
		Description: t.Description,
		Status:      t.Status,
		Timestamp:   t.Timestamp,
	}
}
