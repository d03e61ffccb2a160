package services

import (
	"context"

	"github.com/markjakearzadon/mpesa-gobackend/internal/db"
	"github.com/markjakearzadon/mpesa-gobackend/internal/models"
)

// TransactionStore is implemented by *db.TransactionStore.
type TransactionStore interface {
	Insert(ctx context.Context, tx *models.Transaction) error
	UpdateStatus(ctx context.Context, checkoutRequestID string, status models.Status, resultDesc string) (int64, error)
	Find(ctx context.Context, f db.Filter) ([]models.Transaction, error)
}
