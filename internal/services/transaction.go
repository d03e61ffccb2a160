package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"go.uber.org/zap"

	"github.com/markjakearzadon/mpesa-gobackend/internal/db"
	"github.com/markjakearzadon/mpesa-gobackend/internal/models"
)

const (
	// MaxTransactions caps every listing and export.
	MaxTransactions = 1000

	csvTimestampLayout = "2006-01-02 15:04:05"
)

var csvHeader = []string{"Order Number", "Phone Number", "Amount", "Description", "Status", "Timestamp"}

type TransactionService struct {
	store  TransactionStore
	logger *zap.Logger
}

func NewTransactionService(store TransactionStore, logger *zap.Logger) *TransactionService {
	return &TransactionService{store: store, logger: logger}
}

// List returns up to MaxTransactions transactions, newest first.
func (s *TransactionService) List(ctx context.Context) ([]models.Transaction, error) {
	txs, err := s.store.Find(ctx, db.Filter{Limit: MaxTransactions})
	if err != nil {
		s.logger.Error("error fetching transactions", zap.Error(err))
		return nil, err
	}
	return txs, nil
}

// Successful returns up to MaxTransactions successful transactions, newest
// first, or ErrNoSuccessfulTransactions.
func (s *TransactionService) Successful(ctx context.Context) ([]models.Transaction, error) {
	status := models.StatusSuccess
	txs, err := s.store.Find(ctx, db.Filter{Status: &status, Limit: MaxTransactions})
	if err != nil {
		s.logger.Error("error fetching successful transactions", zap.Error(err))
		return nil, err
	}
	if len(txs) == 0 {
		return nil, ErrNoSuccessfulTransactions
	}
	return txs, nil
}

// ExportSuccessful renders Successful as CSV.
func (s *TransactionService) ExportSuccessful(ctx context.Context) ([]byte, error) {
	txs, err := s.Successful(ctx)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, txs); err != nil {
		s.logger.Error("error writing transactions csv", zap.Error(err))
		return nil, err
	}
	return buf.Bytes(), nil
}

func WriteCSV(w io.Writer, txs []models.Transaction) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, tx := range txs {
		record := []string{
			tx.OrderNumber,
			tx.Phone,
			strconv.FormatInt(tx.Amount, 10),
			tx.Description,
			string(tx.Status),
			tx.Timestamp.UTC().Format(csvTimestampLayout),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
