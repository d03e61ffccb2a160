package db

import (
	"context"
	"fmt"
	"time"

	"github.com/markjakearzadon/mpesa-gobackend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	TransactionsCollection = "transactions"

	opTimeout = 10 * time.Second
)

// Filter narrows Find. Results are always newest first.
type Filter struct {
	Status *models.Status
	Limit  int64
}

type TransactionStore struct {
	collection *mongo.Collection
}

func NewTransactionStore(db *mongo.Database) *TransactionStore {
	return &TransactionStore{collection: db.Collection(TransactionsCollection)}
}

// EnsureIndexes creates the indexes the callback and listing paths rely on.
func (s *TransactionStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	indexModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "checkout_request_id", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "timestamp", Value: -1}}},
	}
	if _, err := s.collection.Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

func (s *TransactionStore) Insert(ctx context.Context, tx *models.Transaction) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, tx); err != nil {
		return fmt.Errorf("failed to insert transaction %s: %w", tx.ID, err)
	}
	return nil
}

// UpdateStatus sets the terminal status on the transaction carrying
// checkoutRequestID and returns how many documents matched.
func (s *TransactionStore) UpdateStatus(ctx context.Context, checkoutRequestID string, status models.Status, resultDesc string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{
		"status":      status,
		"result_desc": resultDesc,
	}}
	res, err := s.collection.UpdateOne(ctx, bson.M{"checkout_request_id": checkoutRequestID}, update)
	if err != nil {
		return 0, fmt.Errorf("failed to update transaction %s: %w", checkoutRequestID, err)
	}
	return res.MatchedCount, nil
}

func (s *TransactionStore) Find(ctx context.Context, f Filter) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query := bson.M{}
	if f.Status != nil {
		query["status"] = *f.Status
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(f.Limit)
	}

	cur, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	defer cur.Close(ctx)

	transactions := []models.Transaction{}
	if err := cur.All(ctx, &transactions); err != nil {
		return nil, fmt.Errorf("failed to decode transactions: %w", err)
	}
	return transactions, nil
}
