package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/markjakearzadon/mpesa-gobackend/internal/config"
	"github.com/markjakearzadon/mpesa-gobackend/internal/db"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "mpesa-gateway",
		Short:        "M-Pesa STK push payment API",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Development() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore connects to MongoDB and prepares the transactions collection.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*mongo.Client, *db.TransactionStore, error) {
	client, err := db.Connect(ctx, cfg.MongoURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	logger.Info("connected to mongodb", zap.String("database", cfg.DBName))

	store := db.NewTransactionStore(client.Database(cfg.DBName))
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return client, store, nil
}
