package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markjakearzadon/mpesa-gobackend/internal/config"
	"github.com/markjakearzadon/mpesa-gobackend/internal/services"
)

func exportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write successful transactions as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runExport(cmd.Context(), cfg, output, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	return cmd
}

func runExport(ctx context.Context, cfg *config.Config, output string, stdout io.Writer) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	client, store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(context.Background())

	txs, err := services.NewTransactionService(store, logger).Successful(ctx)
	if err != nil {
		if errors.Is(err, services.ErrNoSuccessfulTransactions) {
			return errors.New("no successful transactions found")
		}
		return err
	}

	w := stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := services.WriteCSV(w, txs); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if output != "" {
		logger.Info("exported transactions", zap.Int("count", len(txs)), zap.String("file", output))
	}
	return nil
}
