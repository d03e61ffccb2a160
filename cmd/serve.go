package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/markjakearzadon/mpesa-gobackend/internal/cache"
	"github.com/markjakearzadon/mpesa-gobackend/internal/config"
	"github.com/markjakearzadon/mpesa-gobackend/internal/events"
	"github.com/markjakearzadon/mpesa-gobackend/internal/handlers"
	"github.com/markjakearzadon/mpesa-gobackend/internal/mpesa"
	"github.com/markjakearzadon/mpesa-gobackend/internal/services"
)

func serveCmd() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the payment HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			return runServer(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen port (overrides PORT)")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Disconnect(shutdownCtx); err != nil {
			logger.Error("error disconnecting from mongodb", zap.Error(err))
		}
	}()

	mpesaOpts := []mpesa.Option{mpesa.WithLogger(logger)}
	if cfg.RedisAddr != "" {
		tokens, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			// tokens are fetched per request without the cache
			logger.Warn("redis unavailable, access tokens will not be cached", zap.Error(err))
		} else {
			defer tokens.Close()
			mpesaOpts = append(mpesaOpts, mpesa.WithTokenCache(tokens))
		}
	}
	gateway := mpesa.NewClient(mpesa.Config{
		BaseURL:        cfg.Mpesa.BaseURL,
		ConsumerKey:    cfg.Mpesa.ConsumerKey,
		ConsumerSecret: cfg.Mpesa.ConsumerSecret,
		ShortCode:      cfg.Mpesa.ShortCode,
		PassKey:        cfg.Mpesa.PassKey,
		CallbackURL:    cfg.Mpesa.CallbackURL,
	}, mpesaOpts...)

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	}
	defer publisher.Close()

	payments := services.NewPaymentService(gateway, store, logger)
	callbacks := services.NewCallbackService(store, publisher, logger)
	transactions := services.NewTransactionService(store, logger)

	router := handlers.NewRouter(handlers.RouterConfig{
		Payments:          handlers.NewPaymentHandler(payments, callbacks, logger),
		Transactions:      handlers.NewTransactionHandler(transactions),
		OperatorJWTSecret: cfg.OperatorJWTSecret,
		Logger:            logger,
	})

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 40 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server running", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
