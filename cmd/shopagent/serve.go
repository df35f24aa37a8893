package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"shopagent/internal/dialog"
	"shopagent/internal/perception"
	"shopagent/internal/policy"
	"shopagent/internal/pricing"
	"shopagent/internal/server"
	"shopagent/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP chat service",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager, st, err := buildCore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	timeout, err := cfg.RequestTimeout()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(manager, st, timeout).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildCore wires the policy table, oracle, price provider, dialog
// manager, and store from the loaded configuration.
func buildCore(ctx context.Context) (*dialog.Manager, *store.LocalStore, error) {
	table, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		return nil, nil, err
	}

	client, err := perception.NewClientFromConfig(ctx, cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	oracle := perception.NewExtractor(client, table)
	prices := pricing.NewProviderFromConfig(cfg.Pricing)

	st, err := store.NewLocalStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, nil, err
	}

	manager := dialog.NewManager(table, oracle, prices, cfg.Dialog.TurnBudget)
	return manager, st, nil
}
