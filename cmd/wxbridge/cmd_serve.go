package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/user/wxbridge/internal/chat"
	"github.com/user/wxbridge/internal/dedup"
	"github.com/user/wxbridge/internal/history"
	"github.com/user/wxbridge/internal/state"
	"github.com/user/wxbridge/internal/wechat"
	"github.com/user/wxbridge/pkg/llm"
	"github.com/user/wxbridge/pkg/llm/openai"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	// Store
	store, err := state.OpenSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	// LLM provider
	provider := openai.New(&llm.Config{
		BaseURL:   cfg.LLM.BaseURL,
		APIKey:    cfg.LLM.APIKey,
		Model:     cfg.LLM.Model,
		MaxTokens: cfg.LLM.MaxTokens,
		Timeout:   cfg.LLM.Timeout,
	})

	// Prompt window builder
	builder, err := history.New(store, cfg.LLM.Model, cfg.LLM.MaxTokens, history.Options{
		Lookback: cfg.History.Lookback,
		MaxGap:   cfg.History.MaxGap,
		Limit:    cfg.History.Limit,
	})
	if err != nil {
		return fmt.Errorf("create window builder: %w", err)
	}

	// Reply flow and duplicate reconciler
	responder := chat.NewResponder(store, builder, provider, int64(cfg.MaxConcurrent))
	reconciler := dedup.New(store, store, cfg.Dedup.Attempts, cfg.Dedup.Delay)

	// Webhook HTTP server
	srv := wechat.NewServer(cfg.WeChat.Token, responder, reconciler)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: srv,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		slog.Info("wxbridge started",
			"listen", cfg.ListenAddr,
			"log_level", cfg.LogLevel,
			"db_path", cfg.DBPath,
			"max_concurrent", cfg.MaxConcurrent,
			"llm_model", cfg.LLM.Model,
		)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("shutting down", "signal", sig)
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
