package cmd

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

	"github.com/nextlevelbuilder/beaconobs/internal/bus"
	"github.com/nextlevelbuilder/beaconobs/internal/config"
	"github.com/nextlevelbuilder/beaconobs/internal/httpapi"
	"github.com/nextlevelbuilder/beaconobs/internal/llm"
	"github.com/nextlevelbuilder/beaconobs/internal/replay"
	"github.com/nextlevelbuilder/beaconobs/internal/runner"
	"github.com/nextlevelbuilder/beaconobs/internal/store"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP+WebSocket gateway",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		slog.Error("failed to open store", "path", cfg.Store.Path, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	eventBus := bus.New()
	if cfg.Bus.RedisAddr != "" {
		eventBus.SetSecondarySink(bus.NewRedisSink(cfg.Bus.RedisAddr, cfg.Bus.RedisChannel))
	}

	llmClient := llm.NewClient(cfg.Providers.OpenAIAPIKey, cfg.Providers.AnthropicAPIKey, cfg.Providers.GoogleAPIKey)
	agentRunner := runner.New(db, eventBus, llmClient)
	replayer := replay.New(db, llmClient)

	server := httpapi.New(db, eventBus, agentRunner, replayer, cfg.HTTP.AuthToken, cfg.HTTP.AllowedOrigins)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: server,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("graceful shutdown failed", "error", err)
		}
	}()

	slog.Info("beaconobs serving", "addr", cfg.HTTP.Addr, "store", cfg.Store.Path)
	fmt.Printf("beaconobs listening on %s\n", cfg.HTTP.Addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
