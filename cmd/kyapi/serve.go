package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/yourorg/kysafety/internal/auth"
	"github.com/yourorg/kysafety/internal/broadcast"
	"github.com/yourorg/kysafety/internal/db/sqlite"
	"github.com/yourorg/kysafety/internal/envconf"
	"github.com/yourorg/kysafety/internal/errs"
	"github.com/yourorg/kysafety/internal/metrics"
	"github.com/yourorg/kysafety/internal/pipeline"
	"github.com/yourorg/kysafety/internal/respond"
	"github.com/yourorg/kysafety/internal/risk"
	"github.com/yourorg/kysafety/internal/webhook"
)

const shutdownTimeout = 15 * time.Second

func serveCommand(g *globals) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), g, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", envconf.Getenv("KY_LISTEN_ADDR", ":8080"), "listen address")
	return cmd
}

func serve(ctx context.Context, g *globals, addr string) error {
	logger := g.logger

	db, err := openDB(ctx, g)
	if err != nil {
		logger.Error("database open failed", slog.String("path", g.dbPath), slog.Any("error", errs.Loggable(err)))
		return err
	}
	defer func() { _ = sqlite.Close(db) }()

	m, err := metrics.New()
	if err != nil {
		return err
	}

	authCfg := auth.LoadConfig()
	authn := auth.NewAuthenticator(sqlite.NewSessionRepository(db), authCfg)

	riskCfg := risk.LoadConfig()
	var analyzer risk.Analyzer
	if a, err := risk.NewOpenAIAnalyzer(riskCfg, &http.Client{Timeout: riskCfg.Timeout}); err != nil {
		logger.Warn("risk analyzer disabled", slog.String("reason", err.Error()))
	} else {
		analyzer = a
	}

	broadcastCfg := broadcast.LoadConfig()
	var broadcaster pipeline.Broadcaster
	if broadcastCfg.AccessToken == "" {
		logger.Warn("broadcast gateway disabled: LINE_CHANNEL_ACCESS_TOKEN is not set")
	} else {
		broadcaster = broadcast.NewDispatcher(broadcastCfg, &http.Client{Timeout: broadcastCfg.Timeout}, logger)
	}
	if broadcastCfg.AuthDisabled() {
		logger.Warn("broadcast endpoint is unauthenticated: BROADCAST_SHARED_SECRET is not set")
	}

	webhookCfg := webhook.LoadConfig()
	if webhookCfg.ChannelSecret == "" {
		logger.Warn("webhook will reject signed deliveries: LINE_CHANNEL_SECRET is not set")
	}

	trusted, err := respond.ParseTrustedProxies(envconf.Getenv("KY_TRUSTED_PROXIES", ""))
	if err != nil {
		return err
	}

	coord := pipeline.NewCoordinator(pipeline.LoadConfig(), sqlite.NewApprovalRepository(db), broadcaster, analyzer, m, logger)
	router := pipeline.NewRouter(pipeline.RouterDeps{
		Coordinator:    coord,
		Authenticator:  authn,
		SessionLimiter: auth.NewRateLimiter(authCfg.RateLimitPerMinute),
		RiskLimiter:    auth.NewRateLimiter(riskCfg.RateLimitPerMinute),
		Webhook:        webhook.NewHandler(webhookCfg, m, logger),
		Broadcast:      broadcastCfg,
		TrustedProxies: trusted,
		Metrics:        m,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("kyapi listening", slog.String("addr", addr), slog.String("db", g.dbPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server stopped", slog.Any("error", errs.Loggable(err)))
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", errs.Loggable(err)))
		return err
	}
	return nil
}
