package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"walkmate-bot/internal/adapters/gateway"
	"walkmate-bot/internal/adapters/handler"
	"walkmate-bot/internal/adapters/repository"
	"walkmate-bot/internal/adapters/websocket"
	"walkmate-bot/internal/config"
	"walkmate-bot/internal/core/ports"
	"walkmate-bot/internal/core/services"
)

const shutdownTimeout = 15 * time.Second

var (
	servePort      int
	serveNoMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server, operator API and retention watchdog",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default APP_PORT)")
	serveCmd.Flags().BoolVar(&serveNoMigrate, "no-migrate", false, "skip schema migrations on startup")
}

// stores groups the state and dedup backends chosen by STORE_BACKEND
type stores struct {
	state  ports.StateRepository
	dedup  ports.DedupRepository
	checks map[string]handler.Pinger
	// MariaDB rows never expire on their own
	purgeExpired bool
	close        func()
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.RequireWebhook(); err != nil {
		return err
	}
	if servePort > 0 {
		cfg.App.Port = servePort
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Operators tail the same log stream over /ws/logs
	hub := websocket.NewLogHub(cfg.App.AdminToken)
	go hub.Run(ctx)
	setupLogger(&cfg.App, io.MultiWriter(os.Stdout, hub))

	slog.Info("Starting walkmate-bot",
		"port", cfg.App.Port,
		"store_backend", cfg.Store.Backend,
		"graph_version", cfg.WhatsApp.APIVersion,
	)

	// ==================================================================
	// Infrastructure
	// ==================================================================
	db, err := connectMariaDB(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	if !serveNoMigrate {
		if err := repository.Migrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		slog.Info("Schema migrations applied")
	}

	mariadbRepo := repository.NewMariaDBRepository(db)

	st, err := openStores(ctx, cfg, mariadbRepo)
	if err != nil {
		return err
	}
	defer st.close()

	// ==================================================================
	// Services
	// ==================================================================
	waClient := gateway.NewWhatsAppClient(gateway.ClientConfig{
		BaseURL:     cfg.WhatsApp.BaseURL,
		APIVersion:  cfg.WhatsApp.APIVersion,
		PhoneID:     cfg.WhatsApp.PhoneID,
		AccessToken: cfg.WhatsApp.AccessToken,
		Timeout:     cfg.WhatsApp.Timeout,
	})

	messenger := services.NewMessenger(waClient)
	tracker := services.NewStateTracker(st.state, cfg.Retention.StateTTL)
	engine := services.NewConversationEngine(mariadbRepo, tracker, messenger)
	dispatcher := services.NewDispatcher(mariadbRepo, st.dedup, engine, messenger, cfg.Retention.DedupRetention)

	watchdog := services.NewWatchdog(mariadbRepo, services.WatchdogConfig{
		Interval:       cfg.Retention.WatchdogInterval,
		DiskPath:       cfg.Retention.DiskPath,
		DiskThreshold:  cfg.Retention.DiskThreshold,
		StateTTL:       cfg.Retention.StateTTL,
		DedupRetention: cfg.Retention.DedupRetention,
		PurgeStates:    st.purgeExpired,
		PurgeDedup:     st.purgeExpired,
	})
	go watchdog.Run(ctx)

	// ==================================================================
	// HTTP
	// ==================================================================
	webhookHandler := handler.NewWebhookHandler(dispatcher, cfg.WhatsApp.AppSecret, cfg.WhatsApp.VerifyToken)
	campaignHandler := handler.NewCampaignHandler(waClient, cfg.App.CampaignAPIKey, cfg.WhatsApp.TemplateLanguage)
	catalogHandler := handler.NewCatalogHandler(mariadbRepo, cfg.App.AdminToken)

	if cfg.App.AdminToken == "" {
		slog.Warn("ADMIN_TOKEN not set, catalog API and log stream are disabled")
	}
	if cfg.App.CampaignAPIKey == "" {
		slog.Warn("API_KEY not set, send triggers are disabled")
	}

	mux := http.NewServeMux()
	routes := []struct {
		pattern string
		handler http.HandlerFunc
	}{
		{"GET /webhook", webhookHandler.HandleVerify},
		{"POST /webhook", webhookHandler.HandleEvent},
		{"GET /send-whatsapp", campaignHandler.SendText},
		{"GET /send-template", campaignHandler.SendTemplate},
		{"GET /send-shipment", campaignHandler.SendShipment},
		{"GET /api/products", catalogHandler.RequireAdmin(catalogHandler.List)},
		{"POST /api/products", catalogHandler.RequireAdmin(catalogHandler.Create)},
		{"DELETE /api/products/{id}", catalogHandler.RequireAdmin(catalogHandler.Delete)},
		{"GET /api/products/export", catalogHandler.RequireAdmin(catalogHandler.Export)},
		{"GET /ws/logs", hub.ServeWS},
	}

	patterns := make([]string, 0, len(routes)+2)
	for _, r := range routes {
		mux.HandleFunc(r.pattern, r.handler)
		patterns = append(patterns, r.pattern)
	}
	patterns = append(patterns, "GET /health", "GET /api/system/metrics")

	systemHandler := handler.NewSystemHandler(handler.SystemInfo{
		GraphVersion:      cfg.WhatsApp.APIVersion,
		StoreBackend:      cfg.Store.Backend,
		Routes:            patterns,
		WatchdogThreshold: cfg.Retention.DiskThreshold,
		DiskPath:          cfg.Retention.DiskPath,
	}, st.checks)
	mux.HandleFunc("GET /health", systemHandler.Health)
	mux.HandleFunc("GET /api/system/metrics", catalogHandler.RequireAdmin(systemHandler.GetSystemMetrics))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		// A turn may wait on several Graph API calls
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}

	// Audit rows are written in the background
	dispatcher.Wait()
	slog.Info("walkmate-bot stopped")
	return nil
}

// openStores wires the state and dedup ports to the configured backend
func openStores(ctx context.Context, cfg *config.Config, mariadbRepo *repository.MariaDBRepository) (*stores, error) {
	checks := map[string]handler.Pinger{"mariadb": mariadbRepo}

	switch cfg.Store.Backend {
	case config.BackendRedis:
		rdb, err := connectRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		redisRepo := repository.NewRedisRepository(rdb, cfg.Retention.StateTTL)
		checks["redis"] = redisRepo
		return &stores{
			state:  redisRepo,
			dedup:  redisRepo,
			checks: checks,
			close:  func() { rdb.Close() },
		}, nil

	case config.BackendMariaDB:
		return &stores{
			state:        mariadbRepo,
			dedup:        mariadbRepo,
			checks:       checks,
			purgeExpired: true,
			close:        func() {},
		}, nil
	}

	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
