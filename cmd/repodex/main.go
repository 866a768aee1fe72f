// Package main is the entry point for the Repodex catalog server.
// It loads configuration, connects to services, sets up routing, and starts
// the HTTP server with graceful shutdown support.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"repodex/internal/ai"
	"repodex/internal/cache"
	"repodex/internal/catalog"
	"repodex/internal/config"
	"repodex/internal/database"
	"repodex/internal/enrich"
	"repodex/internal/handlers"
	"repodex/internal/router"
	"repodex/internal/session"
	"repodex/internal/store"
)

func main() {
	// Structured logger — text output; level debug so enrichment runs are
	// traceable by run_id.
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// Load configuration from environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("configuration loaded",
		"env", cfg.Env,
		"addr", cfg.Addr(),
	)

	// Connect to PostgreSQL.
	db, err := database.Connect(cfg.DSN())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run pending migrations.
	if err := database.Migrate(db); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	// Seed the default admin account and settings rows (no-op once data
	// exists).
	if cfg.IsDev() {
		if err := database.Seed(db); err != nil {
			slog.Error("failed to seed database", "error", err)
			os.Exit(1)
		}
	}

	// Connect to Valkey (Redis-compatible cache + session store).
	valkeyClient, err := cache.ConnectValkey(cfg.ValkeyHost, cfg.ValkeyPort, cfg.ValkeyPassword)
	if err != nil {
		slog.Error("failed to connect to valkey", "error", err)
		os.Exit(1)
	}
	defer valkeyClient.Close()

	// Session store backed by Valkey. In non-development environments,
	// session cookies are marked Secure (HTTPS-only).
	secureCookies := !cfg.IsDev()
	sessionStore := session.NewStore(valkeyClient, secureCookies)

	// Data stores.
	userStore := store.NewUserStore(db)
	categoryStore := store.NewCategoryStore(db)
	repositoryStore := store.NewRepositoryStore(db)
	settingStore := store.NewSettingStore(db)
	enrichLogStore := store.NewEnrichLogStore(db)

	// Public tree cache in Valkey; invalidated on every mutation.
	treeCache := cache.NewTreeCache(valkeyClient, cache.DefaultTreeTTL)

	// AI provider registry with all configured providers.
	aiRegistry := ai.NewRegistry(cfg.AIProvider, map[string]ai.ProviderConfig{
		"openai":  {APIKey: cfg.OpenAIKey, Model: cfg.OpenAIModel, BaseURL: cfg.OpenAIBaseURL},
		"gemini":  {APIKey: cfg.GeminiKey, Model: cfg.GeminiModel, BaseURL: cfg.GeminiBaseURL},
		"claude":  {APIKey: cfg.ClaudeKey, Model: cfg.ClaudeModel, BaseURL: cfg.ClaudeBaseURL},
		"mistral": {APIKey: cfg.MistralKey, Model: cfg.MistralModel, BaseURL: cfg.MistralBaseURL},
	})

	slog.Info("ai providers initialized",
		"active", aiRegistry.ActiveName(),
		"available", aiRegistry.Available(),
	)

	// Enrichment pipeline: reader + GitHub clients, one background
	// worker, and the janitor that recovers stranded processing flags.
	enricher := enrich.NewEnricher(
		repositoryStore, settingStore, enrichLogStore, aiRegistry,
		enrich.NewReaderClient(cfg.ReaderBaseURL, cfg.ReaderAPIKey),
		enrich.NewGitHubClient(cfg.GitHubAPIBase, cfg.GitHubToken),
		64,
	)

	janitor, err := enrich.NewJanitor(repositoryStore)
	if err != nil {
		slog.Error("failed to create janitor", "error", err)
		os.Exit(1)
	}
	if err := janitor.Start(); err != nil {
		slog.Error("failed to start janitor", "error", err)
		os.Exit(1)
	}

	// Read model over the stores.
	cat := catalog.New(categoryStore, repositoryStore, settingStore, treeCache, cfg.CardBaseURL)

	// Handler groups.
	adminHandlers := handlers.NewAdmin(cat, categoryStore, repositoryStore, settingStore, enrichLogStore, enricher)
	authHandlers := handlers.NewAuth(sessionStore, userStore)
	publicHandlers := handlers.NewPublic(cat, cfg.SiteURL)

	loginLimiter := router.NewLoginLimiter()
	defer loginLimiter.Stop()

	r := router.New(sessionStore, adminHandlers, authHandlers, publicHandlers, router.Options{
		SecureCookies: secureCookies,
		LoginLimiter:  loginLimiter,
	})

	// WriteTimeout must accommodate the synchronous summary preview,
	// which waits on an LLM response (typically 10-30s, up to 60s).
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start the server in a goroutine so we can listen for shutdown signals.
	go func() {
		slog.Info("server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown: wait for SIGINT or SIGTERM, then drain.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig)

	// Give active requests up to 30 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	// Stop background work after the HTTP surface is closed: no new jobs
	// can arrive, so draining is bounded.
	if err := janitor.Stop(); err != nil {
		slog.Warn("janitor shutdown failed", "error", err)
	}
	enricher.Close()

	slog.Info("server stopped gracefully")
}
