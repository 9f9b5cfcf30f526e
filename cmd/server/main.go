package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auth-portal/internal/auth"
	"auth-portal/internal/cache"
	"auth-portal/internal/config"
	"auth-portal/internal/flow"
	"auth-portal/internal/gateway"
	"auth-portal/internal/handlers"
	"auth-portal/internal/metrics"
	"auth-portal/internal/middleware"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// jwksTTL is how long a fetched key set is trusted before refetching.
const jwksTTL = time.Hour

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting auth portal")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	tokenClient := gateway.NewTokenClient(cfg.AuthServerURL, cfg.DashboardClientID, cfg.CallbackURL(), httpClient)
	api := gateway.NewClient(cfg.AuthServerURL, httpClient, tokenClient, gateway.DefaultRefreshPolicy, m, logger)

	jwksURL, issuer := cfg.JWKSURL, cfg.IDTokenIssuer
	if cfg.OIDCDiscovery {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
		doc, err := api.Discover(ctx)
		cancel()
		if err != nil {
			logger.Fatal("Failed to load OpenID configuration", zap.Error(err))
		}
		tokenClient.SetTokenURL(doc.TokenEndpoint)
		if jwksURL == "" {
			jwksURL = doc.JwksURI
		}
		if issuer == "" {
			issuer = doc.Issuer
		}
		logger.Info("Loaded OpenID configuration", zap.String("issuer", doc.Issuer))
	}

	// Codes and flow tokens must stay claimed for at least as long as they
	// could be presented.
	retention := max(cfg.FlowTokenTTL, 10*time.Minute)

	var (
		tokens  flow.Tokens
		guard   flow.Guard
		limiter middleware.RateLimiter = middleware.NewLocalLimiter()
		health                         = handlers.NewHealthHandler(nil, logger)
	)
	switch cfg.FlowStore {
	case config.FlowStoreRedis:
		cacheClient, err := cache.NewCache(cfg.RedisURL, logger)
		if err != nil {
			logger.Fatal("Failed to initialize cache", zap.Error(err))
		}
		defer cacheClient.Close()

		tokens = flow.NewRedisTokens(cacheClient, cfg.FlowTokenTTL)
		guard = flow.NewRedisGuard(cacheClient, retention)
		limiter = cacheClient
		health = handlers.NewHealthHandler(cacheClient, logger)
	default:
		sealer, err := flow.NewSealer(cfg.FlowTokenKey, cfg.FlowTokenTTL)
		if err != nil {
			logger.Fatal("Failed to initialize flow token sealer", zap.Error(err))
		}
		tokens = sealer
		guard = flow.NewMemoryGuard(retention)
	}

	orchestrator := flow.NewOrchestrator(flow.Config{
		DashboardClientID: cfg.DashboardClientID,
		DashboardScope:    cfg.DashboardScope,
		CallbackURL:       cfg.CallbackURL(),
	}, api, tokenClient, tokens, guard, m, logger)

	if jwksURL != "" {
		keys := auth.NewKeySet(jwksURL, httpClient, jwksTTL)
		orchestrator.SetIDTokenVerifier(auth.NewIDTokenValidator(keys, issuer))
		logger.Info("id_token verification enabled", zap.String("jwks_url", jwksURL))
	}

	router := SetupRouter(Routes{
		Pages:    handlers.NewPageHandler(orchestrator, logger),
		Sessions: handlers.NewSessionHandler(logger),
		Health:   health,
		Users:    api,
		Limiter:  limiter,
		Metrics:  m,
		Registry: registry,
	}, cfg, logger)

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.ServerPort), zap.String("flow_store", cfg.FlowStore))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
