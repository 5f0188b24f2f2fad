package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/mmynk/microsplit/internal/address"
	"github.com/mmynk/microsplit/internal/auth"
	"github.com/mmynk/microsplit/internal/config"
	"github.com/mmynk/microsplit/internal/ledger"
	"github.com/mmynk/microsplit/internal/metrics"
	"github.com/mmynk/microsplit/internal/middleware"
	"github.com/mmynk/microsplit/internal/service"
	"github.com/mmynk/microsplit/internal/storage"
	"github.com/mmynk/microsplit/internal/storage/bolt"
	"github.com/mmynk/microsplit/internal/storage/sqlite"
	"github.com/mmynk/microsplit/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("MICROSPLIT_CONFIG"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Setup()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logging.SetupWithLevel(logging.ParseLevel(cfg.LogLevel))

	if err := run(cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverBolt:
		return bolt.New(cfg.Path, nil)
	default:
		return sqlite.New(cfg.Path)
	}
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	slog.Info("Storage initialized", "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	deriver, err := address.NewDeriver(cfg.ProgramID)
	if err != nil {
		return err
	}
	machine := ledger.New(store,
		ledger.WithDeriver(deriver),
		ledger.WithRentRate(cfg.Rent.UnitsPerByte),
		ledger.WithObserver(m),
	)

	genesis, err := cfg.GenesisBalances()
	if err != nil {
		return err
	}
	applied, err := machine.ApplyGenesis(ctx, genesis)
	if err != nil {
		return fmt.Errorf("failed to apply genesis balances: %w", err)
	}
	if applied {
		slog.Info("Genesis balances applied", "accounts", len(genesis))
	}

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	common := []connect.Interceptor{middleware.MetricsInterceptor(m)}
	mutate := connect.WithInterceptors(append(common,
		middleware.RequireAuth(jwtManager),
		middleware.LoggingInterceptor(),
		limiter.Interceptor(),
	)...)
	read := connect.WithInterceptors(append(common,
		middleware.OptionalAuth(jwtManager),
		middleware.LoggingInterceptor(),
		limiter.Interceptor(),
	)...)

	mux := http.NewServeMux()
	splitPath, splitHandler := service.NewSplitServiceHandler(
		service.NewSplitService(machine),
		[]connect.HandlerOption{mutate},
		[]connect.HandlerOption{read},
	)
	mux.Handle(splitPath, splitHandler)

	authPath, authHandler := service.NewAuthServiceHandler(
		service.NewAuthService(auth.NewChallengeAuthenticator(cfg.Auth.ChallengeTTL), jwtManager, slog.Default()),
		read,
	)
	mux.Handle(authPath, authHandler)

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	apiServer := &http.Server{
		Addr:              cfg.Listen,
		Handler:           h2c.NewHandler(loggingMiddleware(corsMiddleware(mux)), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{
		Addr:              cfg.MetricsListen,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Connect server starting", "address", cfg.Listen, "vault", machine.Vault())
		return serve(apiServer)
	})
	if cfg.MetricsListen != "" {
		g.Go(func() error {
			slog.Info("Metrics server starting", "address", cfg.MetricsListen)
			return serve(metricsServer)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(apiServer.Shutdown(shutdownCtx), metricsServer.Shutdown(shutdownCtx))
	})
	return g.Wait()
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		slog.Debug("Request received",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"user_agent", r.UserAgent(),
		)

		next.ServeHTTP(w, r)

		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms, Microsplit-Error")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
