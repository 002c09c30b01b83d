package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/triage-ai/tcp/internal/api"
	"github.com/triage-ai/tcp/internal/auth"
	"github.com/triage-ai/tcp/internal/classifier"
	"github.com/triage-ai/tcp/internal/classifier/analyzers"
	"github.com/triage-ai/tcp/internal/metrics"
	"github.com/triage-ai/tcp/internal/registry"
	"github.com/triage-ai/tcp/internal/storage"
)

func main() {
	// Logger
	logger := mustBuildLogger(envOrDefault("TCP_LOG_LEVEL", "info"))
	defer logger.Sync() //nolint:errcheck // best-effort flush

	// Config from env
	port := envOrDefault("TCP_PORT", "8092")
	cacheTTL := envOrDefaultInt("TCP_CACHE_TTL_S", 60)
	authCacheTTL := envOrDefaultInt("TCP_AUTH_CACHE_TTL_S", 30)
	analyzeTimeoutMs := envOrDefaultInt("TCP_ANALYZE_TIMEOUT_MS", 25)
	snapshotPath := os.Getenv("TCP_SNAPSHOT_PATH")
	postgresDSN := os.Getenv("POSTGRES_DSN")
	redisAddr := os.Getenv("REDIS_ADDR")
	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")

	logger.Info("starting tcp registry server",
		zap.String("port", port),
		zap.Int("cache_ttl_s", cacheTTL),
	)

	// Store — Postgres, Redis, or in-memory with optional snapshot
	var store registry.Store
	switch {
	case postgresDSN != "":
		db, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(context.Background()); err != nil {
			logger.Fatal("failed to ping postgres", zap.Error(err))
		}
		store = registry.NewPostgresStore(db)
		logger.Info("postgres store connected")
	case redisAddr != "":
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			logger.Fatal("failed to ping redis", zap.String("addr", redisAddr), zap.Error(err))
		}
		store = registry.NewRedisStore(client)
		logger.Info("redis store connected", zap.String("addr", redisAddr))
	default:
		store = registry.NewMemoryStore()
		logger.Info("no POSTGRES_DSN or REDIS_ADDR set, using in-memory store")
	}
	defer store.Close() //nolint:errcheck

	reg := registry.New(registry.Config{
		Store:    store,
		Logger:   logger,
		CacheTTL: time.Duration(cacheTTL) * time.Second,
	})

	if snapshotPath != "" {
		n, err := reg.LoadSnapshot(context.Background(), snapshotPath)
		if err != nil {
			logger.Fatal("failed to load snapshot", zap.String("path", snapshotPath), zap.Error(err))
		}
		logger.Info("snapshot loaded", zap.String("path", snapshotPath), zap.Int("entries", n))
	}

	// Classifier for descriptor-less ingests: rule table plus the
	// command-line analyzers
	ruleClassifier, err := classifier.NewRuleClassifier()
	if err != nil {
		logger.Fatal("failed to build rule classifier", zap.Error(err))
	}
	pipeline := classifier.NewPipeline(ruleClassifier, []classifier.Analyzer{
		analyzers.NewRemoteExecAnalyzer(),
		analyzers.NewDeviceWriteAnalyzer(),
		analyzers.NewPrivilegeAnalyzer(),
		analyzers.NewContainerAnalyzer(),
	}, time.Duration(analyzeTimeoutMs)*time.Millisecond, logger)

	// Auth — Postgres if DSN provided, otherwise static (any tcp_ key)
	var authenticator auth.Authenticator
	if postgresDSN != "" {
		authDB, err := sql.Open("pgx", postgresDSN)
		if err != nil {
			logger.Fatal("failed to open postgres for auth", zap.Error(err))
		}
		defer func() { _ = authDB.Close() }()
		authDB.SetMaxOpenConns(10)
		authDB.SetMaxIdleConns(5)
		authDB.SetConnMaxLifetime(5 * time.Minute)
		authenticator = auth.NewPostgresAuthenticator(auth.PostgresAuthConfig{
			DB:       authDB,
			CacheTTL: time.Duration(authCacheTTL) * time.Second,
			Logger:   logger,
		})
		logger.Info("postgres authenticator connected")
	} else {
		authenticator = auth.NewStaticAuthenticator()
		logger.Info("using static authenticator (no POSTGRES_DSN)")
	}

	// Audit stream — ClickHouse or LogWriter fallback
	var writer storage.EventWriter
	if clickhouseDSN != "" {
		chWriter, err := storage.NewClickHouseWriter(clickhouseDSN, logger)
		if err != nil {
			logger.Warn("clickhouse connection failed, falling back to log writer",
				zap.Error(err),
			)
			writer = storage.NewLogWriter(logger)
		} else {
			writer = chWriter
			logger.Info("clickhouse writer connected")
		}
	} else {
		writer = storage.NewLogWriter(logger)
		logger.Info("no CLICKHOUSE_DSN set, using log writer")
	}
	defer writer.Close()

	// Metrics
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewRegistryCollector(reg, logger),
	)

	// HTTP surface
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(&api.Dependencies{
		Registry:   reg,
		Classifier: pipeline,
		Auth:       authenticator,
		Writer:     writer,
		Logger:     logger,
	}))
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("http shutdown failed", zap.Error(err))
		}

		if snapshotPath != "" {
			if err := reg.SaveSnapshot(ctx, snapshotPath); err != nil {
				logger.Error("failed to save snapshot", zap.String("path", snapshotPath), zap.Error(err))
			} else {
				logger.Info("snapshot saved", zap.String("path", snapshotPath))
			}
		}
	}()

	logger.Info("tcp registry server listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("http server failed", zap.Error(err))
	}
	// Wait for the signal handler to finish the snapshot flush.
	<-shutdownDone
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envOrDefaultInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}
