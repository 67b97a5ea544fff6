package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"vpn-analytics/internal/api"
	"vpn-analytics/internal/config"
	"vpn-analytics/internal/logger"
	"vpn-analytics/internal/metrics"
	"vpn-analytics/internal/stats"
	"vpn-analytics/internal/storage"
	"vpn-analytics/internal/version"
)

const (
	// redisTimeout is the timeout of the initial Redis ping.
	redisTimeout = 5 * time.Second

	// shutdownTimeout is the time given to in-flight requests on shutdown.
	shutdownTimeout = 10 * time.Second

	// readHeaderTimeout is the timeout for reading request headers.
	readHeaderTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load(os.Args[0], os.Args[1:], nil)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	} else if err != nil {
		log.Fatal(err)
	}

	// Print startup banner and configuration
	fmt.Printf("\n=== VPN Analytics Configuration ===\n")
	fmt.Printf("🌐 HTTP API: http://localhost:%d\n", cfg.Port)
	fmt.Printf("📝 Log File: %s\n", cfg.LogFile)
	fmt.Printf("🚦 Track Rate Limit: %d/min per IP\n", cfg.TrackRateLimit)
	fmt.Printf("📦 Max Body Size: %s\n", cfg.MaxBodySize.HR())
	fmt.Printf("📊 Redis Rollups Enabled: %t\n", cfg.RedisEnabled())
	if cfg.RedisEnabled() {
		fmt.Printf("🧠 Redis Address: %s (prefix %q)\n", cfg.RedisAddr, cfg.RedisKeyPrefix)
	}
	fmt.Printf("===================================\n\n")

	l, closeLog, err := logger.New(&logger.Config{
		File:         cfg.LogFile,
		Format:       cfg.LogFormat,
		Verbosity:    uint8(cfg.Verbosity),
		AddTimestamp: cfg.LogTimestamp,
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("✅ Logger initialized\n")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	err = metrics.SetUpGauge(reg, version.Version(), version.Revision())
	if err != nil {
		log.Fatal(err)
	}

	mtrc, err := metrics.NewAnalytics(reg)
	if err != nil {
		log.Fatal(err)
	}

	var recorder storage.Recorder = storage.EmptyRecorder{}
	var client *redis.Client
	if cfg.RedisEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
		client, err = storage.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		cancel()
		if err != nil {
			log.Fatal(err)
		}

		recorder = storage.NewRedis(&storage.RedisConfig{
			Client:    client,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		fmt.Printf("✅ Redis connection established\n")
	} else {
		fmt.Printf("ℹ️ Redis rollups disabled\n")
	}

	h := api.NewHandler(&api.Config{
		Logger:         l.With(slogutil.KeyPrefix, "api"),
		Store:          stats.NewStore(nil),
		Recorder:       recorder,
		Metrics:        mtrc,
		Gatherer:       reg,
		MaxBodySize:    int64(cfg.MaxBodySize.Bytes()),
		TrackRateLimit: cfg.TrackRateLimit,
	})

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           h.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		ErrorLog:          slog.NewLogLogger(l.Handler(), slog.LevelError),
	}

	fmt.Printf("\n🚀 Starting analytics server...\n")
	fmt.Printf("📡 Listening on http://localhost:%d\n", cfg.Port)
	fmt.Printf("\n📊 API endpoints:\n")
	fmt.Printf("   Track:     POST http://localhost:%d%s\n", cfg.Port, api.PathTrack)
	fmt.Printf("   Stats:     GET  http://localhost:%d%s\n", cfg.Port, api.PathStats)
	fmt.Printf("   Dashboard: GET  http://localhost:%d%s\n", cfg.Port, api.PathDashboard)
	fmt.Printf("   Health:    GET  http://localhost:%d%s\n", cfg.Port, api.PathHealth)
	fmt.Printf("   History:   GET  http://localhost:%d%s\n", cfg.Port, api.PathHistory)
	fmt.Printf("   Metrics:   GET  http://localhost:%d%s\n", cfg.Port, api.PathMetrics)
	fmt.Printf("\n✨ Analytics server is ready!\n")

	// Set up graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http server", slogutil.KeyError, err)
			sigChan <- syscall.SIGTERM
		}
	}()

	sig := <-sigChan
	fmt.Println("\n🛑 Shutting down server...")
	l.Info("shutting down", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	errs := []error{httpServer.Shutdown(ctx)}
	cancel()

	if client != nil {
		errs = append(errs, client.Close())
	}
	errs = append(errs, closeLog())

	if err = errors.Join(errs...); err != nil {
		log.Printf("shutdown: %v\n", err)
		os.Exit(1)
	}
}
