// Command codeexec runs the sandboxed untrusted-code execution service:
// exec-py, exec-any, and coverage over HTTP, backed by a privilege-dropped
// process runner, a background deadline reaper, and a Redis-backed
// test-bank cache.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ocx/backend/internal/config"
	"github.com/ocx/backend/internal/handlers"
	"github.com/ocx/backend/internal/metrics"
	"github.com/ocx/backend/internal/middleware"
	"github.com/ocx/backend/internal/reaper"
	"github.com/ocx/backend/internal/runner"
	"github.com/ocx/backend/internal/scratch"
	"github.com/ocx/backend/internal/testbank"
)

func main() {
	port := flag.Int("port", 0, "listen port (overrides config/env default 8000)")
	ip := flag.String("ip", "", "listen address (overrides config/env default 0.0.0.0)")
	flag.Parse()

	cfg := config.Get()
	if *port != 0 {
		cfg.Server.Port = strconv.Itoa(*port)
	}
	if *ip != "" {
		cfg.Server.IP = *ip
	}

	reg := prometheus.NewRegistry()
	metricsReg := metrics.New(reg)

	var provider testbank.RowProvider = testbank.MemoryProvider{}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			slog.Warn("redis connection failed, falling back to in-memory test bank", "addr", cfg.Redis.Addr, "error", err)
		} else {
			provider = testbank.NewRedisProvider(rdb, cfg.TestBank.KeyPrefix)
			slog.Info("test-bank cache backed by Redis", "addr", cfg.Redis.Addr)
		}
	} else {
		slog.Info("Redis disabled, test-bank cache running in-memory only")
	}

	bank := testbank.New(provider, time.Duration(cfg.Reaper.TestBankFreshnessSec)*time.Second, metricsReg)

	gc := reaper.New(time.Duration(cfg.Reaper.SweepIntervalSec)*time.Second, metricsReg)
	gc.RegisterEvictor(bank)

	run := runner.New(cfg.Sandbox.UnprivilegedUID, cfg.Sandbox.UnprivilegedGID, gc)

	deps := &handlers.Deps{
		Config:   cfg,
		Scratch:  scratch.New(cfg.Sandbox.ScratchRoot),
		Runner:   run,
		TestBank: bank,
		Metrics:  metricsReg,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	go gc.Run(shutdownCtx)

	router := mux.NewRouter()
	router.HandleFunc("/py_exec", handlers.ExecPy(deps)).Methods(http.MethodPost)
	router.HandleFunc("/any_exec", handlers.ExecAny(deps)).Methods(http.MethodPost)
	router.HandleFunc("/py_coverage", handlers.Coverage(deps)).Methods(http.MethodPost)
	router.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	backpressure := middleware.NewBackpressure(runtime.NumCPU() * 4)
	router.Use(middleware.LoggingMiddleware)
	router.Use(backpressure.Middleware)

	server := &http.Server{
		Addr:         cfg.Server.IP + ":" + cfg.GetPort(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("received shutdown signal, shutting down gracefully")
		shutdownCancel()

		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("codeexec starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server failed to start: %v", err)
	}
	slog.Info("server stopped")
}
