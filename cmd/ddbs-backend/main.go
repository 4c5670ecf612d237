// Package main provides the entry point for ddbs-backend.
//
// ddbs-backend runs one shard's MySQL-backed executor behind the
// backend RPC surface (§6.2): Init, BulkLoad, and the ExecSql family
// that the control node drives once it has registered this backend
// and included it in a cluster init (§4.1, §4.7).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ddbsgo/ddbs/internal/backend"
	"github.com/ddbsgo/ddbs/internal/config"
	"github.com/ddbsgo/ddbs/internal/infra/buildinfo"
	"github.com/ddbsgo/ddbs/internal/infra/shutdown"
	"github.com/ddbsgo/ddbs/internal/rpcwire"
	"github.com/ddbsgo/ddbs/internal/telemetry/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configFile  = flag.String("config", "", "Path to configuration file")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println("ddbs-backend " + buildinfo.String())
		return nil
	}

	cfg, err := config.LoadBackend(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stdout})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("starting ddbs-backend", "version", buildinfo.Version, "commit", buildinfo.Commit, "config", *configFile)

	cfgWatcher, err := watchConfigForLogLevel(*configFile, log)
	if err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}

	executor, err := backend.Open(cfg)
	if err != nil {
		return fmt.Errorf("open backend executor: %w", err)
	}

	rpcServer := rpcwire.NewBackendServer(executor, slog.Default())

	// Prometheus scraping is served by the control node's registry
	// (§4.8); the backend only exposes an HTTP liveness probe, on the
	// port one above its RPC listener.
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	healthServer := &http.Server{Addr: healthAddr(cfg.Listen.Addr), Handler: healthMux}

	shutdownHandler := shutdown.NewHandler(30 * time.Second)

	if cfgWatcher != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("stopping config watcher")
			return cfgWatcher.Stop()
		})
	}
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down health server")
		return healthServer.Shutdown(ctx)
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down backend RPC server")
		return rpcServer.Shutdown(ctx)
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("closing mysql connection pool")
		return executor.Close()
	})

	go func() {
		log.Info("health server listening", "addr", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health server error", "error", err)
		}
	}()

	go func() {
		log.Info("backend RPC server listening", "addr", cfg.Listen.Addr)
		if err := rpcServer.ListenAndServe(context.Background(), cfg.Listen.Addr); err != nil {
			log.Error("backend RPC server error", "error", err)
		}
	}()

	log.Info("ddbs-backend started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("ddbs-backend stopped gracefully")
	return nil
}

// healthAddr derives a liveness-probe port one above the RPC listener
// so both can bind on the same host without a second config field.
func healthAddr(rpcAddr string) string {
	host, portStr, err := net.SplitHostPort(rpcAddr)
	if err != nil {
		return ":8081"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return ":8081"
	}
	return net.JoinHostPort(host, strconv.Itoa(port+1))
}

// watchConfigForLogLevel reloads log.level from configFile on every
// edit and applies it to the process-wide logger, so an operator can
// turn on debug logging without restarting a long-running backend
// node (§4.8). Returns a nil watcher (no error) when configFile is
// empty, since there is nothing to watch.
func watchConfigForLogLevel(configFile string, log logger.Logger) (*config.Watcher, error) {
	if configFile == "" {
		return nil, nil
	}

	w, err := config.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Watch(configFile); err != nil {
		w.Stop()
		return nil, err
	}
	w.OnChange(func(path string) {
		cfg, err := config.LoadBackend(configFile)
		if err != nil {
			log.Warn("config reload failed", "path", path, "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		log.Info("config reloaded", "path", path, "log_level", cfg.Log.Level)
	})
	w.StartAsync()
	return w, nil
}
