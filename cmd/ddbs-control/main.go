// Package main provides the entry point for ddbs-control.
//
// ddbs-control is the control node of a ddbs cluster: it accepts
// backend registrations, assigns the two shards, plans and routes SQL
// statements across them, and drives the be_read/popular_rank derived
// table builds (§4, §6.1).
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ddbsgo/ddbs/internal/cluster"
	"github.com/ddbsgo/ddbs/internal/config"
	"github.com/ddbsgo/ddbs/internal/exec"
	"github.com/ddbsgo/ddbs/internal/infra/buildinfo"
	"github.com/ddbsgo/ddbs/internal/infra/shutdown"
	"github.com/ddbsgo/ddbs/internal/rpcwire"
	"github.com/ddbsgo/ddbs/internal/server"
	"github.com/ddbsgo/ddbs/internal/telemetry/logger"
	"github.com/ddbsgo/ddbs/internal/telemetry/metric"
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
		fmt.Println("ddbs-control " + buildinfo.String())
		return nil
	}

	cfg, err := config.LoadControl(*configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stdout})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	log.Info("starting ddbs-control", "version", buildinfo.Version, "commit", buildinfo.Commit, "config", *configFile)

	cfgWatcher, err := watchConfigForLogLevel(*configFile, log)
	if err != nil {
		return fmt.Errorf("watch config file: %w", err)
	}

	metrics := metric.NewRegistry()

	mgr := cluster.NewManager(backendDialer())
	for _, uri := range cfg.Backend.Uris {
		id := mgr.Register(uri)
		log.Info("bootstrap backend registered", "server_id", id, "uri", uri)
	}

	engine := exec.NewEngine(mgr, metrics)
	control := server.NewControl(mgr, engine, metrics)

	rpcServer := rpcwire.NewControlServer(control, slog.Default())

	metricsServer := &http.Server{Addr: cfg.Metric.Addr, Handler: metrics.Handler()}

	shutdownHandler := shutdown.NewHandler(30 * time.Second)

	if cfgWatcher != nil {
		shutdownHandler.OnShutdown(func(ctx context.Context) error {
			log.Info("stopping config watcher")
			return cfgWatcher.Stop()
		})
	}
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down metrics server")
		return metricsServer.Shutdown(ctx)
	})
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down control RPC server")
		return rpcServer.Shutdown(ctx)
	})

	go func() {
		log.Info("metrics server listening", "addr", cfg.Metric.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server error", "error", err)
		}
	}()

	go func() {
		log.Info("control RPC server listening", "addr", cfg.Listen.Addr)
		if err := rpcServer.ListenAndServe(context.Background(), cfg.Listen.Addr); err != nil {
			log.Error("control RPC server error", "error", err)
		}
	}()

	log.Info("ddbs-control started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("ddbs-control stopped gracefully")
	return nil
}

// backendDialer connects cluster.Manager's Dialer to the rpcwire
// backend RPC client, the only concrete cluster.Client implementation
// outside of tests.
func backendDialer() cluster.Dialer {
	return func(ctx context.Context, uri string) (cluster.Client, error) {
		_, _, err := net.SplitHostPort(uri)
		if err != nil {
			return nil, fmt.Errorf("invalid backend uri %q: %w", uri, err)
		}
		return rpcwire.DialBackend(ctx, uri)
	}
}

// watchConfigForLogLevel reloads log.level from configFile on every
// edit and applies it to the process-wide logger, so an operator can
// turn on debug logging without restarting a long-running control
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
		cfg, err := config.LoadControl(configFile)
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
