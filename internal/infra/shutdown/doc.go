// Package shutdown provides graceful shutdown for the ddbs control
// node and backend node.
//
// This package handles process termination signals:
//
//   - Signal handling (SIGINT, SIGTERM)
//   - A shutdown timeout applied to the context passed to callbacks
//   - Cleanup callback registration, run in reverse registration order
//   - Shutdown coordination
//
// Usage:
//
//	h := shutdown.NewHandler(10 * time.Second)
//	h.OnShutdown(func(ctx context.Context) error { return backend.Close() })
//	h.Wait() // blocks until SIGINT/SIGTERM, then runs hooks
package shutdown
