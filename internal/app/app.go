// Package app wires the roster-sync components into a runnable
// application and manages its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/memberhub/roster-sync/internal/config"
	"github.com/memberhub/roster-sync/internal/status"
)

// RosterApp runs the scheduler and the ops HTTP server.
type RosterApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server
	logger     *slog.Logger

	ctx        context.Context
	cancelFunc context.CancelFunc
	cleanup    func()
}

// Start starts the scheduler and blocks serving HTTP until Stop.
func (app *RosterApp) Start() error {
	if err := app.components.Scheduler.Start(app.ctx, app.config.Schedule.GetCron()); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	ln, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	return app.Serve(ln)
}

// Serve serves the ops API on ln until Stop.
func (app *RosterApp) Serve(ln net.Listener) error {
	app.logger.Info("Server listening", "address", ln.Addr().String())
	if err := app.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}
	return nil
}

// RunOnce executes a single synchronous reconciliation.
func (app *RosterApp) RunOnce(ctx context.Context) (*status.RunStatus, error) {
	return app.components.Scheduler.RunNow(ctx, status.TriggerManual)
}

// Stop stops the scheduler, waiting for an in-flight run to abort, then
// shuts the HTTP server down.
func (app *RosterApp) Stop(timeout time.Duration) error {
	app.logger.Info("Shutting down server")

	app.components.Scheduler.Stop()
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := app.httpServer.Shutdown(shutdownCtx)
	app.Close()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	app.logger.Info("Server shutdown complete")
	return nil
}

// Close releases storage, lock and event resources. It is safe to call
// more than once.
func (app *RosterApp) Close() {
	if app.cleanup != nil {
		app.cleanup()
		app.cleanup = nil
	}
}

// GetConfig returns the application configuration
func (app *RosterApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server
func (app *RosterApp) GetHTTPServer() *http.Server {
	return app.httpServer
}

// Components returns the wired components.
func (app *RosterApp) Components() *AppComponents {
	return app.components
}
