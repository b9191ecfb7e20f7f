// Package runtime wires the platform's core dependencies and manages the
// HTTP server lifecycle.
package runtime

import (
	"context"
	"net/http"
	"time"

	"github.com/stagewire/platform/internal/api/httpserver"
	"github.com/stagewire/platform/internal/api/httpserver/router"
	"github.com/stagewire/platform/internal/config"
	"github.com/stagewire/platform/internal/control"
	"github.com/stagewire/platform/internal/logging"
	"github.com/stagewire/platform/internal/metrics"
)

// Application wires core dependencies and manages the HTTP server lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logging.Logger
	httpServer *httpserver.Server

	registry *control.Registry
	gateway  *control.Gateway
	bus      *control.Bus

	stopSweep chan struct{}
}

// NewApplication constructs an application instance with default wiring.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewApplicationWithConfig(cfg)
}

// NewApplicationWithConfig constructs an application from an explicit config.
func NewApplicationWithConfig(cfg *config.Config) (*Application, error) {
	log := logging.New("stagewire", cfg.Logging.Level, cfg.Logging.Format)
	mets := metrics.New()

	bus := control.NewBus(log, control.WithBusMetrics(mets))
	registry := control.NewRegistry(bus, log, control.WithRegistryMetrics(mets))
	gateway := control.NewGateway(registry, bus, log, control.WithGatewayMetrics(mets))

	mux := router.New(cfg, log, mets, registry, gateway, bus)
	httpSrv := httpserver.New(cfg.Server, log, mux)

	return &Application{
		cfg:        cfg,
		log:        log,
		httpServer: httpSrv,
		registry:   registry,
		gateway:    gateway,
		bus:        bus,
		stopSweep:  make(chan struct{}),
	}, nil
}

// Registry exposes the session registry, used by tests and tooling.
func (a *Application) Registry() *control.Registry { return a.registry }

// Version is the build identifier, set at link time.
var Version = "dev"

// Run starts the HTTP server and blocks until the context is cancelled.
func (a *Application) Run(ctx context.Context) error {
	a.log.Infof("stagewire platform %s starting", Version)
	a.startSweep()

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr())
		if err := a.httpServer.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown gracefully shuts down the HTTP server, closes subscriber
// connections and stops background workers.
func (a *Application) Shutdown(ctx context.Context) error {
	close(a.stopSweep)
	a.bus.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return a.httpServer.Shutdown(shutdownCtx)
}

// startSweep runs the dead-record sweep when configured. With a zero
// interval the registry keeps every record for the life of the process.
func (a *Application) startSweep() {
	interval := time.Duration(a.cfg.Control.SweepIntervalSec) * time.Second
	if interval <= 0 {
		return
	}
	retention := time.Duration(a.cfg.Control.RetainDeadSec) * time.Second

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-a.stopSweep:
				return
			case <-ticker.C:
				if swept := a.registry.SweepDead(retention); swept > 0 {
					a.log.Infof("evicted %d dead control sessions", swept)
				}
			}
		}
	}()
}
