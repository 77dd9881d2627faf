package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/raysh454/scanhub/internal/alerts"
	"github.com/raysh454/scanhub/internal/logging"
	"github.com/raysh454/scanhub/internal/model"
	"github.com/raysh454/scanhub/internal/queue"
	"github.com/raysh454/scanhub/internal/reports"
	"github.com/raysh454/scanhub/internal/scanner"
	"github.com/raysh454/scanhub/internal/server"
	"github.com/raysh454/scanhub/internal/status"
	"github.com/raysh454/scanhub/internal/worker"
)

// Application is the global runtime state container. It owns every
// long-lived component and their lifecycle.
type Application struct {
	Config *Config
	Logger logging.Logger

	Gateway *queue.Gateway
	Reports *reports.Store
	Alerts  *alerts.Store
	Worker  *worker.Worker
	Server  *server.Server

	httpServer    *http.Server
	closeScanners func() error

	// internal context for cancellation / lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	workerDone chan struct{}
	serveErr   chan error
	addr       string
	started    bool
	once       sync.Once
}

// NewApplication builds every component from cfg. Nothing connects or
// listens until Start.
func NewApplication(ctx context.Context, cfg *Config, logger logging.Logger) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("application config is nil")
	}

	gw, err := queue.NewGateway(cfg.Queue, queue.SQLConnector(cfg.Queue.Database, logger), logger)
	if err != nil {
		return nil, fmt.Errorf("queue gateway: %w", err)
	}

	rs, err := reports.NewStore(cfg.Reports, logger)
	if err != nil {
		gw.Close()
		return nil, fmt.Errorf("report store: %w", err)
	}

	as, err := alerts.OpenStore(ctx, cfg.Alerts.Database, logger)
	if err != nil {
		gw.Close()
		return nil, fmt.Errorf("alert store: %w", err)
	}

	outputs := make(map[model.JobType]scanner.Output)
	for _, rt := range rs.Types() {
		jt := model.JobType(rt.Type)
		out := outputs[jt]
		out.ReportTypes = append(out.ReportTypes, rt.Type)
		if out.File == "" {
			out.File = rt.File
		}
		outputs[jt] = out
	}
	scanners, closeScanners, err := scanner.Build(cfg.Scanners, rs.Dir(), outputs, logger)
	if err != nil {
		as.Close()
		gw.Close()
		return nil, fmt.Errorf("scanners: %w", err)
	}

	extractor := alerts.NewExtractor(rs, nil, as, cfg.Alerts, logger)
	w := worker.New(cfg.Worker, gw, scanners, rs, extractor, logger)

	srv, err := server.NewServer(cfg.Server, server.Deps{
		Queue:   gw,
		Status:  status.NewAggregator(gw, rs, logger),
		Reports: rs,
		Alerts:  as,
	}, logger)
	if err != nil {
		closeScanners()
		as.Close()
		gw.Close()
		return nil, err
	}

	appCtx, cancel := context.WithCancel(context.Background())
	return &Application{
		Config:        cfg,
		Logger:        logger,
		Gateway:       gw,
		Reports:       rs,
		Alerts:        as,
		Worker:        w,
		Server:        srv,
		httpServer:    srv.HTTPServer(),
		closeScanners: closeScanners,
		ctx:           appCtx,
		cancel:        cancel,
		workerDone:    make(chan struct{}),
		serveErr:      make(chan error, 1),
	}, nil
}

// Start fails jobs interrupted by a previous run of this instance or left
// with a lapsed lease, then starts the health probe, the lease reaper, the
// worker and the HTTP listener. A queue that is down at startup
// is logged, not fatal: the API reports it and a reset recovers it.
func (a *Application) Start() error {
	if n, err := a.Gateway.RecoverInterrupted(a.ctx); err != nil {
		a.Logger.Warn("could not recover interrupted jobs", logging.Err(err))
	} else if n > 0 {
		a.Logger.Info("recovered interrupted jobs", logging.Field{Key: "count", Value: n})
	}
	a.Gateway.StartHealthProbe(a.ctx, a.Config.Queue.HealthProbeInterval)
	a.Gateway.StartLeaseReaper(a.ctx, a.Gateway.LeaseTTL()/2)

	ln, err := net.Listen("tcp", a.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.httpServer.Addr, err)
	}
	a.addr = ln.Addr().String()
	a.started = true

	go func() {
		defer close(a.workerDone)
		if err := a.Worker.Run(a.ctx); err != nil {
			a.Logger.Error("worker stopped", logging.Err(err))
		}
	}()
	go func() {
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.serveErr <- err
		}
		close(a.serveErr)
	}()

	a.Logger.Info("application started", logging.Field{Key: "addr", Value: a.addr})
	return nil
}

// Addr is the address the API listens on once started.
func (a *Application) Addr() string { return a.addr }

// Wait blocks until ctx is done or the HTTP server fails.
func (a *Application) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-a.serveErr:
		if !ok {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// Shutdown stops accepting requests and claims, gives in-flight scans
// ShutdownTimeout to finish and aborts the rest, then closes storage.
func (a *Application) Shutdown(ctx context.Context) error {
	var errs []error
	a.once.Do(func() {
		a.Logger.Info("application shutdown initiated")
		a.cancel()

		if a.started {
			httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := a.httpServer.Shutdown(httpCtx); err != nil {
				errs = append(errs, fmt.Errorf("http shutdown: %w", err))
			}
			cancel()
			a.drainWorker(ctx)
		}

		if err := a.closeScanners(); err != nil {
			errs = append(errs, fmt.Errorf("close scanners: %w", err))
		}
		if err := a.Alerts.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close alert store: %w", err))
		}
		if err := a.Gateway.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close queue: %w", err))
		}
		a.Logger.Info("application stopped")
	})
	return errors.Join(errs...)
}

// drainWorker waits for the worker loop, aborting in-flight scans once the
// shutdown timeout or ctx runs out.
func (a *Application) drainWorker(ctx context.Context) {
	timer := time.NewTimer(a.Config.ShutdownTimeout)
	defer timer.Stop()
	select {
	case <-a.workerDone:
		return
	case <-timer.C:
		a.Logger.Warn("in-flight scans exceeded the shutdown timeout, aborting")
	case <-ctx.Done():
	}
	a.Worker.Abort()
	<-a.workerDone
}
