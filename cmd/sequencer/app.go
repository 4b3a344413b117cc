package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rendis/sequencer/internal/data"
	"github.com/rendis/sequencer/internal/expressions"
	"github.com/rendis/sequencer/internal/logging"
	"github.com/rendis/sequencer/internal/metrics"
	"github.com/rendis/sequencer/internal/panel"
	"github.com/rendis/sequencer/internal/registry"
	"github.com/rendis/sequencer/internal/scheduler"
	"github.com/rendis/sequencer/internal/session"
	"github.com/rendis/sequencer/internal/store"
	"github.com/rendis/sequencer/internal/streaming"
	"github.com/rendis/sequencer/internal/validation"
	"github.com/rendis/sequencer/pkg/mcp"
)

// app is the wired process: everything serve needs, built from a Config.
type app struct {
	cfg       Config
	logger    *slog.Logger
	store     *store.LibSQLStore
	registry  *registry.Registry
	prom      *prometheus.Registry
	hub       *streaming.MemoryHub
	manager   *session.Manager
	scheduler *scheduler.Scheduler
	server    *mcp.SequencerServer
	http      *http.Server
}

// newRegistry builds an activity registry whose documents are checked
// against the types of factory and the validators of catalog.
func newRegistry(factory *data.Factory, catalog *validation.Catalog, logger *slog.Logger) (*registry.Registry, error) {
	docs, err := registry.NewDocumentValidator(factory, catalog)
	if err != nil {
		return nil, fmt.Errorf("document validator: %w", err)
	}
	return registry.New(registry.WithDocumentValidator(docs), registry.WithLogger(logger)), nil
}

func newApp(ctx context.Context, cfg Config, logOut io.Writer) (*app, error) {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, logOut)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	a.store, err = store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := a.store.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	if v, err := a.store.SchemaVersion(ctx); err == nil {
		logger.Debug("store ready", "path", cfg.DBPath, "schema_version", v)
	}

	a.prom, err = metrics.NewRegistry()
	if err != nil {
		a.Close()
		return nil, err
	}
	recorder, err := metrics.NewRecorder(a.prom)
	if err != nil {
		a.Close()
		return nil, err
	}

	engines, err := expressions.NewRegistry()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("expression engines: %w", err)
	}
	catalog, err := validation.DefaultCatalog(engines)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("validator catalog: %w", err)
	}
	factory := data.DefaultFactory()

	a.registry, err = newRegistry(factory, catalog, logger.With("component", "registry"))
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.RegistryDir != "" {
		n, err := a.registry.LoadDir(cfg.RegistryDir)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.Warn("registry dir missing, no activities loaded", "dir", cfg.RegistryDir)
		case err != nil:
			a.Close()
			return nil, err
		default:
			logger.Info("registry loaded", "dir", cfg.RegistryDir, "activities", n)
		}
	}

	a.hub = streaming.NewMemoryHub()
	a.manager = session.NewManager(session.Deps{
		Infos:    a.registry,
		Factory:  factory,
		Pipeline: validation.NewPipeline(catalog, validation.WithLogger(logger), validation.WithMetrics(recorder)),
		Store:    a.store,
		Events:   store.NewEventLog(a.store),
		Hub:      a.hub,
		Metrics:  recorder,
		Logger:   logger,
	})

	a.scheduler = scheduler.NewScheduler(logger)
	if cfg.AutosaveCron != "" {
		if err := a.scheduler.AddJob(scheduler.AutosaveJob, cfg.AutosaveCron,
			scheduler.Autosave(a.manager, logger)); err != nil {
			a.Close()
			return nil, fmt.Errorf("autosave: %w", err)
		}
	}

	a.server = mcp.NewSequencerServer(mcp.ServerDeps{
		Manager: a.manager,
		Hub:     a.hub,
		Version: currentVersion(),
		Logger:  logger,
	})

	if cfg.HTTPAddr != "" {
		p := panel.NewPanelServer(panel.PanelDeps{
			Manager:   a.manager,
			Scheduler: a.scheduler,
			Hub:       a.hub,
			Metrics:   a.prom,
			Logger:    logger,
		})
		a.http = &http.Server{Addr: cfg.HTTPAddr, Handler: p.Handler(), ReadHeaderTimeout: 5 * time.Second}
	}
	return a, nil
}

// Serve runs the scheduler, the panel listener and the MCP server until
// ctx is done or stdin closes. Dirty sessions are flushed on the way out.
func (a *app) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = a.scheduler.Stop() }()

	if a.http != nil {
		go func() {
			a.logger.Info("panel listening", "addr", a.cfg.HTTPAddr)
			if err := a.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("panel listener failed", "error", err)
			}
		}()
	}

	a.logger.Info("sequencer serving MCP on stdio", "version", currentVersion(), "db", a.cfg.DBPath)
	err := a.server.Serve(ctx)

	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if n, saveErr := a.manager.SaveDirty(flushCtx); saveErr != nil {
		a.logger.Error("final save failed", "error", saveErr)
	} else if n > 0 {
		a.logger.Info("sessions saved on shutdown", "count", n)
	}
	if a.http != nil {
		_ = a.http.Shutdown(flushCtx)
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the store.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", "error", err)
		}
	}
}
