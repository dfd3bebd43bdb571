// Package server initializes and runs the ingestion server: it opens the
// database, applies migrations, selects the storage backend, wires the
// services and serves HTTP until a shutdown signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/sitevisit/internal/logging"
	"github.com/dmitrijs2005/sitevisit/internal/server/config"
	"github.com/dmitrijs2005/sitevisit/internal/server/httpapi"
	"github.com/dmitrijs2005/sitevisit/internal/server/metrics"
	"github.com/dmitrijs2005/sitevisit/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sitevisit/internal/server/services"
	"github.com/dmitrijs2005/sitevisit/internal/server/sheets"
	"github.com/dmitrijs2005/sitevisit/internal/server/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	server *httpapi.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(c.LogBackend, os.Stdout, c.Production)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	backend, err := storage.New(c, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.NewIngestMetrics(registry)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("metrics: %w", err)
	}

	var sink services.RowSink
	if c.WorkbookPath != "" {
		sink = sheets.NewWorkbook(c.WorkbookPath, logger)
	}

	rs := services.NewReportService(db, rm, backend, sink, m, logger)
	us := services.NewUploadService(db, rm, backend, c, m, logger)

	return &App{
		config: c,
		logger: logger,
		db:     db,
		server: httpapi.NewServer(c, rs, us, m, logger),
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage_backend", app.config.StorageBackend, "workbook", app.config.WorkbookPath)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
}
