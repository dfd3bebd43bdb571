// Package httpapi exposes the report and upload services over HTTP with
// echo. Handlers only translate requests; every rule lives in services.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/sitevisit/internal/logging"
	sc "github.com/dmitrijs2005/sitevisit/internal/server/config"
	"github.com/dmitrijs2005/sitevisit/internal/server/metrics"
	"github.com/dmitrijs2005/sitevisit/internal/server/models"
	"github.com/dmitrijs2005/sitevisit/internal/server/payload"
	"github.com/dmitrijs2005/sitevisit/internal/server/services"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	bodyLimit       = "32M"
	shutdownTimeout = 10 * time.Second
)

// Reports is the report service as seen by the handlers.
type Reports interface {
	Create(ctx context.Context, in services.CreateInput) (*services.Result, error)
	CreateDraft(ctx context.Context, p payload.Payload, userID string) (*services.Result, error)
	Update(ctx context.Context, in services.UpdateInput) (*services.Result, error)
	UpdateDraft(ctx context.Context, reportID string, p payload.Payload, replacePhotos bool) (*services.Result, error)
	Get(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, filter models.ReportFilter) ([]*models.Report, error)
	LatestDraft(ctx context.Context, siteID string) (*models.Report, error)
}

// Uploads is the upload coordinator as seen by the handlers.
type Uploads interface {
	PresignUpload(ctx context.Context, userID string, req services.PresignRequest) (*models.UploadSlot, error)
	PresignDownload(ctx context.Context, userID, reportID, objectKey string) (*models.DownloadSlot, error)
}

type Server struct {
	echo    *echo.Echo
	config  *sc.Config
	reports Reports
	uploads Uploads
	metrics *metrics.IngestMetrics
	log     logging.Logger
	now     func() time.Time
}

// NewServer builds the echo instance with middleware and routes. m may be
// nil, in which case /metrics is not served.
func NewServer(config *sc.Config, reports Reports, uploads Uploads, m *metrics.IngestMetrics, log logging.Logger) *Server {
	if log == nil {
		log = logging.Discard()
	}
	s := &Server{
		echo:    echo.New(),
		config:  config,
		reports: reports,
		uploads: uploads,
		metrics: m,
		log:     log.With("module", "http_server"),
		now:     time.Now,
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.handleError

	s.configureMiddleware()
	s.registerRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) configureMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator:        uuid.NewString,
		RequestIDHandler: tagRequest,
	}))
	s.echo.Use(s.requestLogger())
	s.echo.Use(middleware.BodyLimit(bodyLimit))
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.health)
	if s.metrics != nil {
		s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{
			ErrorHandling: promhttp.HTTPErrorOnError,
		})))
	}
	if s.config.StorageBackend == sc.StorageLocal {
		s.echo.Static("/storage", s.config.StorageDir)
	}

	api := s.echo.Group("/api", s.identify)
	api.GET("/config", s.clientConfig)

	api.POST("/relatorios", s.createReport)
	api.GET("/relatorios", s.listReports)
	api.GET("/relatorios/:id", s.getReport)
	api.PUT("/relatorios/:id", s.updateReport)

	api.POST("/rascunhos", s.createDraft)
	api.GET("/rascunhos/ultimo", s.latestDraft)
	api.PUT("/rascunhos/:id", s.updateDraft)

	api.POST("/uploads/presign", s.presignUpload)
	api.POST("/uploads/presign-download", s.presignDownload)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		s.log.Info(ctx, "Starting HTTP server", "address", s.config.HTTPAddr)
		if err := s.echo.Start(s.config.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info(ctx, "Stopping HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
