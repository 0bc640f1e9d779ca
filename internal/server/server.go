// Package server provides the HTTP API for termmapd.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/termmapd/internal/catalog"
	"github.com/fyrsmithlabs/termmapd/internal/classifier"
	"github.com/fyrsmithlabs/termmapd/internal/config"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// maxBatchSize bounds one batch request; larger batches get a 400.
const maxBatchSize = 100

// Classifier handles single classification requests.
type Classifier interface {
	Classify(ctx context.Context, req classifier.Request) classifier.Result
}

// BatchClassifier fans a batch out with bounded concurrency.
type BatchClassifier interface {
	Classify(ctx context.Context, items []classifier.Request, method string) []classifier.Result
}

// Loader runs the catalog load pipeline.
type Loader interface {
	Load(ctx context.Context, src catalog.Source, reload bool) (catalog.LoadResult, error)
}

// Counter reports how many documents the vector index holds.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// Server provides the termmapd HTTP endpoints.
type Server struct {
	echo       *echo.Echo
	classifier Classifier
	batch      BatchClassifier
	loader     Loader
	repo       *catalog.Repository
	index      Counter
	metrics    *Metrics
	logger     *zap.Logger
	config     config.ServerConfig
}

// New creates the HTTP server and registers all routes.
func New(cls Classifier, batch BatchClassifier, loader Loader, repo *catalog.Repository, index Counter, metrics *Metrics, logger *zap.Logger, cfg config.ServerConfig) (*Server, error) {
	if cls == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)

			return err
		}
	})

	s := &Server{
		echo:       e,
		classifier: cls,
		batch:      batch,
		loader:     loader,
		repo:       repo,
		index:      index,
		metrics:    metrics,
		logger:     logger,
		config:     cfg,
	}
	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.metrics.Gatherer(), promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/classify", s.handleClassify)
	v1.POST("/classify/batch", s.handleBatchClassify)
	v1.POST("/terms/load", s.handleLoad)
	v1.GET("/terms/statistics", s.handleStatistics)
	v1.GET("/terms/:id", s.handleGetTerm)
}

// ClassifyRequest is the body for POST /api/v1/classify. IncludeBroader
// defaults to true when omitted.
type ClassifyRequest struct {
	Name           string `json:"name"`
	Description    string `json:"description"`
	Method         string `json:"method"`
	IncludeBroader *bool  `json:"include_broader_terms"`
	TopN           int    `json:"top_n"`
}

// BatchClassifyRequest is the body for POST /api/v1/classify/batch. Method
// applies to every item.
type BatchClassifyRequest struct {
	Items  []ClassifyRequest `json:"items"`
	Method string            `json:"method"`
}

// BatchClassifyResponse aggregates per-item results with counters.
type BatchClassifyResponse struct {
	Status         string              `json:"status"`
	Items          []classifier.Result `json:"items"`
	RequestID      string              `json:"request_id"`
	TotalProcessed int                 `json:"total_processed"`
	TotalSuccess   int                 `json:"total_success"`
	TotalFailure   int                 `json:"total_failure"`
}

// LoadRequest is the body for POST /api/v1/terms/load.
type LoadRequest struct {
	CSVPath string `json:"csv_path"`
	Reload  bool   `json:"reload"`
}

// LoadResponse is the body for a completed catalog load.
type LoadResponse struct {
	Status      string `json:"status"`
	Message     string `json:"message"`
	TotalLoaded int    `json:"total_loaded"`
	RequestID   string `json:"request_id"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	TermsLoaded int    `json:"terms_loaded"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:      "ok",
		TermsLoaded: s.repo.Len(),
	})
}

func (s *Server) handleClassify(c echo.Context) error {
	var req ClassifyRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid classify request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name field is required")
	}
	if req.Method != "" && !validMethod(req.Method) {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("invalid classification method %q, available: embeddings, llm, agent", req.Method))
	}

	start := time.Now()
	result := s.classifier.Classify(c.Request().Context(), toClassifierRequest(req))
	s.metrics.ObserveClassification(result.Status, methodLabel(req.Method), time.Since(start))

	return c.JSON(http.StatusOK, result)
}

func (s *Server) handleBatchClassify(c echo.Context) error {
	var req BatchClassifyRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid batch request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Items) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "items field is required")
	}
	if len(req.Items) > maxBatchSize {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("batch size exceeds limit of %d items", maxBatchSize))
	}
	if req.Method != "" && !validMethod(req.Method) {
		return echo.NewHTTPError(http.StatusBadRequest,
			fmt.Sprintf("invalid classification method %q, available: embeddings, llm, agent", req.Method))
	}

	items := make([]classifier.Request, len(req.Items))
	for i, item := range req.Items {
		items[i] = toClassifierRequest(item)
	}

	start := time.Now()
	results := s.batch.Classify(c.Request().Context(), items, req.Method)
	duration := time.Since(start)

	success := 0
	for _, r := range results {
		if r.Status == classifier.StatusSuccess {
			success++
		}
		s.metrics.ObserveBatchItem(r.Status)
	}
	batchStatus := classifier.StatusSuccess
	if success < len(results) {
		batchStatus = classifier.StatusError
	}
	s.metrics.ObserveClassification(batchStatus, "batch", duration)

	s.logger.Info("batch classified",
		zap.Int("items", len(results)),
		zap.Int("success", success),
		zap.Duration("duration", duration))

	return c.JSON(http.StatusOK, BatchClassifyResponse{
		Status:         "success",
		Items:          results,
		RequestID:      c.Response().Header().Get(echo.HeaderXRequestID),
		TotalProcessed: len(results),
		TotalSuccess:   success,
		TotalFailure:   len(results) - success,
	})
}

func (s *Server) handleLoad(c echo.Context) error {
	var req LoadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.CSVPath == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "csv_path field is required")
	}

	result, err := s.loader.Load(c.Request().Context(), catalog.NewCSVSource(req.CSVPath), req.Reload)
	if err != nil {
		s.logger.Error("catalog load failed", zap.String("path", req.CSVPath), zap.Error(err))
		if errors.Is(err, catalog.ErrSchema) {
			return echo.NewHTTPError(http.StatusBadRequest, result.Message)
		}
		return echo.NewHTTPError(http.StatusInternalServerError, result.Message)
	}

	s.metrics.SetCatalogTerms(s.repo.Len())

	return c.JSON(http.StatusOK, LoadResponse{
		Status:      result.Status,
		Message:     result.Message,
		TotalLoaded: result.TotalLoaded,
		RequestID:   c.Response().Header().Get(echo.HeaderXRequestID),
	})
}

func (s *Server) handleGetTerm(c echo.Context) error {
	id := c.Param("id")
	term, err := s.repo.Get(id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, fmt.Sprintf("term with id %q not found", id))
	}
	return c.JSON(http.StatusOK, term)
}

func (s *Server) handleStatistics(c echo.Context) error {
	indexed := 0
	if s.index != nil {
		count, err := s.index.Count(c.Request().Context())
		if err != nil {
			s.logger.Warn("index count failed", zap.Error(err))
		} else {
			indexed = count
		}
	}
	return c.JSON(http.StatusOK, s.repo.Statistics(indexed))
}

func toClassifierRequest(req ClassifyRequest) classifier.Request {
	includeBroader := true
	if req.IncludeBroader != nil {
		includeBroader = *req.IncludeBroader
	}
	return classifier.Request{
		Name:           req.Name,
		Description:    req.Description,
		Method:         req.Method,
		IncludeBroader: includeBroader,
		TopN:           req.TopN,
	}
}

func validMethod(method string) bool {
	switch method {
	case classifier.MethodEmbeddings, classifier.MethodLLM, classifier.MethodAgent:
		return true
	}
	return false
}

func methodLabel(method string) string {
	if method == "" {
		return classifier.MethodAgent
	}
	return method
}

// Echo exposes the router, mainly for tests and extra route registration.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
