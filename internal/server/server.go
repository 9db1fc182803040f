package server

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/spacesedan/ytsentiment/internal/events"
	"github.com/spacesedan/ytsentiment/internal/models"
	"github.com/spacesedan/ytsentiment/internal/sentiment"
	"github.com/spacesedan/ytsentiment/internal/store"
)

const (
	DEFAULT_PER_PAGE     = 20
	MAX_PER_PAGE         = 100
	DEFAULT_TIMEOUT      = 60 * time.Second
	ANALYZE_RATE_PER_SEC = 1
	ANALYZE_BURST        = 5
)

type Analyzer interface {
	Analyze(ctx context.Context, input string, limit int) (*models.Analysis, error)
}

type Config struct {
	Analyzer  Analyzer
	Store     store.Store
	Publisher events.Publisher
	Healthy   *atomic.Bool
	Timeout   time.Duration
}

type Server struct {
	analyzer  Analyzer
	store     store.Store
	publisher events.Publisher
	healthy   *atomic.Bool
	timeout   time.Duration
}

type analyzeRequest struct {
	URL   string `json:"url"`
	Limit int    `json:"limit"`
}

type analysisPage struct {
	Analysis    models.AnalysisSummary `json:"analysis"`
	Page        int                    `json:"page"`
	PerPage     int                    `json:"per_page"`
	Total       int                    `json:"total"`
	Predictions []models.Prediction    `json:"predictions"`
}

func New(cfg Config) *Server {
	s := &Server{
		analyzer:  cfg.Analyzer,
		store:     cfg.Store,
		publisher: cfg.Publisher,
		healthy:   cfg.Healthy,
		timeout:   cfg.Timeout,
	}
	if s.store == nil {
		s.store = store.NewMemoryStore(store.DEFAULT_TTL)
	}
	if s.publisher == nil {
		s.publisher = events.NoopPublisher{}
	}
	if s.healthy == nil {
		s.healthy = &atomic.Bool{}
		s.healthy.Store(true)
	}
	if s.timeout <= 0 {
		s.timeout = DEFAULT_TIMEOUT
	}
	return s
}

// Echo builds the router.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/healthz" || c.Request().URL.Path == "/metrics"
		},
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error == nil {
				slog.Info("[Server] Request completed",
					slog.String("method", v.Method),
					slog.String("uri", v.URI),
					slog.Int("status", v.Status),
					slog.Duration("latency", v.Latency))
			} else {
				slog.Error("[Server] Request failed",
					slog.String("method", v.Method),
					slog.String("uri", v.URI),
					slog.Int("status", v.Status),
					slog.Duration("latency", v.Latency),
					slog.String("error", v.Error.Error()))
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	analyzeRL := middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{Rate: rate.Limit(ANALYZE_RATE_PER_SEC), Burst: ANALYZE_BURST},
	))

	e.GET("/healthz", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.POST("/analyses", s.handleAnalyze, analyzeRL)
	api.GET("/analyses/:id", s.handleGetAnalysis)

	return e
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":            "ok",
		"predictor_healthy": s.healthy.Load(),
	})
}

func (s *Server) handleAnalyze(c echo.Context) error {
	var req analyzeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.URL == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}
	if req.Limit < 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive number")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), s.timeout)
	defer cancel()

	analysis, err := s.analyzer.Analyze(ctx, req.URL, req.Limit)
	if err != nil {
		return mapError(err)
	}

	if err := s.store.Save(ctx, analysis); err != nil {
		slog.Error("[Server] Failed to store analysis",
			slog.String("analysis_id", analysis.ID),
			slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store analysis")
	}

	if err := s.publisher.Publish(ctx, analysis); err != nil {
		slog.Warn("[Server] Failed to publish analysis event",
			slog.String("analysis_id", analysis.ID),
			slog.String("error", err.Error()))
	}

	c.Response().Header().Set(echo.HeaderLocation, "/api/analyses/"+analysis.ID)
	return c.JSON(http.StatusCreated, analysis.Summary())
}

func (s *Server) handleGetAnalysis(c echo.Context) error {
	page, err := queryInt(c, "page", 1)
	if err != nil || page < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "page must be a positive number")
	}
	perPage, err := queryInt(c, "per_page", DEFAULT_PER_PAGE)
	if err != nil || perPage < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "per_page must be a positive number")
	}
	perPage = min(perPage, MAX_PER_PAGE)

	var only sentiment.Label
	if raw := c.QueryParam("label"); raw != "" {
		if only, err = sentiment.ParseLabel(raw); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	analysis, err := s.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(err)
	}

	summary := analysis.Summary()
	if only != "" {
		analysis = analysis.WithLabel(only)
	}

	return c.JSON(http.StatusOK, analysisPage{
		Analysis:    summary,
		Page:        page,
		PerPage:     perPage,
		Total:       len(analysis.Predictions),
		Predictions: analysis.Page(page, perPage),
	})
}

func queryInt(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
