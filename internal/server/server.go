// Package server exposes the summarization pipeline over HTTP.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"clinsight/config"
	"clinsight/internal/index"
	"clinsight/internal/pipeline"
	"clinsight/internal/runtime"
	"clinsight/models"
)

// AuditLookup is the read side of the audit trail, implemented by the
// postgres store. The file backend has no query path, so it stays nil there.
type AuditLookup interface {
	ListByRequestID(ctx context.Context, requestID string) ([]models.AuditEntry, error)
}

// Server wires the HTTP surface around the pipeline.
type Server struct {
	cfg         config.ServerConfig
	pipe        *pipeline.Pipeline
	index       *index.Index
	metrics     *runtime.Metrics
	limiter     *RateLimiter
	auth        *AuthHandler
	auditLookup AuditLookup
	logger      *log.Logger
}

func New(cfg config.ServerConfig, pipe *pipeline.Pipeline, ix *index.Index, metrics *runtime.Metrics, limiter *RateLimiter, auth *AuthHandler, auditLookup AuditLookup, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	}
	return &Server{
		cfg:         cfg,
		pipe:        pipe,
		index:       ix,
		metrics:     metrics,
		limiter:     limiter,
		auth:        auth,
		auditLookup: auditLookup,
		logger:      logger,
	}
}

// Echo assembles the routing tree. Split from Run so tests can drive the
// handlers without binding a port.
func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := "internal error"
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			}
		}
		s.logger.Printf("%s %s -> %d: %v", c.Request().Method, c.Request().URL.Path, code, err)
		if !c.Response().Committed {
			_ = c.JSON(code, errorBody{Code: http.StatusText(code), Message: msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{"status": "ok", "corpus_docs": s.index.Len()})
	})
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}
	if s.auth != nil {
		s.auth.Register(e.Group("/api/v1/auth"))
	}

	api := e.Group("/api/v1")
	if s.auth != nil {
		api.Use(runtime.EchoAuthMiddleware(s.auth.Secret))
	} else {
		s.logger.Printf("WARNING: no JWT secret configured, API is unauthenticated")
	}
	if s.limiter != nil {
		api.Use(s.limiter.Middleware())
	}
	api.POST("/summaries", s.handleSummarize)
	api.GET("/corpus/search", s.handleCorpusSearch)
	api.GET("/audit/:request_id", s.handleAuditLookup)

	return e
}

// Run serves until the context is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	e := s.Echo()
	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("listening on %s", s.cfg.Address)
		errCh <- e.Start(s.cfg.Address)
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	}
}
