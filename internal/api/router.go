// Package api serves the conversation engine over a gin HTTP server.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"order-agent/handler"
	"order-agent/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

// HTTPMetrics receives one observation per request.
type HTTPMetrics interface {
	ObserveHTTP(method, path string, status int, d time.Duration)
	Handler() http.Handler
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Server struct {
	svc     handler.ConversationService
	metrics HTTPMetrics
	checks  map[string]ReadinessCheck
	logger  *zap.Logger
	now     func() time.Time
}

func NewServer(svc handler.ConversationService, metrics HTTPMetrics, logger *zap.Logger, checks map[string]ReadinessCheck) (*Server, error) {
	if svc == nil {
		return nil, errors.New("api: conversation service must not be nil")
	}
	if metrics == nil {
		return nil, errors.New("api: metrics must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{svc: svc, metrics: metrics, checks: checks, logger: logger, now: time.Now}, nil
}

// Router builds the gin engine with tracing, metrics and correlation ids.
func (s *Server) Router(serviceName string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(s.metricsMiddleware())
	router.Use(correlationMiddleware())
	router.Use(s.accessLog())

	router.GET("/health", s.healthCheck)
	router.GET("/ready", s.readinessCheck)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders/:id/conversation", s.startConversation)
		v1.POST("/orders/:id/messages", s.processMessage)
		v1.POST("/orders/:id/conversation/reset", s.resetConversation)
	}
	return router
}

type startRequest struct {
	Language string `json:"language"`
}

type messageRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

func (s *Server) startConversation(c *gin.Context) {
	var req startRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidBody(c, err)
			return
		}
	}
	msg, err := s.svc.StartConversation(c.Request.Context(), c.Param("id"), req.Language)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

func (s *Server) processMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		invalidBody(c, err)
		return
	}
	reply, err := s.svc.ProcessMessage(c.Request.Context(), c.Param("id"), req.Text, req.Language)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (s *Server) resetConversation(c *gin.Context) {
	out, err := s.svc.ResetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": out.Message})
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   s.now().Unix(),
	})
}

func (s *Server) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "failed": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   s.now().Unix(),
	})
}

func (s *Server) fail(c *gin.Context, err error) {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) {
		status := handler.StatusFor(ucErr.Code)
		if status >= http.StatusInternalServerError {
			s.logger.Error("request failed", zap.String("code", string(ucErr.Code)), zap.Error(err))
		}
		c.JSON(status, gin.H{"error": string(ucErr.Code), "reason": ucErr.Reason})
		return
	}
	s.logger.Error("unexpected error", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "INTERNAL_ERROR"})
}

func invalidBody(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   string(usecase.ErrorInvalidInput),
		"reason":  "invalid_body",
		"details": err.Error(),
	})
}

func (s *Server) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		s.metrics.ObserveHTTP(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}

func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("correlation_id", id)
		c.Header(correlationHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("correlation_id", c.GetString("correlation_id")),
		)
	}
}
