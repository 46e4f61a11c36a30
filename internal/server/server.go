package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agenthands/symbiosis/internal/core"
	"github.com/agenthands/symbiosis/internal/core/discovery"
	"github.com/agenthands/symbiosis/internal/core/insights"
	"github.com/agenthands/symbiosis/internal/core/nlquery"
	"github.com/agenthands/symbiosis/internal/core/search"
)

type Server struct {
	Symbiosis *core.Symbiosis
	Gatherer  prometheus.Gatherer
	log       *zap.Logger
}

// NewServer serves s over HTTP. gatherer backs /metrics and may be nil to
// omit the route.
func NewServer(s *core.Symbiosis, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	return &Server{Symbiosis: s, Gatherer: gatherer, log: log}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.Health)
	r.GET("/insights/matches", s.TopMatches)
	r.GET("/insights/clusters", s.Clusters)
	r.POST("/discovery/run", s.RunDiscovery)
	r.POST("/search/materials", s.SearchMaterials)
	r.POST("/query", s.Query)

	if s.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) TopMatches(c *gin.Context) {
	limit := insights.DefaultLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	matches, err := s.Symbiosis.Insights.TopMatches(c.Request.Context(), limit)
	if err != nil {
		s.log.Error("failed to read matches", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read matches"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matches": matches, "count": len(matches)})
}

func (s *Server) Clusters(c *gin.Context) {
	clusters, err := s.Symbiosis.Insights.Clusters(c.Request.Context())
	if err != nil {
		s.log.Error("failed to build clusters", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build clusters"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clusters": clusters, "count": len(clusters)})
}

func (s *Server) RunDiscovery(c *gin.Context) {
	dryRun, _ := strconv.ParseBool(c.DefaultQuery("dry_run", "false"))

	// A client disconnect must not stop a run between its delete and write
	// phases, which would leave the graph with no matches.
	ctx := context.WithoutCancel(c.Request.Context())
	report, err := s.Symbiosis.Discovery.Run(ctx, discovery.RunOptions{DryRun: dryRun})
	if errors.Is(err, discovery.ErrRunInProgress) || errors.Is(err, discovery.ErrLockHeld) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		s.log.Error("discovery run failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Discovery run failed", "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) SearchMaterials(c *gin.Context) {
	var req search.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	res, err := s.Symbiosis.Search.Materials(c.Request.Context(), req)
	switch {
	case errors.Is(err, search.ErrEmptyQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, search.ErrUnknownCompany):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		s.log.Error("material search failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search"})
	default:
		c.JSON(http.StatusOK, res)
	}
}

type QueryRequest struct {
	Question string `json:"question"`
}

func (s *Server) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ans, err := s.Symbiosis.Query.Ask(c.Request.Context(), req.Question)
	switch {
	case errors.Is(err, nlquery.ErrEmptyQuestion):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, nlquery.ErrNoLLM):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, nlquery.ErrWriteQuery), errors.Is(err, nlquery.ErrNoCypher):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case err != nil:
		s.log.Error("query failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to answer question"})
	default:
		c.JSON(http.StatusOK, ans)
	}
}
