package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"consensus-radar/internal/collect"
	"consensus-radar/internal/consensus"
	"consensus-radar/internal/progress"
	"consensus-radar/internal/storage"
)

// Server exposes the collection and consensus operations over HTTP.
type Server struct {
	orchestrator *collect.Orchestrator
	tracker      *progress.Tracker
	engine       *consensus.Engine
	companies    *storage.CompanyRepo
	metrics      *storage.MetricRepo
	diffs        *storage.DiffLogRepo
	targetYear   func() int

	httpServer *http.Server
}

func New(
	orchestrator *collect.Orchestrator,
	tracker *progress.Tracker,
	engine *consensus.Engine,
	companies *storage.CompanyRepo,
	metrics *storage.MetricRepo,
	diffs *storage.DiffLogRepo,
	targetYear func() int,
) *Server {
	return &Server{
		orchestrator: orchestrator,
		tracker:      tracker,
		engine:       engine,
		companies:    companies,
		metrics:      metrics,
		diffs:        diffs,
		targetYear:   targetYear,
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	{
		api.POST("/companies", s.handleSeedCompanies)
		api.POST("/collect", s.handleCollect)
		api.GET("/progress/:session_id", s.handleProgress)
		api.POST("/consensus/compute", s.handleCompute)
		api.GET("/consensus/:date", s.handleMetrics)
		api.GET("/consensus/:date/diffs", s.handleDiffs)
	}

	return r
}

// Run serves until the context is canceled, then drains in-flight
// requests with a bounded grace period.
func (s *Server) Run(ctx context.Context, port int) error {
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}
