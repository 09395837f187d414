package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/loglens-lab/project-loglens/internal/analytics"
)

type Server struct {
	Engine *gin.Engine
	Addr   string
	stats  StatsReporter
}

// StatsReporter is an interface for components that can report engine-level
// counters on the health endpoint.
type StatsReporter interface {
	Stats() analytics.Stats
}

func New(addr string, stats StatsReporter, mode string) *Server {
	// Set Gin mode based on configuration
	if mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()

	// Browser dashboards call the API cross-origin.
	r.Use(cors.Default())

	s := &Server{
		Engine: r,
		Addr:   addr,
		stats:  stats,
	}

	r.GET("/health", s.healthHandler)

	return s
}

func (s *Server) healthHandler(c *gin.Context) {
	resp := gin.H{"status": "healthy"}
	if s.stats != nil {
		snapshot := s.stats.Stats()
		resp["total_users"] = snapshot.TotalUsers
		resp["days_tracked"] = snapshot.TotalDaysTracked
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    s.Addr,
		Handler: s.Engine,
	}

	slog.Info("Starting HTTP Server...", "address", s.Addr)

	go func() {
		<-ctx.Done()
		slog.Info("Stopping HTTP Server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP Server forced to shutdown", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
