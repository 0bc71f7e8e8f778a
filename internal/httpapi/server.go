// Package httpapi serves the local status API that front ends poll or
// stream from.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/alerts"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/config"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/jobs"
	"github.com/aicsgithub/aics-file-upload-app-sub003/internal/monitor"
	"github.com/aicsgithub/aics-file-upload-app-sub003/pkg/log"
)

type jobMonitor interface {
	Rows() []jobs.Row
	SafeToExit() bool
	Connected() bool
	IncompleteJobIDs() []string
	NextResync() time.Time
	Subscribe() (<-chan struct{}, func())
	Submit(ctx context.Context, req monitor.SubmitRequest) (string, error)
	RetryJob(ctx context.Context, jobID string) error
	CancelJob(ctx context.Context, jobID string) error
	Resync(ctx context.Context) error
}

type runtimeSettingsStore interface {
	GetRuntimeSettings() (config.RuntimeSettings, error)
	UpdateRuntimeSettings(next config.RuntimeSettings) (config.RuntimeSettings, error)
	Pending() bool
}

type Server struct {
	monitor   jobMonitor
	alerts    *alerts.Center
	settings  runtimeSettingsStore
	clipboard alerts.Clipboard
	metrics   http.Handler

	streamInterval time.Duration

	engine *gin.Engine

	mu     sync.Mutex
	server *http.Server
}

type Option func(*Server)

func WithRuntimeSettingsStore(store runtimeSettingsStore) Option {
	return func(s *Server) {
		s.settings = store
	}
}

// WithMetricsHandler mounts handler at /metrics.
func WithMetricsHandler(handler http.Handler) Option {
	return func(s *Server) {
		s.metrics = handler
	}
}

func WithClipboard(cb alerts.Clipboard) Option {
	return func(s *Server) {
		s.clipboard = cb
	}
}

// WithStreamInterval sets the heartbeat of /api/jobs/stream.
func WithStreamInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.streamInterval = d
		}
	}
}

func NewServer(m jobMonitor, center *alerts.Center, opts ...Option) *Server {
	s := &Server{
		monitor:        m,
		alerts:         center,
		clipboard:      alerts.SystemClipboard(),
		streamInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine = gin.New()
	s.engine.Use(gin.Recovery(), requestLogger())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()
	return srv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) routes() {
	api := s.engine.Group("/api")
	api.GET("/jobs", s.handleListJobs)
	api.POST("/jobs", s.handleSubmitJob)
	api.GET("/jobs/stream", s.handleJobStream)
	api.POST("/jobs/:id/retry", s.handleRetryJob)
	api.POST("/jobs/:id/cancel", s.handleCancelJob)
	api.POST("/resync", s.handleResync)
	api.GET("/status", s.handleStatus)
	api.GET("/alert", s.handleGetAlert)
	api.DELETE("/alert", s.handleClearAlert)
	api.POST("/alert/copy", s.handleCopyAlert)
	api.GET("/events", s.handleEvents)
	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handleUpdateSettings)

	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics))
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
