// Package ops serves the read-only inspection surface: liveness and
// readiness probes, prometheus metrics, and workflow/options queries for
// operators. Nothing here mutates state.
package ops

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ebops/deploybot/config"
	"github.com/ebops/deploybot/workflow"
)

// Store is the read-only slice of persistence the inspection API exposes.
type Store interface {
	Ping(ctx context.Context) error
	ListWorkflows(ctx context.Context, status workflow.Status, limit int) ([]*workflow.Workflow, error)
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	GetSSOSubmissionByWorkflow(ctx context.Context, workflowID string) (*workflow.SSOSubmission, error)
	GetSSOBuildsByWorkflow(ctx context.Context, workflowID string) ([]*workflow.SSOBuild, error)
	GetJenkinsBuildsByWorkflow(ctx context.Context, workflowID string) ([]*workflow.JenkinsBuild, error)
}

// OptionsLoader yields the current project options document.
type OptionsLoader interface {
	Load(ctx context.Context) (*config.Options, error)
}

// Server is the ops HTTP server.
type Server struct {
	store   Store
	options OptionsLoader
	logger  *slog.Logger
	http    *http.Server
}

// New assembles the server for addr. The engine runs in release mode and
// recovers handler panics instead of killing the daemon.
func New(addr string, store Store, options OptionsLoader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:   store,
		options: options,
		logger:  logger.With("component", "ops"),
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	s.register(router)

	s.http = &http.Server{Addr: addr, Handler: router}
	return s
}

// Handler exposes the assembled routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves until Shutdown is called or the listener fails. It blocks.
func (s *Server) Start() error {
	s.logger.Info("ops server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) register(router *gin.Engine) {
	router.GET("/healthz", s.health)
	router.GET("/readyz", s.ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/workflows", s.listWorkflows)
		v1.GET("/workflows/:id", s.getWorkflow)
		v1.GET("/options", s.getOptions)
	}
}
