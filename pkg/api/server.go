// Package api exposes the memory service's single-endpoint tool
// dispatch over HTTP, grounded on cmd/tarsy/main.go's gin wiring and
// original_source/memory_mcp/mcp_router.py's tool-name switch shape.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/memhub/memoryd/pkg/audit"
	"github.com/memhub/memoryd/pkg/database"
	"github.com/memhub/memoryd/pkg/decisionstate"
	"github.com/memhub/memoryd/pkg/distill"
	"github.com/memhub/memoryd/pkg/jobs"
	"github.com/memhub/memoryd/pkg/memory"
	"github.com/memhub/memoryd/pkg/plans"
	"github.com/memhub/memoryd/pkg/retrieval"
	"github.com/memhub/memoryd/pkg/shared"
	"github.com/memhub/memoryd/pkg/turns"
)

// Server is the HTTP tool-dispatch server.
type Server struct {
	engine *gin.Engine
	http   *http.Server

	dbClient      *database.Client
	jobEngine     *jobs.Engine
	turns         *turns.Engine
	plans         *plans.Service
	distill       *distill.Engine
	retrieval     *retrieval.Engine
	audit         *audit.Engine
	memory        *memory.Engine
	decisionState *decisionstate.Engine
	shared        *shared.Engine

	dispatch map[string]func(c *gin.Context, args map[string]any)
}

// Deps bundles every domain engine the dispatch table calls into.
type Deps struct {
	DBClient      *database.Client
	JobEngine     *jobs.Engine
	Turns         *turns.Engine
	Plans         *plans.Service
	Distill       *distill.Engine
	Retrieval     *retrieval.Engine
	Audit         *audit.Engine
	Memory        *memory.Engine
	DecisionState *decisionstate.Engine
	Shared        *shared.Engine
	MetricsEnabled bool
}

// NewServer builds the gin engine, registers /health, optionally
// /metrics, and the single POST / tool-dispatch route.
func NewServer(deps Deps) *Server {
	s := &Server{
		dbClient:      deps.DBClient,
		jobEngine:     deps.JobEngine,
		turns:         deps.Turns,
		plans:         deps.Plans,
		distill:       deps.Distill,
		retrieval:     deps.Retrieval,
		audit:         deps.Audit,
		memory:        deps.Memory,
		decisionState: deps.DecisionState,
		shared:        deps.Shared,
	}
	s.dispatch = s.buildDispatch()

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), securityHeaders())

	r.GET("/health", s.healthHandler)
	if deps.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	r.POST("/", s.toolHandler)

	s.engine = r
	return s
}

// Start runs the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.http = &http.Server{Addr: addr, Handler: s.engine}
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) healthHandler(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	resp := &HealthResponse{Status: "healthy"}
	if s.dbClient != nil {
		dbHealth, err := database.Health(reqCtx, s.dbClient.DB())
		resp.Database = dbHealth
		if err != nil {
			resp.Status = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, resp)
			return
		}
	}
	if s.jobEngine != nil {
		resp.JobPool = &JobPoolHealth{WorkerCount: s.jobEngine.WorkerCount()}
	}
	c.JSON(http.StatusOK, resp)
}
