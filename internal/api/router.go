// internal/api/router.go
package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "welfare-caseworker/internal/common/errors"
	"welfare-caseworker/internal/common/logger"
	"welfare-caseworker/internal/service"
	"welfare-caseworker/internal/workflow"
	"welfare-caseworker/pkg/registry"
)

type Deps struct {
	Analyzer  *service.Analyzer
	Workflow  *workflow.Workflow
	Model     ModelStatus
	Generator GeneratorStatus
	Registry  *registry.OperationRegistry
	Logger    logger.Logger
}

type Options struct {
	AppName        string
	Version        string
	StorageDriver  string
	AllowedOrigins []string
	MetricsEnabled bool
}

func NewHandler(d Deps, opts Options) *Handler {
	log := d.Logger.WithFields(map[string]interface{}{"component": "http-api"})
	reg := d.Registry
	if reg == nil {
		reg = registry.Default()
	}
	return &Handler{
		analyzer:  d.Analyzer,
		workflow:  d.Workflow,
		model:     d.Model,
		generator: d.Generator,
		registry:  reg,
		errors:    apperrors.NewErrorHandler(log, classifyDomainError),
		logger:    log,
		opts:      opts,
	}
}

// NewRouter wires middleware and routes onto a fresh gin engine.
func NewRouter(d Deps, opts Options) *gin.Engine {
	h := NewHandler(d, opts)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(h.logger))
	r.Use(RequestMetrics())
	r.Use(CORS(opts.AllowedOrigins))

	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.POST("/analyze_case", h.AnalyzeCase)
	r.GET("/cases", h.GetCases)
	r.GET("/cases/:case_id", h.GetCase)
	r.POST("/approve_case", h.ApproveCase)
	r.GET("/approvals", h.GetApprovals)
	r.GET("/approvals/pending", h.GetPendingApprovals)
	r.GET("/approvals/history", h.GetApprovalHistory)

	if opts.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}
	return r
}
