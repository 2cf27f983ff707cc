// Package api exposes the lifecycle engine over HTTP.
//
// Every /v1 route requires the X-Tenant-ID and X-Actor-ID headers. Engine
// errors are mapped to status codes by kind and returned as
//
//	{"kind": "conflict", "message": "...", "issues": [...]}
package api

import (
	"net/http"

	"github.com/dyluth/lodge/internal/lifecycle"
	"github.com/dyluth/lodge/pkg/datasheet"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server holds the dependencies of the HTTP handlers.
type Server struct {
	engine     *lifecycle.Engine
	store      *datasheet.Client
	isOperator func(actor string) bool
	gatherer   prometheus.Gatherer
	logger     zerolog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithOperators sets the check that grants the elevated unlock capability.
func WithOperators(isOperator func(actor string) bool) Option {
	return func(s *Server) { s.isOperator = isOperator }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a Server for engine. By default no actor is an operator
// and /metrics serves the default Prometheus registry.
func NewServer(engine *lifecycle.Engine, opts ...Option) *Server {
	s := &Server{
		engine:     engine,
		store:      engine.Store(),
		isOperator: func(string) bool { return false },
		gatherer:   prometheus.DefaultGatherer,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1", requireScope())
	s.RegisterRoutes(v1)
	return r
}

// RegisterRoutes registers all /v1 lifecycle routes on rg.
//
//	GET    /documents                                 - list document summaries
//	POST   /documents                                 - create a document
//	POST   /templates/:id/documents                   - create a document from a template
//	GET    /documents/:id                             - document, live values, latest sequence
//	PATCH  /documents/:id                             - edit header and values
//	GET    /documents/:id/summary                     - derived summary
//	POST   /documents/:id/verify|approve|reject       - dispositions
//	GET    /documents/:id/revisions                   - revision page
//	GET    /documents/:id/revisions/:rev              - revision with snapshot
//	POST   /documents/:id/revisions/:rev/restore      - restore a revision
//	GET    /documents/:id/valuesets                   - value sets with values
//	POST   /documents/:id/valuesets                   - ensure a value set
//	POST   /documents/:id/valuesets/:vs/transition    - lock or verify
//	PATCH  /documents/:id/valuesets/:vs/values        - set values
//	PUT    /documents/:id/valuesets/:vs/variances/:field - set or clear a variance
//	GET    /documents/:id/compare                     - compare view
//	GET    /documents/:id/ratings                     - ratings blocks
//	POST   /documents/:id/ratings                     - create a ratings block
//	PATCH  /documents/:id/ratings/:block              - edit a ratings block
//	DELETE /documents/:id/ratings/:block              - delete a ratings block
//	POST   /documents/:id/ratings/:block/lock         - lock
//	POST   /documents/:id/ratings/:block/unlock       - unlock (operators only)
func (s *Server) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/documents", s.listDocuments)
	rg.POST("/documents", s.createDocument)
	rg.POST("/templates/:id/documents", s.createFromTemplate)

	doc := rg.Group("/documents/:id")
	doc.GET("", s.getDocument)
	doc.PATCH("", s.updateDocument)
	doc.GET("/summary", s.getSummary)
	doc.POST("/verify", s.verify)
	doc.POST("/approve", s.approve)
	doc.POST("/reject", s.reject)

	doc.GET("/revisions", s.listRevisions)
	doc.GET("/revisions/:rev", s.getRevision)
	doc.POST("/revisions/:rev/restore", s.restore)

	doc.GET("/valuesets", s.listValueSets)
	doc.POST("/valuesets", s.ensureValueSet)
	doc.POST("/valuesets/:vs/transition", s.transitionValueSet)
	doc.PATCH("/valuesets/:vs/values", s.setValueSetValues)
	doc.PUT("/valuesets/:vs/variances/:field", s.patchVariance)
	doc.GET("/compare", s.compare)

	doc.GET("/ratings", s.listRatings)
	doc.POST("/ratings", s.createRatings)
	doc.PATCH("/ratings/:block", s.updateRatings)
	doc.DELETE("/ratings/:block", s.deleteRatings)
	doc.POST("/ratings/:block/lock", s.lockRatings)
	doc.POST("/ratings/:block/unlock", s.requireOperator(), s.unlockRatings)
}
