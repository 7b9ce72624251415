package rest

import (
	"net/http"

	"github.com/klauspost/compress/gzhttp"
	"github.com/robalyx/legalgate/internal/database"
	"github.com/robalyx/legalgate/internal/gate"
	"github.com/robalyx/legalgate/internal/grace"
	"github.com/robalyx/legalgate/internal/rest/handler"
	"github.com/robalyx/legalgate/internal/rest/middleware/admin"
	"github.com/robalyx/legalgate/internal/rest/middleware/protect"
	"github.com/robalyx/legalgate/internal/rest/middleware/ratelimit"
	"github.com/robalyx/legalgate/internal/rest/middleware/requestinfo"
	"github.com/robalyx/legalgate/internal/rest/respond"
	"github.com/robalyx/legalgate/internal/setup/config"
	"github.com/uptrace/bunrouter"
	"go.uber.org/zap"
)

// Server implements the REST API service.
type Server struct {
	documentHandler *handler.DocumentHandler
	userHandler     *handler.UserHandler
	auditHandler    *handler.AuditHandler
}

// Dependencies are the services the REST server is built from.
type Dependencies struct {
	Documents handler.Documents
	Ages      handler.Ages
	Consents  handler.Consents
	Audit     handler.Audit
	Evaluator protect.Evaluator
	Grace     grace.Store
}

// DependenciesFromClient wires the database-backed services and the gate evaluator.
func DependenciesFromClient(db database.Client, graceStore grace.Store, logger *zap.Logger) Dependencies {
	services := db.Service()

	return Dependencies{
		Documents: services.Document(),
		Ages:      services.Age(),
		Consents:  services.Consent(),
		Audit:     services.Audit(),
		Evaluator: gate.NewEvaluator(gate.NewDatabaseSource(db), logger),
		Grace:     graceStore,
	}
}

// NewServer creates a new REST API server.
func NewServer(deps Dependencies, cfg *config.API, logger *zap.Logger) http.Handler {
	responder := respond.New(cfg.SupportContact, logger)

	// Create middleware instances
	requestInfo := requestinfo.New(logger)
	adminMiddleware := admin.New(cfg.AdminToken, logger)
	protectMiddleware := protect.New(deps.Evaluator, responder, logger)
	rateLimit := ratelimit.New(cfg.RateLimit, responder, logger)

	server := &Server{
		documentHandler: handler.NewDocumentHandler(deps.Documents, adminMiddleware.IsAdmin, responder, logger),
		userHandler: handler.NewUserHandler(
			deps.Ages, deps.Consents, deps.Audit, deps.Evaluator, deps.Grace,
			adminMiddleware.IsAdmin, responder, logger,
		),
		auditHandler: handler.NewAuditHandler(deps.Audit, responder, logger),
	}

	router := bunrouter.New()

	router.GET("/healthz", func(w http.ResponseWriter, _ bunrouter.Request) error {
		w.WriteHeader(http.StatusNoContent)
		return nil
	})

	router.Use(requestInfo.AsRESTMiddleware).WithGroup("/v1", func(g *bunrouter.Group) {
		// Public document access
		g.GET("/documents/:type", server.documentHandler.History)
		g.GET("/documents/:type/active", server.documentHandler.GetActive)
		g.GET("/documents/:type/versions/:version", server.documentHandler.GetVersion)

		// Self-service routes, also open to operators
		g.GET("/users/:id/age-verification", server.userHandler.GetAge)
		g.GET("/users/:id/consent", server.userHandler.ConsentHistory)
		g.GET("/users/:id/status", server.userHandler.Status)

		// Evidence writes are throttled per client IP
		writes := g.Use(rateLimit.AsRESTMiddleware)
		writes.POST("/documents/views", server.documentHandler.RecordView)
		writes.POST("/users/:id/age-verification", server.userHandler.VerifyAge)
		writes.POST("/users/:id/consent", server.userHandler.AcceptTerms)
		writes.POST("/users/:id/revocations", server.userHandler.Revoke)
		writes.POST("/users/:id/rejections", server.userHandler.Reject)
		writes.POST("/users/:id/opt-outs", server.userHandler.OptOut)
		writes.POST("/users/:id/deletion-requests", server.userHandler.RequestDeletion)
		writes.POST("/users/:id/views", server.documentHandler.RecordView)

		// Operator routes
		ops := g.Use(adminMiddleware.AsRESTMiddleware)
		ops.POST("/admin/documents", server.documentHandler.Publish)
		ops.POST("/users/:id/reverification", server.userHandler.RequireReverification)
		ops.GET("/audit", server.auditHandler.Query)

		// Routes that require an admitted user
		g.Use(protectMiddleware.AsRESTMiddleware).GET("/protected/ping",
			func(w http.ResponseWriter, req bunrouter.Request) error {
				return responder.JSON(w, http.StatusOK, map[string]string{
					"userId": requestinfo.PrincipalFromContext(req.Context()),
				})
			})
	})

	// Add gzip compression
	return gzhttp.GzipHandler(router)
}
