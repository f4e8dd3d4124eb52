package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	auth "github.com/mind-engage/mindengage-participation/internal/auth/middleware"
	"github.com/mind-engage/mindengage-participation/internal/classroom"
	"github.com/mind-engage/mindengage-participation/internal/rbac"
	syncx "github.com/mind-engage/mindengage-participation/internal/sync"
)

type Deps struct {
	Service     *classroom.Service
	Auth        *auth.AuthService
	Credentials auth.CredentialChecker
	Events      *syncx.EventRepo // optional
	Log         logrus.FieldLogger
	Ready       func(ctx context.Context) error // optional readiness probe
}

// NewRouter mounts every route. Extra middleware (CORS, for instance) runs
// before the built-in stack.
func NewRouter(d Deps, extra ...func(http.Handler) http.Handler) chi.Router {
	log := d.Log
	if log == nil {
		log = discard
	}
	svc := d.Service

	r := chi.NewRouter()
	r.Use(extra...)
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/auth/login", auth.LoginHandler(d.Auth, d.Credentials, log))

	// Protected API (JWT → role in context → RBAC)
	r.Group(func(pr chi.Router) {
		pr.Use(auth.JWTMiddleware(d.Auth))

		pr.With(rbac.Require(rbac.PermClassView)).Get("/classes", ListClassesHandler(svc))
		pr.With(rbac.Require(rbac.PermClassCreate)).Post("/classes", CreateClassHandler(svc))

		pr.Route("/classes/{classID}", func(cr chi.Router) {
			cr.With(rbac.Require(rbac.PermRosterWrite)).Post("/roster", CreateRosterHandler(svc))

			cr.With(rbac.Require(rbac.PermClassView)).Get("/weeks/{week}", GetWeekHandler(svc))
			cr.With(rbac.Require(rbac.PermWeekWrite)).Post("/weeks/{week}", SaveWeekHandler(svc))
			cr.With(rbac.Require(rbac.PermAnalyze)).Post("/weeks/{week}/transcript", AnalyzeTranscriptHandler(svc))
			cr.With(rbac.Require(rbac.PermAnalyze)).Post("/weeks/{week}/transcript/reanalyze", ReanalyzeHandler(svc))

			cr.With(rbac.Require(rbac.PermClassView)).Get("/aliases", ListAliasesHandler(svc))
			cr.With(rbac.Require(rbac.PermAliasWrite)).Put("/aliases", PutAliasesHandler(svc))

			cr.With(rbac.Require(rbac.PermGradesView)).Get("/grades", GetGradesHandler(svc))
			cr.With(rbac.Require(rbac.PermGradesWrite)).Post("/grades", UpdateGradesHandler(svc))
			cr.With(rbac.RequireAny(rbac.PermGradesView, rbac.PermClassView)).Get("/summary", SummaryHandler(svc))
		})

		if d.Events != nil {
			pr.With(rbac.Require(rbac.PermEventsView)).Get("/events", ListEventsHandler(d.Events))
		}
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				LoggerFrom(r).WithError(err).Warn("not ready")
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return r
}
