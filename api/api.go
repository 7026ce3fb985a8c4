package api

import (
	_ "embed"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-openapi/runtime/middleware"

	"github.com/jmcleod/portcullis/gate"
	"github.com/jmcleod/portcullis/login"
	"github.com/jmcleod/portcullis/session"
)

// API holds the dependencies needed by the REST handlers.
type API struct {
	machine  *login.Machine
	sessions *session.Manager
	rules    gate.Rules
	logger   *slog.Logger
	audit    *auditLogger
	alertFn  AlertFunc
}

//go:embed openapi.yaml
var openapiSpec []byte

// Option configures the API instance.
type Option func(*API)

// WithLogger sets the structured logger for audit events.
// If not set, a default JSON logger writing to stderr is used.
func WithLogger(logger *slog.Logger) Option {
	return func(a *API) {
		a.logger = logger
	}
}

// WithRules sets the gate rules used to validate post-login return paths.
func WithRules(rules gate.Rules) Option {
	return func(a *API) {
		a.rules = rules
	}
}

// WithAlertFunc sets the callback for anomaly alerts. By default alerts are
// logged at warn level.
func WithAlertFunc(fn AlertFunc) Option {
	return func(a *API) {
		a.alertFn = fn
	}
}

// New creates a new API instance.
func New(machine *login.Machine, sessions *session.Manager, opts ...Option) *API {
	a := &API{
		machine:  machine,
		sessions: sessions,
		rules:    gate.DefaultRules(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))
	}
	if a.alertFn == nil {
		logger := a.logger
		a.alertFn = func(e AlertEvent) {
			logger.Warn("security alert", "type", string(e.Type), "count", e.Count, "threshold", e.Threshold)
		}
	}
	a.audit = newAuditLogger(a.logger)
	a.audit.metrics = newMetricsCollector(a.alertFn)
	return a
}

// Router returns a chi.Router with all API routes mounted. It is meant to be
// mounted at /api.
func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})

	r.Handle("/docs*", middleware.SwaggerUI(middleware.SwaggerUIOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/docs",
	}, nil))

	r.Handle("/redoc*", middleware.Redoc(middleware.RedocOpts{
		SpecURL: "/api/openapi.yaml",
		Path:    "api/redoc",
	}, nil))

	r.Route("/auth", func(r chi.Router) {
		r.Use(noStore)
		r.Post("/login", a.Login)
		r.Post("/logout", a.Logout)
		r.Get("/session", a.Session)
	})

	return r
}
