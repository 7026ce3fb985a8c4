// Package server assembles the portcullis components from configuration into
// the handlers served by the server and gate commands.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jmcleod/portcullis/api"
	"github.com/jmcleod/portcullis/credential"
	"github.com/jmcleod/portcullis/gate"
	"github.com/jmcleod/portcullis/internal/config"
	"github.com/jmcleod/portcullis/login"
	"github.com/jmcleod/portcullis/session"
	"github.com/jmcleod/portcullis/storage"
	bboltstorage "github.com/jmcleod/portcullis/storage/bbolt"
	"github.com/jmcleod/portcullis/storage/memory"
	"github.com/jmcleod/portcullis/storage/postgres"
	"github.com/jmcleod/portcullis/token"
	"github.com/jmcleod/portcullis/web"
)

// App holds the wired components of a running portcullis process.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Repo     storage.Repository
	Store    *credential.Store
	Hasher   credential.Hasher
	Signer   *token.Signer
	Sessions *session.Manager
	Machine  *login.Machine

	closeRepo func()
}

// New opens the configured credential store and wires the session and login
// components on top of it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	signer, sessions, err := NewSessions(cfg, logger)
	if err != nil {
		return nil, err
	}
	repo, closeRepo, err := OpenRepository(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	hasher, err := NewHasher(cfg)
	if err != nil {
		closeRepo()
		return nil, err
	}
	store := credential.NewStore(repo)
	machine, err := login.NewMachine(store, hasher, sessions,
		login.WithDefaultCredentials(cfg.Auth.DefaultUsername, cfg.Auth.DefaultPassword),
		login.WithLogger(logger),
	)
	if err != nil {
		closeRepo()
		return nil, err
	}
	return &App{
		Config:    cfg,
		Logger:    logger,
		Repo:      repo,
		Store:     store,
		Hasher:    hasher,
		Signer:    signer,
		Sessions:  sessions,
		Machine:   machine,
		closeRepo: closeRepo,
	}, nil
}

// Close releases the credential store.
func (a *App) Close() {
	if a.closeRepo != nil {
		a.closeRepo()
	}
}

// NewSessions builds the signer and session manager from configuration. It
// is all the gate proxy needs.
func NewSessions(cfg *config.Config, logger *slog.Logger) (*token.Signer, *session.Manager, error) {
	signer, err := token.NewSigner(cfg.SessionSecret())
	if err != nil {
		return nil, nil, fmt.Errorf("creating session signer: %w", err)
	}
	sessions := session.NewManager(signer,
		session.WithLifetime(cfg.Auth.SessionLifetime),
		session.WithSecureCookies(!cfg.Development()),
		session.WithLogger(logger),
	)
	return signer, sessions, nil
}

// NewHasher returns the configured password hasher.
func NewHasher(cfg *config.Config) (credential.Hasher, error) {
	params, err := cfg.Argon2idParams()
	if err != nil {
		return nil, err
	}
	return credential.NewHasher(cfg.Auth.PasswordHash, params)
}

// OpenRepository opens the configured storage backend. The returned func
// closes it.
func OpenRepository(ctx context.Context, cfg config.StorageConfig) (storage.Repository, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.NewRepository(), func() {}, nil
	case config.DriverPostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	case config.DriverBbolt, "":
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(cfg.Path, nil)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open credential storage: %w", err)
		}
		return repo, func() { repo.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// Handler returns the full server handler: the auth API under /api, the
// embedded site, and the route gate in front of both.
func (a *App) Handler() (http.Handler, error) {
	rules := a.Config.GateRules()

	apiHandler := api.New(a.Machine, a.Sessions,
		api.WithLogger(a.Logger),
		api.WithRules(rules),
	)
	webHandler, err := web.Handler(
		web.Routes{LoginPath: rules.LoginPath, AdminPath: rules.ProtectedPrefix},
		func(r *http.Request) string {
			c, _ := gate.ClaimsFromContext(r.Context())
			return c.Username
		},
	)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.SecurityHeaders)
	r.Use(gate.Middleware(rules, a.Sessions, a.Logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Mount("/api", apiHandler.Router())
	r.Handle("/*", webHandler)
	return r, nil
}

// GateHandler returns the edge proxy handler: the route gate in front of a
// reverse proxy to upstream.
func GateHandler(rules gate.Rules, sessions gate.SessionReader, upstream *url.URL, logger *slog.Logger) http.Handler {
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.SetXForwarded()
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("upstream request failed", "path", r.URL.Path, "error", err)
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(gate.Middleware(rules, sessions, logger))
	r.Handle("/*", proxy)
	return r
}
