package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"bilancio/internal/auth"
	"bilancio/internal/events"
	applog "bilancio/internal/log"
	"bilancio/internal/middleware/cors"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
	appweb "bilancio/web"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 60 * time.Second
	staticMaxAge      = 86400
	maxRecentLimit    = 100
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the application services the handlers call into.
type Services struct {
	Accounts     *services.AccountService
	Transactions *services.TransactionService
	Categories   *services.CategoryService
	Budgets      *services.BudgetService
	Families     *services.FamilyService
	Dashboard    *services.DashboardService
	Reports      *services.ReportService
}

type Config struct {
	Addr            string
	RateLimitPerMin int
	AllowedOrigins  string
	SecureCookies   bool
	TrustedProxies  []string
	CurrencySymbol  string
	Logger          *applog.Logger
}

type Server struct {
	http.Server
	svc       Services
	issuer    *auth.Issuer
	hub       *events.Hub
	store     Pinger
	templates *template.Template
	logger    *applog.Logger
	secure    bool
	currency  string

	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(cfg Config, svc Services, issuer *auth.Issuer, hub *events.Hub, store Pinger) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		svc:      svc,
		issuer:   issuer,
		hub:      hub,
		store:    store,
		logger:   logger,
		secure:   cfg.SecureCookies,
		currency: cfg.CurrencySymbol,
		detector: security.NewDetector(),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMin,
		}),
	}
	for _, cidr := range cfg.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}
	if s.currency == "" {
		s.currency = DefaultCurrencySymbol
	}
	s.tracer = trace.NewMiddleware(s.detector.ExtractClientIP, applog.NewStructuredLogger(logger))

	// Parse embedded templates at startup.
	t, err := template.New("").Funcs(templateFuncs(s.currency)).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", "error", err)
	} else {
		s.templates = t
	}

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(cfg),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

func (s *Server) routes(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.CleanPath)
	r.Use(applog.Middleware(s.logger))
	r.Use(s.tracer.Middleware)
	r.Use(applog.RequestIDMiddleware(func(r *http.Request) string { return trace.GetRequestID(r.Context()) }))
	r.Use(s.detector.Middleware)
	if origins := strings.TrimSpace(cfg.AllowedOrigins); origins != "" {
		r.Use(cors.Middleware(origins))
	}
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "too many requests"})
	}))

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if static, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		r.With(security.StaticAssetMiddleware(staticMaxAge)).
			Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	}
	r.Get("/", s.handleIndex)

	r.Route("/ui", func(r chi.Router) {
		r.Use(s.issuer.Middleware)
		r.Get("/overview", s.handleOverviewPartial)
		r.Post("/transactions", s.handleCreateTransactionForm)
		r.Post("/transactions/{id}/delete", s.handleDeleteTransactionForm)
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)

		r.Group(func(r chi.Router) {
			r.Use(s.issuer.Middleware)
			r.Get("/auth/me", s.handleMe)

			r.Get("/transactions", s.handleListTransactions)
			r.Post("/transactions", s.handleCreateTransaction)
			r.Get("/transactions/recent", s.handleRecentTransactions)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)

			r.Get("/categories", s.handleListCategories)
			r.Post("/categories", s.handleCreateCategory)
			r.Delete("/categories/{id}", s.handleDeleteCategory)

			r.Get("/budgets/{month}", s.handleGetBudget)
			r.Put("/budgets/{month}", s.handleSetBudget)
			r.Get("/budgets/{month}/progress", s.handleBudgetProgress)

			r.Get("/family", s.handleMyFamily)
			r.Post("/family", s.handleCreateFamily)
			r.Post("/family/members", s.handleAddMember)
			r.Delete("/family/members/{userID}", s.handleRemoveMember)

			r.Get("/dashboard", s.handleDashboard)

			r.Get("/reports/{month}", s.handleReport)
			r.Post("/reports/{month}/sheets", s.handleExportSheets)

			r.Get("/events", s.handleEvents)
		})
	})

	return r
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
