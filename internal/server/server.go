package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/prospector/internal/auth"
	"github.com/dukerupert/prospector/internal/billing"
	"github.com/dukerupert/prospector/internal/gate"
	"github.com/dukerupert/prospector/internal/generator"
	"github.com/dukerupert/prospector/internal/handler"
	"github.com/dukerupert/prospector/internal/middleware"
	"github.com/dukerupert/prospector/internal/plan"
	"github.com/dukerupert/prospector/internal/store"
	"github.com/dukerupert/prospector/internal/trial"
	"github.com/dukerupert/prospector/internal/validate"
)

type Config struct {
	Verifier        *auth.Verifier
	AdminToken      string
	RateLimit       int
	RateLimitWindow time.Duration
}

type Server struct {
	healthH   *handler.HealthHandler
	trialH    *handler.TrialHandler
	usageH    *handler.UsageHandler
	generateH *handler.GenerateHandler
	gate      *gate.Gate
	checkoutH *handler.CheckoutHandler
	webhookH  *handler.WebhookHandler

	requireAuth  func(http.Handler) http.Handler
	requireAdmin func(http.Handler) http.Handler
	rateLimiter  *middleware.RateLimiter
	rateLimit    int
	rateWindow   time.Duration
	logger       *slog.Logger
}

func New(s store.Store, catalog *plan.Catalog, payments handler.Payments, gen generator.Generator, cfg Config, logger *slog.Logger) *Server {
	v := validate.New()
	g := gate.New(s, catalog, logger.With("component", "gate"))
	trials := trial.NewManager(s, catalog, logger.With("component", "trial"))
	sync := billing.NewSynchronizer(s, catalog, logger.With("component", "billing"))

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 30
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}

	return &Server{
		healthH:      handler.NewHealthHandler(s, logger.With("component", "health")),
		trialH:       handler.NewTrialHandler(trials, logger.With("component", "trial_handler")),
		usageH:       handler.NewUsageHandler(g, catalog, logger.With("component", "usage")),
		generateH:    handler.NewGenerateHandler(gen, v, logger.With("component", "generate")),
		gate:         g,
		checkoutH:    handler.NewCheckoutHandler(payments, s, catalog, v, logger.With("component", "checkout")),
		webhookH:     handler.NewWebhookHandler(payments, sync, catalog, logger.With("component", "webhook")),
		requireAuth:  middleware.RequireAuth(cfg.Verifier),
		requireAdmin: middleware.RequireAdmin(cfg.AdminToken),
		rateLimiter:  middleware.NewRateLimiter(),
		rateLimit:    cfg.RateLimit,
		rateWindow:   cfg.RateLimitWindow,
		logger:       logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthH.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /plans", s.usageH.Plans)

	// Stripe calls this directly; the signature is the authentication.
	mux.HandleFunc("POST /billing/webhook", s.webhookH.HandleStripeWebhook)

	// Authenticated routes
	mux.Handle("POST /trial", s.authed(s.trialH.Start))
	mux.Handle("GET /usage", s.authed(s.usageH.Usage))
	generate := s.generateH.ParseRequest(s.metered(handler.ActionGenerate, s.generateH.Generate))
	mux.Handle("POST /generate", s.authed(s.rateLimited(generate.ServeHTTP)))
	mux.Handle("POST /billing/checkout", s.authed(s.rateLimited(s.checkoutH.CreateCheckoutSession)))
	mux.Handle("POST /billing/portal", s.authed(s.checkoutH.BillingPortal))

	// Support
	mux.Handle("POST /admin/trials/{userID}/restore", s.requireAdmin(http.HandlerFunc(s.trialH.Restore)))

	logged := middleware.RequestLogger(s.logger.With("component", "http"))(mux)
	return middleware.RequestID(logged)
}

func (s *Server) authed(h http.HandlerFunc) http.Handler {
	return s.requireAuth(h)
}

// metered charges one generation per request through the entitlement gate.
func (s *Server) metered(action string, h http.HandlerFunc) http.Handler {
	return gate.Middleware(s.gate, action, func(r *http.Request) string {
		return auth.UserID(r.Context())
	})(h)
}

// rateLimited must sit inside authed so callers are keyed by user id.
func (s *Server) rateLimited(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.UserOrIP, s.rateLimit, s.rateWindow)
	return rl(h).ServeHTTP
}
