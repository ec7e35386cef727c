package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/debitumapp/debitum/api/controllers"
	"github.com/debitumapp/debitum/api/middleware"
	"github.com/debitumapp/debitum/internal/auth"
	"github.com/debitumapp/debitum/internal/eventstore"
	"github.com/debitumapp/debitum/internal/projections"
	"github.com/debitumapp/debitum/internal/wallets"
	"github.com/debitumapp/debitum/pkg/auth/session"
	"github.com/debitumapp/debitum/pkg/config"
	"github.com/debitumapp/debitum/pkg/logger"
	"github.com/debitumapp/debitum/pkg/metrics"
	"github.com/debitumapp/debitum/pkg/redis"
)

// RouterParams bundles everything the router wires together.
type RouterParams struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          *redis.Client
	SessionManager session.AccessSessionChecker
	AuthService    auth.Service
	WalletService  wallets.Service
	EventService   eventstore.Service
	ReadService    projections.Service
	SyncMetrics    *metrics.SyncMetrics
	MetricsHandler func() http.Handler
}

// NewRouter assembles the full HTTP surface.
func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginUsernameLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterUsernameLimit,
	)

	var limiter middleware.RateLimiterStore
	if p.Redis != nil {
		limiter = p.Redis
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": p.DB,
			"redis":    redisPinger(p.Redis),
		}))
	})

	if p.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", p.MetricsHandler())
	} else {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, limiter, logg)).Post("/register", controllers.AuthRegister(p.AuthService, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, limiter, logg)).Post("/login", controllers.AuthLogin(p.AuthService, logg))
		r.With(middleware.Auth(cfg.JWT, p.SessionManager, logg)).Post("/logout", controllers.AuthLogout(p.AuthService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, p.SessionManager, logg))

		r.Route("/wallets", func(r chi.Router) {
			r.Post("/", controllers.WalletsCreate(p.WalletService, logg))
			r.Get("/", controllers.WalletsList(p.WalletService, logg))
			r.Post("/members", controllers.WalletsAddMember(p.WalletService, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.WalletContext(p.WalletService, logg))

			r.Route("/sync", func(r chi.Router) {
				r.Get("/hash", controllers.SyncHash(p.EventService, logg))
				r.Get("/events", controllers.SyncPull(p.EventService, p.SyncMetrics, logg))
				r.Post("/events", controllers.SyncPush(p.EventService, p.SyncMetrics, logg))
				r.Get("/aggregates/{aggregateType}/{aggregateId}/events", controllers.SyncAggregateEvents(p.EventService, logg))
			})

			r.Get("/contacts", controllers.ContactsList(p.ReadService, logg))
			r.Get("/contacts/{contactId}", controllers.ContactsGet(p.ReadService, logg))
			r.Get("/transactions", controllers.TransactionsList(p.ReadService, logg))
			r.Get("/summary", controllers.WalletSummary(p.ReadService, logg))
		})
	})

	return r
}

// redisPinger adapts the optional redis client to the Pinger map without a
// typed-nil footgun.
func redisPinger(client *redis.Client) controllers.Pinger {
	if client == nil {
		return nil
	}
	return client
}
