package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/canopyops/portal/internal/auth"
	"github.com/canopyops/portal/internal/config"
	"github.com/canopyops/portal/internal/db/models"
	portalmw "github.com/canopyops/portal/internal/middleware"
	"github.com/canopyops/portal/internal/pgrole"
	"github.com/canopyops/portal/internal/services/identity"
	"github.com/canopyops/portal/internal/telemetry"
)

// RouterOptions controls construction of the portal HTTP router.
// The zero value is valid; route groups whose dependencies are nil are
// simply not mounted.
type RouterOptions struct {
	Identity     *identity.Service
	RelyingParty *auth.RelyingParty
	Guard        *pgrole.Guard
	Metrics      *telemetry.AuthMetrics
	Cfg          *config.Config

	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
	ExtraRoutes   func(chi.Router)
}

// DefaultCORSOptions returns the shared development CORS policy.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173",
			"http://127.0.0.1:5173",
		},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles the chi router with shared middleware and the portal's
// route groups. Each group is bound to exactly one authentication strategy at
// registration time.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	// Baseline middleware shared across entrypoints.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	secureCookies := false
	fallbackURL := "/"
	if opts.Cfg != nil {
		secureCookies = httpsServer(opts.Cfg.ServerURL)
		if opts.Cfg.LogoutFallbackURL != "" {
			fallbackURL = opts.Cfg.LogoutFallbackURL
		}
	}

	// Browser login flow against the external provider.
	if opts.RelyingParty != nil && opts.Identity != nil {
		r.Get("/auth/sso/login", HandleSSOLogin(opts.RelyingParty))
		r.Get("/auth/sso/callback", HandleSSOCallback(opts.RelyingParty, opts.Identity, secureCookies))
	}

	if opts.Identity != nil {
		// Logout rides the session strategy alone: only the cookie names
		// the session to kill.
		r.Group(func(r chi.Router) {
			r.Use(portalmw.Authenticate(opts.Identity, identity.StrategySession, opts.Metrics))
			logout := HandleLogout(opts.Identity, fallbackURL, secureCookies)
			// GET serves provider-initiated logout and plain browser links.
			r.Post("/auth/logout", logout)
			r.Get("/auth/logout", logout)
		})

		// Browser and API surface: bearer token or session cookie.
		r.Route("/api", func(r chi.Router) {
			r.Use(portalmw.Authenticate(opts.Identity, identity.StrategyHybrid, opts.Metrics))
			if opts.Guard != nil {
				r.Use(portalmw.DatabaseRoleScope(opts.Guard))
			}

			r.Get("/auth/whoami", HandleWhoAmI())

			r.Group(func(r chi.Router) {
				r.Use(portalmw.RequireRole(auth.RoleStaff))
				r.Get("/staff/ping", handlePing)
			})
			r.Group(func(r chi.Router) {
				r.Use(portalmw.RequireRole(auth.RoleAdmin))
				r.Get("/admin/ping", handlePing)
			})
		})

		// Proxy-fronted surface: identity headers injected by the load
		// balancer, anonymous passage allowed and decided per route.
		r.Route("/portal", func(r chi.Router) {
			r.Use(portalmw.Authenticate(opts.Identity, identity.StrategyHeader, opts.Metrics))
			if opts.Guard != nil {
				r.Use(portalmw.DatabaseRoleScope(opts.Guard))
			}

			r.Get("/whoami", HandleWhoAmI())

			r.Group(func(r chi.Router) {
				r.Use(portalmw.RequireRole(auth.RoleCustomer))
				r.Get("/ping", handlePing)
			})
		})

		// Machine surface: pre-shared service secrets only.
		r.Route("/hooks", func(r chi.Router) {
			r.Use(portalmw.Authenticate(opts.Identity, identity.StrategyServiceToken, opts.Metrics))

			r.With(portalmw.RequireServiceType(models.ServiceTypeSlackBot)).
				Post("/slack/events", handlePing)
			r.With(portalmw.RequireServiceType(models.ServiceTypeCICD)).
				Post("/ci/deployments", handlePing)
			r.With(portalmw.RequireServiceType(models.ServiceTypeMonitoring)).
				Get("/monitoring/status", handlePing)
		})
	}

	if opts.ExtraRoutes != nil {
		opts.ExtraRoutes(r)
	}

	return r
}

// NewH2CHandler wraps the router with an h2c server to provide HTTP/2 over
// cleartext for clients behind the load balancer.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}

func handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func httpsServer(serverURL string) bool {
	return len(serverURL) >= 8 && serverURL[:8] == "https://"
}
