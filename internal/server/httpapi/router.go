package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Options tune the router middleware.
type Options struct {
	AllowedOrigins []string
	// RateLimit is the number of requests per minute per client IP; zero disables it.
	RateLimit      int
	RequestTimeout time.Duration
	// ServiceName enables otelhttp spans when non-empty.
	ServiceName string
}

// Routes builds the chi router with all endpoints.
func (a *API) Routes(opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(a.metrics.Instrument)

	// credentials are only shared with explicitly listed origins
	allowed, credentials := opts.AllowedOrigins, true
	if len(allowed) == 0 {
		allowed, credentials = []string{"*"}, false
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: credentials,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", a.handleReady)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())

	r.Group(func(r chi.Router) {
		if opts.RateLimit > 0 {
			r.Use(httprate.LimitByIP(opts.RateLimit, time.Minute))
		}
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}

		r.Post("/Signup", a.handleSignup)
		r.Post("/login", a.handleLogin)
		r.Post("/refresh", a.handleRefresh)
		r.Post("/logout", a.handleLogout)

		if a.documents != nil {
			r.Group(func(r chi.Router) {
				r.Use(a.RequireAuth)
				r.Post("/uploadFile", a.handleUpload)
				r.Get("/ShowDocuments", a.handleListDocuments)
				r.Post("/chat", a.handleChat)
			})
		}
	})

	if opts.ServiceName != "" {
		return otelhttp.NewHandler(r, opts.ServiceName)
	}
	return r
}
