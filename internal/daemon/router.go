package daemon

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"embysub/internal/api"
	"embysub/internal/auth"
	"embysub/internal/logging"
	"embysub/internal/metrics"
	"embysub/internal/services"
)

const correlationHeader = "X-Request-ID"

func (d *Daemon) routes() http.Handler {
	cfg := d.cfg
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(correlationID)
	r.Use(d.observe)
	if origins := cfg.Server.CORSAllowedOrigins; len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", correlationHeader},
			ExposedHeaders:   []string{correlationHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/api_health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(d.logger, w, http.StatusOK, api.Message{Message: "Welcome to Emby Subscription Manager API"})
	})
	if cfg.Server.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route(cfg.Server.APIPrefix, func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			if limit := cfg.Server.LoginRateLimit; limit > 0 {
				window := time.Duration(cfg.Server.LoginRateWindow) * time.Second
				r.With(httprate.Limit(limit, window,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(d.rateLimited),
				)).Post("/login", d.handleLogin)
			} else {
				r.Post("/login", d.handleLogin)
			}
			r.With(d.auth.Middleware).Get("/me", d.handleMe)
		})

		r.Route("/media", func(r chi.Router) {
			r.Get("/emby-image/{itemID}", d.handleEmbyImage)
			r.Get("/tmdb-image/{size}/*", d.handleCatalogImage)
			r.Group(func(r chi.Router) {
				r.Use(d.auth.Middleware)
				r.Get("/trending", d.handleTrending)
				r.Get("/latest", d.handleLatest)
				r.Get("/search", d.handleSearch)
				r.Get("/anime", d.handleAnime)
				r.Get("/person/{personID}", d.handlePerson)
				r.Get("/tv/{tmdbID}/season/{season}", d.handleSeason)
				r.Get("/{mediaType}/{tmdbID}", d.handleDetails)
			})
		})

		r.Route("/requests", func(r chi.Router) {
			r.Use(d.auth.Middleware)
			r.Post("/", d.handleCreateRequest)
			r.Get("/", d.handleListRequests)
			r.Delete("/{tmdbID}", d.handleCancelRequest)
			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Put("/{requestID}/approve", d.handleApprove)
				r.Put("/{requestID}/reject", d.handleReject)
			})
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Use(d.auth.Middleware)
			r.Get("/", d.handleListNotifications)
			r.Put("/{notificationID}/read", d.handleMarkRead)
		})

		r.With(d.auth.Middleware, auth.RequireAdmin).Get("/status", d.handleStatus)
		r.With(d.auth.Middleware, auth.RequireAdmin).Post("/reconcile", d.handleReconcile)
	})

	if dir := strings.TrimSpace(cfg.Server.StaticDir); dir != "" {
		r.NotFound(spaHandler(dir))
	}
	return r
}

func correlationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(services.WithRequestID(r.Context(), id)))
	})
}

// observe records request metrics labelled by route pattern and logs each request at debug.
func (d *Daemon) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(r.Method, route, status, elapsed)
		logging.WithContext(r.Context(), d.logger).Debug("http request",
			logging.String("method", r.Method),
			logging.String("route", route),
			logging.Int("status", status),
			logging.Duration("duration", elapsed),
		)
	})
}

func (d *Daemon) rateLimited(w http.ResponseWriter, r *http.Request) {
	metrics.APIRateLimitHits.WithLabelValues(r.URL.Path).Inc()
	writeError(d.logger, w, http.StatusTooManyRequests, "Too many login attempts, try again later")
}

// spaHandler serves files from dir, falling back to index.html for client-side routes.
func spaHandler(dir string) http.HandlerFunc {
	files := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}
		clean := filepath.Clean("/" + r.URL.Path)
		if info, err := os.Stat(filepath.Join(dir, clean)); err == nil && !info.IsDir() {
			files.ServeHTTP(w, r)
			return
		}
		index := filepath.Join(dir, "index.html")
		if _, err := os.Stat(index); err != nil {
			writeJSON(nil, w, http.StatusOK, api.Message{Message: "Frontend not found"})
			return
		}
		http.ServeFile(w, r, index)
	}
}
