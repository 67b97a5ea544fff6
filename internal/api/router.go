package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// API paths.
const (
	PathHome      = "/"
	PathTrack     = "/api/v1/track"
	PathStats     = "/api/v1/stats"
	PathDashboard = "/api/v1/dashboard"
	PathHealth    = "/api/v1/health"
	PathHistory   = "/api/v1/history"
	PathMetrics   = "/metrics"
)

// Routes returns the router serving every API endpoint.
func (h *Handler) Routes() (r chi.Router) {
	r = chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		sendJSONResponse(w, r, errorResponse("Not found"), http.StatusNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		sendJSONResponse(w, r, errorResponse("Method not allowed"), http.StatusMethodNotAllowed)
	})

	r.Get(PathHome, h.HandleHome)
	r.With(h.trackLimiters()...).Post(PathTrack, h.HandleTrack)
	r.Get(PathStats, h.HandleStats)
	r.Get(PathDashboard, h.HandleDashboard)
	r.Get(PathHealth, h.HandleHealth)
	r.Get(PathHistory, h.HandleHistory)

	if h.gatherer != nil {
		r.Method(http.MethodGet, PathMetrics, promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// trackLimiters returns the middlewares limiting the rate of track requests.
func (h *Handler) trackLimiters() (mws []func(http.Handler) http.Handler) {
	if h.trackRateLimit <= 0 {
		return nil
	}

	limiter := httprate.Limit(
		h.trackRateLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			sendJSONResponse(w, r, errorResponse("Rate limit exceeded"), http.StatusTooManyRequests)
		}),
	)

	return []func(http.Handler) http.Handler{limiter}
}
