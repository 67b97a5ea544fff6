// Package api contains the HTTP API of the service.
package api

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"vpn-analytics/internal/stats"
	"vpn-analytics/internal/storage"
	"vpn-analytics/internal/version"
	"vpn-analytics/pkg/utils"
)

// Config is the configuration of a [Handler].
type Config struct {
	// Logger is used to log requests and failures.  It must not be nil.
	Logger *slog.Logger

	// Store is the event store.  It must not be nil.
	Store *stats.Store

	// Recorder receives every accepted event and serves the history.  It
	// must not be nil.
	Recorder storage.Recorder

	// Metrics collects the API statistics.  It must not be nil.
	Metrics Metrics

	// Gatherer is served on the metrics endpoint.  If nil, the endpoint is
	// not registered.
	Gatherer prometheus.Gatherer

	// MaxBodySize is the maximum size of a track request body, in bytes.  It
	// must be positive.
	MaxBodySize int64

	// TrackRateLimit is the number of track requests allowed per client IP
	// per minute.  Zero disables the limit.
	TrackRateLimit int
}

// Handler serves the API.
type Handler struct {
	logger         *slog.Logger
	store          *stats.Store
	recorder       storage.Recorder
	metrics        Metrics
	gatherer       prometheus.Gatherer
	maxBodySize    int64
	trackRateLimit int
}

// NewHandler returns a new *Handler.  c must not be nil.
func NewHandler(c *Config) (h *Handler) {
	return &Handler{
		logger:         c.Logger,
		store:          c.Store,
		recorder:       c.Recorder,
		metrics:        c.Metrics,
		gatherer:       c.Gatherer,
		maxBodySize:    c.MaxBodySize,
		trackRateLimit: c.TrackRateLimit,
	}
}

// HandleHome handles requests for the root endpoint.
func (h *Handler) HandleHome(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, r, &HomeResponse{
		Message: "VPN Analytics API",
		Version: version.Version(),
		Status:  "online",
	}, http.StatusOK)
}

// HandleTrack records the connection event from the request body.
func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.logger.DebugContext(ctx, "handling track request", "remote_addr", r.RemoteAddr)

	// Read the body, capped at the configured size
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err = fmt.Errorf("%w: body exceeds %d bytes", stats.ErrInvalidPayload, tooLarge.Limit)
		} else {
			err = fmt.Errorf("reading body: %w", err)
		}

		h.rejectTrack(w, r, err)

		return
	}

	ev, err := h.store.Track(body)
	if err != nil {
		h.rejectTrack(w, r, err)

		return
	}

	h.metrics.OnTracked(ctx, h.store.Len())

	// Update the rollups, the event is already stored
	err = h.recorder.RecordConnection(ctx, ev)
	if err != nil {
		h.metrics.OnRollupError(ctx)
		h.logger.WarnContext(ctx, "recording rollup", "event_id", ev.ID, slogutil.KeyError, err)
	}

	sendJSONResponse(w, r, &TrackResponse{
		Message: "Connection tracked",
		Success: true,
	}, http.StatusOK)
}

// rejectTrack responds to a failed track request.
func (h *Handler) rejectTrack(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	h.metrics.OnRejected(ctx)
	h.logger.DebugContext(ctx, "rejected track request", "remote_addr", r.RemoteAddr, slogutil.KeyError, err)

	sendJSONResponse(w, r, errorResponse(err.Error()), http.StatusBadRequest)
}

// HandleStats handles requests for the statistics view.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.logger.DebugContext(r.Context(), "handling stats request", "remote_addr", r.RemoteAddr)

	sendJSONResponse(w, r, &StatsResponse{
		Stats:   h.store.Stats(),
		Success: true,
	}, http.StatusOK)
}

// HandleDashboard handles requests for the dashboard view.
func (h *Handler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	h.logger.DebugContext(r.Context(), "handling dashboard request", "remote_addr", r.RemoteAddr)

	sendJSONResponse(w, r, &DashboardResponse{
		Dashboard: h.store.Dashboard(),
		Success:   true,
	}, http.StatusOK)
}

// HandleHealth handles liveness probes.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSONResponse(w, r, h.store.Health(), http.StatusOK)
}

// HandleHistory handles requests for the rollup history of a date range.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.logger.DebugContext(ctx, "handling history request", "remote_addr", r.RemoteAddr)

	q := r.URL.Query()
	fromStr, toStr := q.Get("from_date"), q.Get("to_date")
	if fromStr == "" || toStr == "" {
		sendJSONResponse(w, r, errorResponse("Missing from_date or to_date parameters"), http.StatusBadRequest)

		return
	}

	fromDate, err := time.Parse(utils.DateLayout, fromStr)
	if err != nil {
		sendJSONResponse(w, r, errorResponse("Invalid from_date format. Use YYYY-MM-DD"), http.StatusBadRequest)

		return
	}

	toDate, err := time.Parse(utils.DateLayout, toStr)
	if err != nil {
		sendJSONResponse(w, r, errorResponse("Invalid to_date format. Use YYYY-MM-DD"), http.StatusBadRequest)

		return
	}

	// Get granularity if provided
	granularity := utils.GranularityDay
	if g := q.Get("granularity"); g != "" {
		granularity = g
	}

	if granularity != utils.GranularityDay && granularity != utils.GranularityHour {
		sendJSONResponse(w, r, errorResponse("Invalid granularity. Use 'day' or 'hour'"), http.StatusBadRequest)

		return
	}

	keys, records, err := h.recorder.History(ctx, fromDate, toDate, granularity)
	switch {
	case err == nil:
		// Go on.
	case errors.Is(err, storage.ErrDisabled):
		sendJSONResponse(w, r, errorResponse(err.Error()), http.StatusServiceUnavailable)

		return
	case errors.Is(err, storage.ErrBadRange):
		sendJSONResponse(w, r, errorResponse(err.Error()), http.StatusBadRequest)

		return
	default:
		h.logger.ErrorContext(ctx, "fetching history", "granularity", granularity, slogutil.KeyError, err)
		sendJSONResponse(w, r, errorResponse("Failed to fetch data: "+err.Error()), http.StatusInternalServerError)

		return
	}

	h.logger.DebugContext(
		ctx,
		"history query",
		"granularity", granularity,
		"from", fromStr,
		"to", toStr,
		"records", len(keys),
	)

	sendJSONResponse(w, r, &HistoryResponse{
		History: &History{
			Records:     records,
			Granularity: granularity,
			Keys:        keys,
		},
		Success: true,
	}, http.StatusOK)
}

// sendJSONResponse writes response as JSON with statusCode.
func sendJSONResponse(w http.ResponseWriter, r *http.Request, response any, statusCode int) {
	render.Status(r, statusCode)
	render.JSON(w, r, response)
}
