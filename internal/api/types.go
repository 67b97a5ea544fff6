package api

import (
	"vpn-analytics/internal/stats"
	"vpn-analytics/internal/storage"
)

// HomeResponse is the response of the root endpoint.
type HomeResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// TrackResponse is the response of the track endpoint.  It is also used for
// errors of every endpoint.
type TrackResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Success bool   `json:"success"`
}

// StatsResponse is the response of the stats endpoint.
type StatsResponse struct {
	Stats   *stats.Snapshot `json:"stats"`
	Success bool            `json:"success"`
}

// DashboardResponse is the response of the dashboard endpoint.
type DashboardResponse struct {
	Dashboard *stats.Dashboard `json:"dashboard"`
	Success   bool             `json:"success"`
}

// History is the rollup history for a date range.
type History struct {
	Records     map[string]*storage.Rollup `json:"records"`
	Granularity string                     `json:"granularity"`
	Keys        []string                   `json:"keys"`
}

// HistoryResponse is the response of the history endpoint.
type HistoryResponse struct {
	History *History `json:"history"`
	Success bool     `json:"success"`
}

// errorResponse returns the error body with msg.
func errorResponse(msg string) (resp *TrackResponse) {
	return &TrackResponse{
		Error:   msg,
		Success: false,
	}
}
