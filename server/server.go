// Package server exposes the operational HTTP surface: liveness, readiness,
// a status summary of recent moderation actions, and Prometheus metrics.
package server

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	db *sql.DB
}

// New builds the HTTP handler. db may be nil; readiness then reports degraded
// and status omits persisted history.
func New(db *sql.DB) http.Handler {
	s := &Server{db: db}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	return withCorrelation(mux)
}
