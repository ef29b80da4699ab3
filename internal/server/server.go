// Package server exposes the lifecycle controller over HTTP.
//
// All mutating operations run synchronously within the request; the response
// carries the full operation outcome, details included. Listing endpoints
// never fail on an unreachable engine or cold disk, they degrade to empty.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/egibi/tierd/internal/logging"
	"github.com/egibi/tierd/internal/tiering"
)

var log = logging.Component("server")

// Server is the daemon's HTTP front end.
type Server struct {
	svc  *tiering.Service
	http *http.Server
}

// New creates a server listening on addr.
func New(addr string, svc *tiering.Service) *Server {
	s := &Server{svc: svc}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute, // archive and backup run within the request
	}
	return s
}

// Router builds the route table. Exposed separately so tests can drive the
// handlers without a listener.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handlePutConfig).Methods(http.MethodPut)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/partitions", s.handlePartitions).Methods(http.MethodGet)
	api.HandleFunc("/archive", s.handleArchive).Methods(http.MethodPost)
	api.HandleFunc("/restore", s.handleRestore).Methods(http.MethodPost)
	api.HandleFunc("/cleanup/tokens", s.handleCleanupTokens).Methods(http.MethodPost)
	api.HandleFunc("/backups", s.handleListBackups).Methods(http.MethodGet)
	api.HandleFunc("/backups", s.handleCreateBackup).Methods(http.MethodPost)
	api.HandleFunc("/audit", s.handleAudit).Methods(http.MethodGet)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	return router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info("http server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info("http server shutting down")
	return s.http.Shutdown(ctx)
}
