package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/egibi/tierd/internal/errors"
	"github.com/egibi/tierd/internal/tiering"
)

// defaultAuditLimit bounds the audit listing when the caller does not ask
// for a specific count.
const defaultAuditLimit = 50

var serverStart = time.Now()

// HealthResponse reports daemon liveness.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Uptime: time.Since(serverStart).Round(time.Second).String(),
	})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Config(r.Context()))
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg tiering.TieringConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		respondErrorString(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	saved, err := s.svc.SaveConfig(r.Context(), cfg)
	if err != nil {
		if errors.IsValidation(err) {
			respondError(w, http.StatusBadRequest, err)
		} else {
			respondError(w, http.StatusInternalServerError, err)
		}
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Status(r.Context()))
}

func (s *Server) handlePartitions(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.Partitions(r.Context()))
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	var req tiering.ArchiveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondErrorString(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}
	for _, name := range req.Partitions {
		if !tiering.IsMonthKey(name) {
			respondErrorString(w, http.StatusBadRequest, "invalid partition name "+strconv.Quote(name))
			return
		}
	}

	respondResult(w, s.svc.Archive(r.Context(), req))
}

// RestoreRequest names the archived partition to bring back.
type RestoreRequest struct {
	Partition string `json:"partition"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondErrorString(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if !tiering.IsMonthKey(req.Partition) {
		respondErrorString(w, http.StatusBadRequest, "invalid partition name "+strconv.Quote(req.Partition))
		return
	}

	respondResult(w, s.svc.Restore(r.Context(), req.Partition))
}

func (s *Server) handleCleanupTokens(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.svc.CleanupTokens(r.Context()))
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	backups := s.svc.ListBackups(r.Context())
	if backups == nil {
		backups = []tiering.BackupInfo{}
	}
	respondJSON(w, http.StatusOK, backups)
}

func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	respondResult(w, s.svc.Backup(r.Context()))
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondErrorString(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries := s.svc.Audit(r.Context(), limit)
	if entries == nil {
		entries = []tiering.LogEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// respondResult maps an operation outcome onto a status code: the outcome
// body is always returned, failed operations with 500 so unattended callers
// notice.
func respondResult(w http.ResponseWriter, result tiering.OperationResult) {
	status := http.StatusOK
	if !result.Success {
		status = http.StatusInternalServerError
	}
	respondJSON(w, status, result)
}
