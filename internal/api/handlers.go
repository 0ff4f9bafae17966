package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prochub/prochub/internal/dispatch"
	"github.com/prochub/prochub/internal/plugin"
	"github.com/prochub/prochub/internal/procerr"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ready := s.runtime.Ready()
	status := "ok"
	code := http.StatusOK
	if !ready {
		status = "starting"
		code = http.StatusServiceUnavailable
	}

	respondJSON(w, code, HealthzResponse{
		Status:        status,
		Ready:         ready,
		UptimeSeconds: int64(s.runtime.Uptime().Seconds()),
		ProcessCount:  s.inventory.Size(),
		VersionCount:  s.inventory.TotalVersionCount(),
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	operation := chi.URLParam(r, "operation")

	var req ExecuteRequest
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	p, _ := principalFromContext(r.Context())
	session := p.Session
	// A token bound to one tenant may only execute as that tenant.
	if session.TenantID != "" && session.TenantID != tenant {
		s.writeError(w, http.StatusForbidden, "token is not valid for tenant "+tenant)
		return
	}
	session.TenantID = tenant

	rec, err := s.dispatcher.ExecuteAs(r.Context(), session, dispatch.Call{
		TenantID:    tenant,
		OperationID: operation,
		ProductID:   req.ProductID,
		Channel:     req.Channel,
		Version:     req.Version,
		Payload:     req.Payload,
	})
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, ExecuteResponse{
		ExecutionID: rec.ExecutionID,
		ProcessID:   rec.ProcessID,
		Version:     rec.Version,
		Vanilla:     rec.Vanilla,
		ElapsedMs:   rec.ElapsedMs,
		Payload:     rec.Result.Payload,
		Output:      rec.Result.Output,
	})
}

func (s *Server) handleListProcesses(w http.ResponseWriter, r *http.Request) {
	snapshot := s.inventory.Snapshot()
	respondJSON(w, http.StatusOK, ProcessListResponse{
		Processes: snapshot,
		Count:     len(snapshot),
	})
}

func (s *Server) handleGetProcess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "processID")
	info, err := s.inventory.Info(id)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleLoadProcess(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	p, err := s.runtime.LoadPlugin(r.Context(), plugin.Descriptor{
		ProcessID:   req.ProcessID,
		Handle:      req.Handle,
		SourceType:  req.SourceType,
		ForceReload: req.ForceReload,
	})
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, LoadResponse{
		ProcessID: p.ProcessID(),
		Version:   p.Version(),
		Metadata:  p.Metadata(),
	})
}

func (s *Server) handleUnloadProcess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "processID")
	version := r.URL.Query().Get("version")

	if err := s.runtime.UnloadPlugin(id, version); err != nil {
		s.writeDispatchError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvalidateMappings(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	dropped := s.mappings.Invalidate(tenant)
	respondJSON(w, http.StatusOK, InvalidateResponse{TenantID: tenant, Dropped: dropped})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Snapshot())
}

// writeDispatchError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case procerr.IsNotFound(err):
		s.writeError(w, http.StatusNotFound, err.Error())
	case procerr.IsUnauthorized(err):
		s.writeError(w, http.StatusForbidden, err.Error())
	case procerr.IsInvalidDescriptor(err):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case procerr.IsUnavailable(err):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case procerr.IsExecutionFailure(err):
		var ee *procerr.ExecutionError
		errors.As(err, &ee)
		respondJSON(w, http.StatusBadGateway, ErrorResponse{Error: err.Error(), Code: ee.Code})
	default:
		s.logger.Error("unexpected dispatch error", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}
