package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"agent-remediator/internal/record"
	"agent-remediator/internal/remediate"
	"agent-remediator/internal/state"
	"agent-remediator/internal/storage"
)

// RunnerFunc executes one remediation run. Injected so handlers can be
// tested without touching the service manager or installer.
type RunnerFunc func(ctx context.Context, p remediate.Params) *record.ExecutionRecord

type Handlers struct {
	run    RunnerFunc
	db     *storage.DB
	writer *storage.RunWriter
	busy   atomic.Bool
}

func NewHandlers(run RunnerFunc, db *storage.DB, writer *storage.RunWriter) *Handlers {
	return &Handlers{
		run:    run,
		db:     db,
		writer: writer,
	}
}

// HandleRemediate runs the full validate/repair workflow synchronously
// and returns the execution record. Only one run may touch the endpoint
// at a time; concurrent requests get 409 rather than racing the
// installer.
func (h *Handlers) HandleRemediate(w http.ResponseWriter, r *http.Request) {
	var req RemediateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid JSON: "+err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	params := remediate.Params{
		ExpectedSiteCode:    state.NewSiteCode(req.SiteCode),
		ManagementPoint:     req.ManagementPoint,
		RemoteInstallerPath: req.InstallerPath,
		SetupArgs:           req.SetupArgs,
		UninstallFirst:      req.UninstallFirst,
		ForceInstall:        req.ForceInstall,
		CheckOnly:           req.CheckOnly,
	}
	if err := params.Validate(); err != nil {
		writeError(w, err.Error(), "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if !h.busy.CompareAndSwap(false, true) {
		writeError(w, remediate.ErrRunInProgress.Error(), "RUN_IN_PROGRESS", http.StatusConflict, r)
		return
	}
	defer h.busy.Store(false)

	// A started run must finish even if the client goes away; a canceled
	// request context would kill the installer subprocess mid-install and
	// leave the endpoint half-provisioned.
	rec := h.run(context.WithoutCancel(r.Context()), params)

	if h.writer != nil {
		h.writer.Log(storage.FromRecord(rec))
	}

	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, "run ID required", "INVALID_REQUEST", http.StatusBadRequest, r)
		return
	}

	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	run, err := h.db.GetRun(r.Context(), id)
	if err != nil {
		writeError(w, "run not found", "NOT_FOUND", http.StatusNotFound, r)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		writeError(w, "database not configured", "DB_UNAVAILABLE", http.StatusServiceUnavailable, r)
		return
	}

	filter := storage.RunFilter{
		SiteCode: r.URL.Query().Get("site_code"),
		Limit:    100,
	}
	if v := r.URL.Query().Get("remediated"); v != "" {
		remediated, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, "remediated must be a boolean", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		filter.Remediated = &remediated
	}
	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, "since must be an RFC 3339 timestamp", "INVALID_REQUEST", http.StatusBadRequest, r)
			return
		}
		filter.Since = &since
	}

	runs, err := h.db.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, "query failed", "INTERNAL", http.StatusInternalServerError, r)
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, msg, code string, status int, r *http.Request) {
	resp := ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: RequestIDFromContext(r.Context()),
	}
	writeJSON(w, status, resp)
}
