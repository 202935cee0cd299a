package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/lox/cyclewatch/internal/cycle"
	"github.com/lox/cyclewatch/internal/ingest"
	"github.com/lox/cyclewatch/internal/models"
	"github.com/lox/cyclewatch/internal/store"
)

const (
	defaultHistoryLimit = 30
	maxHistoryLimit     = 365
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}

// handleStatus returns the latest status string as plain text.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.statuses.LatestStatus(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "No status data found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("api: latest status")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(rec.Status))
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.statuses.LatestStatus(r.Context())
	if errors.Is(err, store.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "No status data found")
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusView(rec))
}

func (s *Server) handleAPIHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.statuses.ListStatuses(r.Context(), parseLimit(r))
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]StatusView, 0, len(records))
	for i := range records {
		views = append(views, statusView(&records[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIRuns(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeJSONError(w, http.StatusNotFound, "run audit not enabled")
		return
	}
	failedOnly := r.URL.Query().Get("failed") == "1"
	runs, err := s.audit.RecentRuns(r.Context(), parseLimit(r), failedOnly)
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	views := make([]RunView, 0, len(runs))
	for _, run := range runs {
		views = append(views, runView(run))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeJSONError(w, http.StatusNotFound, "manual runs not enabled")
		return
	}
	rec, err := s.runner.Run(r.Context(), ingest.TriggerManual)
	if errors.Is(err, cycle.ErrInsufficientData) {
		writeJSONError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeJSONError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statusView(rec))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	rec, err := s.statuses.LatestStatus(r.Context())
	switch {
	case errors.Is(err, store.ErrNotFound):
		resp["latest"] = nil
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"status": "error", "error": err.Error()})
		return
	default:
		resp["latest"] = rec.Key()
	}
	writeJSON(w, http.StatusOK, resp)
}

// StatusView is the JSON shape of a stored status.
type StatusView struct {
	Date      string `json:"datetime"`
	Status    string `json:"status"`
	Phase     string `json:"phase"`
	Since     string `json:"since"`
	Preceding string `json:"preceding"`
}

func statusView(rec *models.StatusRecord) StatusView {
	return StatusView{
		Date:      rec.Key(),
		Status:    rec.Status,
		Phase:     rec.Phase,
		Since:     rec.Since.Format(models.DateLayout),
		Preceding: rec.Preceding,
	}
}

// RunView is the JSON shape of a run audit entry.
type RunView struct {
	ID          int64   `json:"id"`
	StartedAt   string  `json:"started_at"`
	Source      string  `json:"source"`
	SeriesID    string  `json:"series_id"`
	TriggeredBy string  `json:"triggered_by"`
	Success     bool    `json:"success"`
	RowsFetched *int64  `json:"rows_fetched,omitempty"`
	ParseErrors *int64  `json:"parse_errors,omitempty"`
	Phase       *string `json:"phase,omitempty"`
	Error       *string `json:"error,omitempty"`
}

func runView(run store.Run) RunView {
	v := RunView{
		ID:          run.ID,
		StartedAt:   run.StartedAt.UTC().Format("2006-01-02T15:04:05Z"),
		Source:      run.Source,
		SeriesID:    run.SeriesID,
		TriggeredBy: run.TriggeredBy,
		Success:     run.Success,
	}
	if run.RowsFetched.Valid {
		v.RowsFetched = &run.RowsFetched.Int64
	}
	if run.ParseErrors.Valid {
		v.ParseErrors = &run.ParseErrors.Int64
	}
	if run.Phase.Valid {
		v.Phase = &run.Phase.String
	}
	if run.ErrorMessage.Valid {
		v.Error = &run.ErrorMessage.String
	}
	return v
}
