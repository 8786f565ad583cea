package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/texapp/opinion-harvester/internal/progress"
	"github.com/texapp/opinion-harvester/internal/store"
)

const (
	defaultRunLimit      = 50
	maxRunLimit          = 500
	defaultActivityLimit = 100
	maxActivityLimit     = 1000
)

// listRuns handles GET /v1/runs?period=YYYY-MM-DD&limit=. Runs come back
// newest first.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var (
		runs []store.Run
		qerr error
	)
	if periodParam := strings.TrimSpace(r.URL.Query().Get("period")); periodParam != "" {
		period, perr := time.ParseInLocation("2006-01-02", periodParam, time.UTC)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "period must be YYYY-MM-DD")
			return
		}
		runs, qerr = s.runs.ListByPeriod(r.Context(), period)
	} else {
		runs, qerr = s.runs.List(r.Context(), limit)
	}
	if qerr != nil {
		s.logger.Error("list runs failed", zap.Error(qerr))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if len(runs) > limit {
		runs = runs[:limit]
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// getRun handles GET /v1/runs/{run_id}.
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runs.Get(r.Context(), runID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("get run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": run})
}

type ledgerEntryDTO struct {
	Key        string    `json:"key"`
	Court      int       `json:"court"`
	Date       string    `json:"date"`
	Status     string    `json:"status"`
	Cases      int       `json:"cases"`
	Files      int       `json:"files"`
	RecordedAt time.Time `json:"recorded_at"`
}

// getLedger handles GET /v1/ledger?period=YYYY-MM-DD.
func (s *Server) getLedger(w http.ResponseWriter, r *http.Request) {
	periodParam := strings.TrimSpace(r.URL.Query().Get("period"))
	if periodParam == "" {
		writeError(w, http.StatusBadRequest, "period query parameter is required")
		return
	}
	period, err := time.ParseInLocation("2006-01-02", periodParam, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "period must be YYYY-MM-DD")
		return
	}

	entries, err := s.ledger.EntriesByDate(r.Context(), period)
	if err != nil {
		s.logger.Error("ledger query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to query ledger")
		return
	}
	dtos := make([]ledgerEntryDTO, 0, len(entries))
	for _, entry := range entries {
		dtos = append(dtos, ledgerEntryDTO{
			Key:        entry.Key,
			Court:      entry.Court,
			Date:       entry.Date.Format("2006-01-02"),
			Status:     entry.Status,
			Cases:      entry.Cases,
			Files:      entry.Files,
			RecordedAt: entry.RecordedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period":  period.Format("2006-01-02"),
		"entries": dtos,
	})
}

// getActivity handles GET /v1/activity?limit=. Events come back newest
// first, bounded by the ring's capacity.
func (s *Server) getActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultActivityLimit, maxActivityLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events := []progress.Event{}
	if s.activity != nil {
		events = s.activity.Recent(limit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func parseLimit(r *http.Request, def, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer")
	}
	if limit > max {
		limit = max
	}
	return limit, nil
}
