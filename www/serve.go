// Package www serves benchmark results over HTTP.
package www

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"node.town/asrbench/db"
	"node.town/asrbench/wer"
)

const DefaultRunLimit = 20

// RunLister is the part of the result store the server reads.
type RunLister interface {
	ListRuns(ctx context.Context, limit int32) ([]db.ListRunsRow, error)
}

type Run struct {
	ID         string     `json:"id"`
	ExpName    string     `json:"exp_name"`
	Systems    []string   `json:"systems"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Scores     int64      `json:"scores"`
	WER        float64    `json:"wer"`
}

type ScoreRequest struct {
	Gold       string `json:"gold"`
	Hypothesis string `json:"hypothesis"`
}

type ScoreResponse struct {
	wer.EditStats
	WER float64 `json:"wer"`
}

// NewRouter mounts the result routes. runs may be nil when no database
// is configured, in which case /runs answers 503.
func NewRouter(runs RunLister, logger *log.Logger) *chi.Mux {
	if logger == nil {
		logger = log.New(io.Discard)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  logger.StandardLog(),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		var paths []string
		err := chi.Walk(r, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			paths = append(paths, method+" "+route)
			return nil
		})
		if err != nil {
			http.Error(w, "Failed to list routes", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, paths)
	})
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("ok\n"))
	})
	r.Get("/runs", handleRuns(runs, logger))
	r.Post("/score", handleScore)

	return r
}

func handleRuns(runs RunLister, logger *log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if runs == nil {
			http.Error(w, "No database configured", http.StatusServiceUnavailable)
			return
		}

		limit := int32(DefaultRunLimit)
		if s := req.URL.Query().Get("limit"); s != "" {
			n, err := strconv.ParseInt(s, 10, 32)
			if err != nil || n <= 0 {
				http.Error(w, "Invalid limit", http.StatusBadRequest)
				return
			}
			limit = int32(n)
		}

		rows, err := runs.ListRuns(req.Context(), limit)
		if err != nil {
			logger.Error("list runs", "error", err)
			http.Error(w, "Failed to load runs", http.StatusInternalServerError)
			return
		}

		out := make([]Run, 0, len(rows))
		for _, row := range rows {
			run := Run{
				ID:        row.ID.String(),
				ExpName:   row.ExpName,
				Systems:   row.Systems,
				StartedAt: row.StartedAt,
				Scores:    row.Scores,
				WER:       row.WER(),
			}
			if row.FinishedAt.Valid {
				t := row.FinishedAt.Time
				run.FinishedAt = &t
			}
			out = append(out, run)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleScore(w http.ResponseWriter, req *http.Request) {
	var body ScoreRequest
	if err := json.NewDecoder(io.LimitReader(req.Body, 1<<20)).Decode(&body); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	stats := wer.Score(body.Gold, body.Hypothesis)
	writeJSON(w, http.StatusOK, ScoreResponse{EditStats: stats, WER: stats.Rate()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
