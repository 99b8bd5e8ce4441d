package www

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"node.town/asrbench/db"
)

type mockRuns struct {
	rows  []db.ListRunsRow
	err   error
	limit int32
}

func (m *mockRuns) ListRuns(ctx context.Context, limit int32) ([]db.ListRunsRow, error) {
	m.limit = limit
	return m.rows, m.err
}

func TestRuns(t *testing.T) {
	started := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	runs := &mockRuns{rows: []db.ListRunsRow{
		{
			ID:         uuid.MustParse("6f1c0c1e-2a4b-4c4d-8e8f-000000000001"),
			ExpName:    "exp",
			Systems:    []string{"awslive", "deepgram"},
			StartedAt:  started,
			FinishedAt: pgtype.Timestamptz{Time: started.Add(time.Minute), Valid: true},
			Scores:     4,
			Changes:    1,
			RefLen:     8,
		},
		{ExpName: "running", StartedAt: started},
	}}
	r := NewRouter(runs, nil)

	tests := []struct {
		name   string
		target string
		status int
		limit  int32
	}{
		{"default limit", "/runs", http.StatusOK, DefaultRunLimit},
		{"explicit limit", "/runs?limit=5", http.StatusOK, 5},
		{"bad limit", "/runs?limit=x", http.StatusBadRequest, 0},
		{"zero limit", "/runs?limit=0", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs.limit = 0
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if runs.limit != tt.limit {
				t.Errorf("limit = %d, want %d", runs.limit, tt.limit)
			}
			if tt.status != http.StatusOK {
				return
			}
			var got []Run
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatal(err)
			}
			if len(got) != 2 {
				t.Fatalf("got %d runs", len(got))
			}
			if got[0].WER != 0.125 || got[0].FinishedAt == nil || got[0].Scores != 4 {
				t.Errorf("first run = %+v", got[0])
			}
			if got[1].FinishedAt != nil || got[1].WER != 0 {
				t.Errorf("second run = %+v", got[1])
			}
		})
	}
}

func TestRunsErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("without database: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	NewRouter(&mockRuns{err: errors.New("boom")}, nil).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("failing store: status = %d", rec.Code)
	}
}

func TestScore(t *testing.T) {
	r := NewRouter(nil, nil)

	body := strings.NewReader(`{"gold":"the cat sat","hypothesis":"The cat sat down."}`)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/score", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var got ScoreResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Insertions != 1 || got.Corrects != 3 || got.Reference != 3 {
		t.Errorf("stats = %+v", got.EditStats)
	}
	if got.WER < 0.333 || got.WER > 0.334 {
		t.Errorf("WER = %v", got.WER)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/score", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad body: status = %d", rec.Code)
	}
}

func TestIndexAndHealth(t *testing.T) {
	r := NewRouter(nil, nil)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok\n" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	var routes []string
	if err := json.Unmarshal(rec.Body.Bytes(), &routes); err != nil {
		t.Fatal(err)
	}
	want := map[string]bool{"GET /runs": false, "POST /score": false, "GET /healthz": false}
	for _, route := range routes {
		if _, ok := want[route]; ok {
			want[route] = true
		}
	}
	for route, seen := range want {
		if !seen {
			t.Errorf("route %q not listed in %v", route, routes)
		}
	}
}
