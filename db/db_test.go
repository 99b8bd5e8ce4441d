package db

import (
	"context"
	"io"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"node.town/asrbench/report"
	"node.town/asrbench/stt"
	"node.town/asrbench/transcript"
	"node.town/asrbench/wer"
)

type execCall struct {
	sql  string
	args []interface{}
}

type fakeRow struct {
	scan func(dest ...interface{}) error
}

func (r fakeRow) Scan(dest ...interface{}) error { return r.scan(dest...) }

type fakeRows struct {
	pgx.Rows
	rows [][]interface{}
	i    int
}

func (r *fakeRows) Next() bool {
	r.i++
	return r.i <= len(r.rows)
}

func (r *fakeRows) Scan(dest ...interface{}) error {
	row := r.rows[r.i-1]
	for n, d := range dest {
		switch p := d.(type) {
		case *uuid.UUID:
			*p = row[n].(uuid.UUID)
		case *string:
			*p = row[n].(string)
		case *[]string:
			*p = row[n].([]string)
		case *time.Time:
			*p = row[n].(time.Time)
		case *int64:
			*p = row[n].(int64)
		}
	}
	return nil
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }

type fakeDB struct {
	execs    []execCall
	applied  map[string]bool
	rows     [][]interface{}
	nextID   int64
	commits  int
	rollback int
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return &fakeRows{rows: f.rows}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	if strings.Contains(sql, "migration_history") {
		id := args[0].(string)
		return fakeRow{scan: func(dest ...interface{}) error {
			if f.applied[id] {
				*dest[0].(*int) = 1
				return nil
			}
			return pgx.ErrNoRows
		}}
	}
	f.nextID++
	return fakeRow{scan: func(dest ...interface{}) error {
		*dest[0].(*int64) = f.nextID
		return nil
	}}
}

func (f *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	return &fakeTx{db: f}, nil
}

type fakeTx struct {
	pgx.Tx
	db   *fakeDB
	done bool
}

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.done = true
	t.db.commits++
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.done {
		t.db.rollback++
	}
	return nil
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_b.sql": {Data: []byte("-- second\nSELECT 2;")},
		"m/001_a.sql": {Data: []byte("--   first one  \nSELECT 1;")},
		"m/notes.txt": {Data: []byte("ignored")},
		"m/003_c.sql": {Data: []byte("SELECT 3;")},
	}
	ms, err := LoadMigrations(fsys, "m")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) != 3 {
		t.Fatalf("got %d migrations", len(ms))
	}
	if ms[0].ID != "001_a" || ms[0].Description != "first one" {
		t.Errorf("first = %+v", ms[0])
	}
	if ms[2].Description != "" {
		t.Errorf("third description = %q", ms[2].Description)
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	ms, err := LoadMigrations(migrationFS, "migrations")
	if err != nil {
		t.Fatal(err)
	}
	if len(ms) < 2 || ms[0].ID != "001_initial_schema" {
		t.Fatalf("migrations = %+v", ms)
	}
	if !strings.Contains(ms[0].SQL, "CREATE TABLE IF NOT EXISTS runs") {
		t.Error("initial schema does not create runs")
	}
}

func TestMigrate(t *testing.T) {
	db := &fakeDB{applied: map[string]bool{"001": true}}
	ms := []Migration{
		{ID: "001", SQL: "CREATE TABLE a ()"},
		{ID: "002", SQL: "CREATE TABLE b ()"},
		{ID: "003", SQL: "CREATE TABLE c ()"},
	}
	var asked []string
	confirm := func(m Migration) (bool, error) {
		asked = append(asked, m.ID)
		return m.ID != "003", nil
	}

	if err := Migrate(context.Background(), db, ms, confirm, log.New(io.Discard)); err != nil {
		t.Fatal(err)
	}
	if strings.Join(asked, ",") != "002,003" {
		t.Errorf("asked = %v", asked)
	}
	if db.commits != 1 || db.rollback != 0 {
		t.Errorf("commits = %d, rollbacks = %d", db.commits, db.rollback)
	}
	var applied []string
	for _, e := range db.execs {
		if strings.HasPrefix(e.sql, "INSERT INTO migration_history") {
			applied = append(applied, e.args[0].(string))
		}
	}
	if strings.Join(applied, ",") != "002" {
		t.Errorf("recorded = %v", applied)
	}
}

func TestInsertTranscription(t *testing.T) {
	db := &fakeDB{}
	q := New(db)
	runID := uuid.New()
	out := stt.Outcome{
		System:     "awslive",
		Transcript: "hello",
		Raw:        []byte(`{}`),
		Elapsed:    2.5,
		Result:     &transcript.Result{FirstLatency: 0.4},
	}

	id, err := q.InsertTranscription(context.Background(), TranscriptionParams(runID, "a.wav", out))
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Errorf("id = %d", id)
	}

	p := TranscriptionParams(runID, "a.wav", out)
	if !p.FirstLatency.Valid || p.FirstLatency.Float64 != 0.4 || p.Error.Valid {
		t.Errorf("params = %+v", p)
	}
	out.Result.FirstLatency = -1
	out.Error = "boom"
	p = TranscriptionParams(runID, "a.wav", out)
	if p.FirstLatency.Valid || !p.Error.Valid {
		t.Errorf("params = %+v", p)
	}
}

func TestInsertScore(t *testing.T) {
	db := &fakeDB{}
	runID := uuid.New()
	row := report.Row{File: "a.wav", Service: "deepgram", Gold: "a b", Transcript: "a", Stats: wer.Score("a b", "a")}

	if err := New(db).InsertScore(context.Background(), ScoreParams(runID, row)); err != nil {
		t.Fatal(err)
	}
	if len(db.execs) != 1 {
		t.Fatalf("execs = %d", len(db.execs))
	}
	args := db.execs[0].args
	if args[0] != runID || args[2] != "deepgram" || args[6] != 0.5 || args[11] != int32(1) {
		t.Errorf("args = %v", args)
	}
}

func TestListRuns(t *testing.T) {
	id := uuid.New()
	started := time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{rows: [][]interface{}{
		{id, "trial", []string{"awslive"}, started, nil, int64(4), int64(3), int64(12)},
	}}
	runs, err := New(db).ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != id || runs[0].ExpName != "trial" || runs[0].Scores != 4 {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].WER() != 0.25 {
		t.Errorf("WER = %v", runs[0].WER())
	}
	if runs[0].FinishedAt.Valid {
		t.Error("FinishedAt should be unset")
	}
}
