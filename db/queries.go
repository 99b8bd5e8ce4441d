// Package db stores benchmark runs in Postgres.
package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const createRun = `INSERT INTO runs (id, exp_name, systems, started_at)
VALUES ($1, $2, $3, $4)`

type CreateRunParams struct {
	ID        uuid.UUID
	ExpName   string
	Systems   []string
	StartedAt time.Time
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) error {
	_, err := q.db.Exec(ctx, createRun, arg.ID, arg.ExpName, arg.Systems, arg.StartedAt)
	return err
}

const finishRun = `UPDATE runs SET finished_at = $2 WHERE id = $1`

func (q *Queries) FinishRun(ctx context.Context, id uuid.UUID, finishedAt time.Time) error {
	_, err := q.db.Exec(ctx, finishRun, id, finishedAt)
	return err
}

const insertTranscription = `INSERT INTO transcriptions
    (run_id, file, system, transcript, raw, elapsed, unreachable, error, first_latency, started_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id`

type InsertTranscriptionParams struct {
	RunID        uuid.UUID
	File         string
	System       string
	Transcript   string
	Raw          []byte
	Elapsed      float64
	Unreachable  bool
	Error        pgtype.Text
	FirstLatency pgtype.Float8
	StartedAt    time.Time
}

func (q *Queries) InsertTranscription(ctx context.Context, arg InsertTranscriptionParams) (int64, error) {
	row := q.db.QueryRow(ctx, insertTranscription,
		arg.RunID,
		arg.File,
		arg.System,
		arg.Transcript,
		arg.Raw,
		arg.Elapsed,
		arg.Unreachable,
		arg.Error,
		arg.FirstLatency,
		arg.StartedAt,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const insertScore = `INSERT INTO scores
    (run_id, file, system, gold, transcript, ref_len, wer, changes, corrects, subs, ins, dels)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

type InsertScoreParams struct {
	RunID      uuid.UUID
	File       string
	System     string
	Gold       string
	Transcript string
	RefLen     int32
	Wer        float64
	Changes    int32
	Corrects   int32
	Subs       int32
	Ins        int32
	Dels       int32
}

func (q *Queries) InsertScore(ctx context.Context, arg InsertScoreParams) error {
	_, err := q.db.Exec(ctx, insertScore,
		arg.RunID,
		arg.File,
		arg.System,
		arg.Gold,
		arg.Transcript,
		arg.RefLen,
		arg.Wer,
		arg.Changes,
		arg.Corrects,
		arg.Subs,
		arg.Ins,
		arg.Dels,
	)
	return err
}

const insertLatency = `INSERT INTO latencies
    (run_id, file, system, first_latency, correct_latency, silence_offset)
VALUES ($1, $2, $3, $4, $5, $6)`

type InsertLatencyParams struct {
	RunID          uuid.UUID
	File           string
	System         string
	FirstLatency   float64
	CorrectLatency float64
	SilenceOffset  float64
}

func (q *Queries) InsertLatency(ctx context.Context, arg InsertLatencyParams) error {
	_, err := q.db.Exec(ctx, insertLatency,
		arg.RunID,
		arg.File,
		arg.System,
		arg.FirstLatency,
		arg.CorrectLatency,
		arg.SilenceOffset,
	)
	return err
}

const listRuns = `SELECT r.id, r.exp_name, r.systems, r.started_at, r.finished_at,
    count(s.id), COALESCE(sum(s.changes), 0), COALESCE(sum(s.ref_len), 0)
FROM runs r
LEFT JOIN scores s ON s.run_id = r.id
GROUP BY r.id
ORDER BY r.started_at DESC
LIMIT $1`

type ListRunsRow struct {
	ID         uuid.UUID
	ExpName    string
	Systems    []string
	StartedAt  time.Time
	FinishedAt pgtype.Timestamptz
	Scores     int64
	Changes    int64
	RefLen     int64
}

// WER is the pooled word error rate over every scored file of the run.
func (r ListRunsRow) WER() float64 {
	if r.RefLen == 0 {
		return 0
	}
	return float64(r.Changes) / float64(r.RefLen)
}

func (q *Queries) ListRuns(ctx context.Context, limit int32) ([]ListRunsRow, error) {
	rows, err := q.db.Query(ctx, listRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ListRunsRow
	for rows.Next() {
		var i ListRunsRow
		if err := rows.Scan(
			&i.ID,
			&i.ExpName,
			&i.Systems,
			&i.StartedAt,
			&i.FinishedAt,
			&i.Scores,
			&i.Changes,
			&i.RefLen,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
