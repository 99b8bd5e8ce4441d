package db

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"node.town/asrbench/report"
	"node.town/asrbench/stt"
)

// Store records benchmark runs through a connection pool.
type Store struct {
	Pool    *pgxpool.Pool
	Queries *Queries
	logger  *log.Logger
}

// Open connects to url and applies pending migrations. confirm may be
// nil to apply them all.
func Open(ctx context.Context, url string, confirm Confirm, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	migrations, err := LoadMigrations(migrationFS, "migrations")
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := Migrate(ctx, pool, migrations, confirm, logger); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{Pool: pool, Queries: New(pool), logger: logger}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) StartRun(ctx context.Context, expName string, systems []string) (uuid.UUID, error) {
	id := uuid.New()
	err := s.Queries.CreateRun(ctx, CreateRunParams{
		ID:        id,
		ExpName:   expName,
		Systems:   systems,
		StartedAt: time.Now(),
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	s.logger.Info("run started", "id", id, "exp", expName)
	return id, nil
}

func (s *Store) FinishRun(ctx context.Context, runID uuid.UUID) error {
	return s.Queries.FinishRun(ctx, runID, time.Now())
}

func (s *Store) RecordTranscription(ctx context.Context, runID uuid.UUID, file string, out stt.Outcome) error {
	_, err := s.Queries.InsertTranscription(ctx, TranscriptionParams(runID, file, out))
	if err != nil {
		return fmt.Errorf("failed to insert transcription: %w", err)
	}
	return nil
}

// RecordScores inserts all rows of one evaluation in a transaction.
func (s *Store) RecordScores(ctx context.Context, runID uuid.UUID, rows []report.Row) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	qtx := s.Queries.WithTx(tx)
	for _, r := range rows {
		if err := qtx.InsertScore(ctx, ScoreParams(runID, r)); err != nil {
			return fmt.Errorf("failed to insert score: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) RecordLatencies(ctx context.Context, runID uuid.UUID, rows []report.Latency) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	qtx := s.Queries.WithTx(tx)
	for _, r := range rows {
		err := qtx.InsertLatency(ctx, InsertLatencyParams{
			RunID:          runID,
			File:           r.File,
			System:         r.System,
			FirstLatency:   r.FirstLatency,
			CorrectLatency: r.CorrectLatency,
			SilenceOffset:  r.SilenceOffset,
		})
		if err != nil {
			return fmt.Errorf("failed to insert latency: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func TranscriptionParams(runID uuid.UUID, file string, out stt.Outcome) InsertTranscriptionParams {
	p := InsertTranscriptionParams{
		RunID:       runID,
		File:        file,
		System:      out.System,
		Transcript:  out.Transcript,
		Raw:         out.Raw,
		Elapsed:     out.Elapsed,
		Unreachable: out.Unreachable,
		Error:       pgtype.Text{String: out.Error, Valid: out.Error != ""},
		StartedAt:   out.Started,
	}
	if out.Result != nil && out.Result.FirstLatency >= 0 {
		p.FirstLatency = pgtype.Float8{Float64: out.Result.FirstLatency, Valid: true}
	}
	return p
}

func ScoreParams(runID uuid.UUID, r report.Row) InsertScoreParams {
	return InsertScoreParams{
		RunID:      runID,
		File:       r.File,
		System:     r.Service,
		Gold:       r.Gold,
		Transcript: r.Transcript,
		RefLen:     int32(r.Stats.Reference),
		Wer:        r.Stats.Rate(),
		Changes:    int32(r.Stats.Changes),
		Corrects:   int32(r.Stats.Corrects),
		Subs:       int32(r.Stats.Substitutions),
		Ins:        int32(r.Stats.Insertions),
		Dels:       int32(r.Stats.Deletions),
	}
}
