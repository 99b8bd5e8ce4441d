package db

import (
	"bufio"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/jackc/pgx/v5"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type Migration struct {
	ID          string
	Description string
	SQL         string
}

// LoadMigrations reads the .sql files of dir in name order. A leading
// "-- " comment line becomes the description.
func LoadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".sql" {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		m := Migration{
			ID:  strings.TrimSuffix(e.Name(), ".sql"),
			SQL: string(data),
		}
		_, first, _ := bufio.ScanLines(data, true)
		if desc, ok := strings.CutPrefix(strings.TrimSpace(string(first)), "--"); ok {
			m.Description = strings.TrimSpace(desc)
		}
		migrations = append(migrations, m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].ID < migrations[j].ID
	})
	return migrations, nil
}

// Confirm decides whether a pending migration is applied.
type Confirm func(Migration) (bool, error)

type Beginner interface {
	DBTX
	Begin(context.Context) (pgx.Tx, error)
}

// Migrate applies every pending migration in its own transaction and
// records it in migration_history.
func Migrate(ctx context.Context, db Beginner, migrations []Migration, confirm Confirm, logger *log.Logger) error {
	_, err := db.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS migration_history (
			id TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("error creating migration_history table: %w", err)
	}

	for _, migration := range migrations {
		var one int
		err := db.QueryRow(ctx, "SELECT 1 FROM migration_history WHERE id = $1", migration.ID).Scan(&one)
		if err == nil {
			logger.Debug("Skipping migration (already applied)", "id", migration.ID)
			continue
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("error checking migration status: %w", err)
		}

		if confirm != nil {
			ok, err := confirm(migration)
			if err != nil {
				return fmt.Errorf("error getting user confirmation: %w", err)
			}
			if !ok {
				logger.Info("Migration skipped", "id", migration.ID)
				continue
			}
		}

		logger.Info("Applying migration", "id", migration.ID)
		if err := apply(ctx, db, migration); err != nil {
			return err
		}
	}
	return nil
}

func apply(ctx context.Context, db Beginner, migration Migration) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, migration.SQL); err != nil {
		return fmt.Errorf("error applying migration %s: %w", migration.ID, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO migration_history (id) VALUES ($1)", migration.ID); err != nil {
		return fmt.Errorf("error recording migration %s: %w", migration.ID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("error committing migration %s: %w", migration.ID, err)
	}
	return nil
}
