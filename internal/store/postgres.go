package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pennybuzz/engine/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded SQL migrations in lexical order. Every
// migration is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("read embedded migrations: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
	}
	return nil
}

// PostgresStore keeps every save as a new scan snapshot. Loading a name
// returns its most recent snapshot.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

var candidateColumns = []string{
	"scan_id", "position", "ticker", "mentions",
	"avg_sentiment", "last", "avg_dollar_vol", "rank_score",
}

func (s *PostgresStore) SaveCandidates(ctx context.Context, name string, rows []model.Candidate) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var scanID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO candidate_scans (name, row_count) VALUES ($1, $2) RETURNING id`,
		name, len(rows),
	).Scan(&scanID)
	if err != nil {
		return fmt.Errorf("insert scan %s: %w", name, err)
	}

	if len(rows) > 0 {
		src := pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			c := rows[i]
			return []any{scanID, i, c.Ticker, c.Mentions, c.AvgSentiment, c.Last, c.AvgDollarVol, c.RankScore}, nil
		})
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"candidates"}, candidateColumns, src); err != nil {
			return fmt.Errorf("copy candidates: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *PostgresStore) LoadCandidates(ctx context.Context, name string) ([]model.Candidate, error) {
	var scanID int64
	err := s.pool.QueryRow(ctx,
		`SELECT id FROM candidate_scans WHERE name = $1 ORDER BY id DESC LIMIT 1`, name,
	).Scan(&scanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("get latest scan %s: %w", name, err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT ticker, mentions, avg_sentiment, last, avg_dollar_vol, rank_score
		 FROM candidates WHERE scan_id = $1 ORDER BY position`, scanID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	out := []model.Candidate{}
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.Ticker, &c.Mentions, &c.AvgSentiment, &c.Last, &c.AvgDollarVol, &c.RankScore); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
