package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tft-pipeline/internal/flatten"
)

var rowColumns = []string{
	"match_id", "puuid", "placement", "level", "gold_left", "last_round",
	"augments", "traits", "units", "game_version", "game_datetime",
}

// Postgres is a local stand-in for the BigQuery staging table. Nested
// columns are stored as jsonb.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a new database connection pool
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Close closes the database connection pool
func (p *Postgres) Close() {
	p.pool.Close()
}

// tableIdent maps dataset.table to schema.table; the project is ignored
func tableIdent(ref TableRef) pgx.Identifier {
	if ref.Dataset == "" {
		return pgx.Identifier{ref.Table}
	}
	return pgx.Identifier{ref.Dataset, ref.Table}
}

// EnsureTable creates the schema and table if they do not exist
func (p *Postgres) EnsureTable(ctx context.Context, ref TableRef) error {
	ident := tableIdent(ref)
	if len(ident) == 2 {
		if _, err := p.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pgx.Identifier{ref.Dataset}.Sanitize()); err != nil {
			return fmt.Errorf("create schema %s: %w", ref.Dataset, err)
		}
	}

	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+ident.Sanitize()+` (
			match_id      TEXT NOT NULL,
			puuid         TEXT NOT NULL,
			placement     BIGINT NOT NULL,
			level         BIGINT NOT NULL,
			gold_left     BIGINT NOT NULL,
			last_round    BIGINT NOT NULL,
			augments      JSONB NOT NULL,
			traits        JSONB NOT NULL,
			units         JSONB NOT NULL,
			game_version  TEXT NOT NULL,
			game_datetime TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create table %s: %w", ref, err)
	}
	return nil
}

// Insert copies all rows in a single COPY. The copy is all-or-nothing, so a
// failure is returned as a plain error rather than per-row detail.
func (p *Postgres) Insert(ctx context.Context, ref TableRef, rows []flatten.Row) error {
	values := make([][]any, 0, len(rows))
	for _, r := range rows {
		v, err := copyValues(r)
		if err != nil {
			return fmt.Errorf("encode row %s: %w", InsertID(r), err)
		}
		values = append(values, v)
	}

	n, err := p.pool.CopyFrom(ctx, tableIdent(ref), rowColumns, pgx.CopyFromRows(values))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", ref, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy into %s: wrote %d of %d rows", ref, n, len(rows))
	}
	return nil
}

// copyValues orders a row's values to match rowColumns
func copyValues(r flatten.Row) ([]any, error) {
	augments, err := json.Marshal(r.Augments)
	if err != nil {
		return nil, err
	}
	traits, err := json.Marshal(r.Traits)
	if err != nil {
		return nil, err
	}
	units, err := json.Marshal(r.Units)
	if err != nil {
		return nil, err
	}

	return []any{
		r.MatchID,
		r.PUUID,
		r.Placement,
		r.Level,
		r.GoldLeft,
		r.LastRound,
		augments,
		traits,
		units,
		r.GameVersion,
		r.GameDatetime.In(time.UTC),
	}, nil
}

// PostgresTransform runs the configured post-load statement
type PostgresTransform struct {
	pool  *pgxpool.Pool
	query string
}

// Transform returns a transform bound to this database
func (p *Postgres) Transform(query string) *PostgresTransform {
	return &PostgresTransform{pool: p.pool, query: query}
}

func (t *PostgresTransform) Run(ctx context.Context) error {
	if t.query == "" {
		return nil
	}
	if _, err := t.pool.Exec(ctx, t.query); err != nil {
		return fmt.Errorf("run transform: %w", err)
	}
	return nil
}
