package engine

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresEngine is the document-store PersistenceEngine implementation:
// each dataset is keyed by its metadata hash, with index-level metadata
// (range, row count) stored separately from rows so Range() stays O(1), and
// rows chunked by time range for efficient partial reads.
type PostgresEngine struct {
	id string
	db *pgxpool.Pool
}

var _ Engine = (*PostgresEngine)(nil)

// NewPostgresEngine connects to dbURL and ensures the metadata/payload_chunks
// schema exists. id becomes the engine's identity (e.g. "docstore:db=research").
func NewPostgresEngine(ctx context.Context, id, dbURL string) (*PostgresEngine, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("engine: parse postgres url: %w", err)
	}

	if v := os.Getenv("TSGRAPH_DB_MAX_CONNS"); v != "" {
		if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 {
			cfg.MaxConns = int32(n)
		}
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("engine: connect postgres: %w", err)
	}

	e := &PostgresEngine{id: id, db: pool}
	if err := e.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("engine: ensure schema: %w", err)
	}
	return e, nil
}

func (e *PostgresEngine) Close() { e.db.Close() }

func (e *PostgresEngine) ID() string { return e.id }

const schemaDDL = `
CREATE TABLE IF NOT EXISTS tsgraph_metadata (
	hash                VARCHAR(64) PRIMARY KEY,
	name                TEXT NOT NULL,
	version             TEXT NOT NULL,
	static              BOOLEAN NOT NULL,
	time_level          TEXT NOT NULL DEFAULT '',
	params              JSONB NOT NULL,
	predecessor_hashes  JSONB NOT NULL,
	engine_id           TEXT NOT NULL,
	range_first         TIMESTAMPTZ,
	range_last          TIMESTAMPTZ,
	row_count           BIGINT NOT NULL DEFAULT 0,
	blob                BYTEA,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_tsgraph_metadata_name ON tsgraph_metadata (name);
CREATE INDEX IF NOT EXISTS idx_tsgraph_metadata_name_params ON tsgraph_metadata (name, params);

CREATE TABLE IF NOT EXISTS tsgraph_payload_chunks (
	dataset_hash  VARCHAR(64) NOT NULL REFERENCES tsgraph_metadata(hash) ON DELETE CASCADE,
	chunk_start   TIMESTAMPTZ NOT NULL,
	chunk_end     TIMESTAMPTZ NOT NULL,
	rows          JSONB NOT NULL,
	PRIMARY KEY (dataset_hash, chunk_start)
);

CREATE INDEX IF NOT EXISTS idx_tsgraph_payload_chunks_range
	ON tsgraph_payload_chunks (dataset_hash, chunk_start, chunk_end);
`

func (e *PostgresEngine) ensureSchema(ctx context.Context) error {
	_, err := e.db.Exec(ctx, schemaDDL)
	return err
}

// errIsNoRows turns pgx.ErrNoRows into a typed absence rather than
// propagating the raw driver error to callers.
func errIsNoRows(err error) bool {
	return err == pgx.ErrNoRows
}
