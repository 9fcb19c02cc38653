// Package journal records completed extraction runs in a local SQLite
// database so they can be listed and exported later.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Guillaume-Lombardo/extractforms/constants"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	input_path    TEXT NOT NULL,
	fingerprint   TEXT NOT NULL,
	mode          TEXT NOT NULL,
	backend       TEXT NOT NULL,
	status        TEXT NOT NULL,
	cache_hit     INTEGER NOT NULL DEFAULT 0,
	degraded      INTEGER NOT NULL DEFAULT 0,
	fields_count  INTEGER NOT NULL DEFAULT 0,
	model_calls   INTEGER NOT NULL DEFAULT 0,
	input_tokens  INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd      REAL NOT NULL DEFAULT 0,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_fingerprint_idx ON runs (fingerprint);
CREATE INDEX IF NOT EXISTS runs_created_at_idx ON runs (created_at);
`

// Run is one journal row.
type Run struct {
	ID           string
	InputPath    string
	Fingerprint  string
	Mode         string
	Backend      string
	Status       constants.RunStatus
	CacheHit     bool
	Degraded     bool
	FieldsCount  int
	ModelCalls   int
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
	DurationMS   int64
	Error        string
	CreatedAt    time.Time
}

// Journal persists runs to SQLite.
type Journal struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (and initializes if needed) the journal database at path.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// One writer at a time keeps the modernc driver happy under concurrency.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return &Journal{db: db, logger: logger}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record inserts one run. A missing id is generated.
func (j *Journal) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, input_path, fingerprint, mode, backend, status,
			cache_hit, degraded, fields_count, model_calls,
			input_tokens, output_tokens, cost_usd, duration_ms, error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.InputPath, run.Fingerprint, run.Mode, run.Backend, string(run.Status),
		boolInt(run.CacheHit), boolInt(run.Degraded), run.FieldsCount, run.ModelCalls,
		run.InputTokens, run.OutputTokens, run.CostUSD, run.DurationMS, run.Error,
		run.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	j.logger.Debug("journal.record.ok", "run_id", run.ID, "status", string(run.Status))
	return nil
}

// List returns runs newest-first, bounded by limit (0 means all).
func (j *Journal) List(ctx context.Context, limit int) ([]Run, error) {
	query := `
		SELECT id, input_path, fingerprint, mode, backend, status,
		       cache_hit, degraded, fields_count, model_calls,
		       input_tokens, output_tokens, cost_usd, duration_ms, error, created_at
		FROM runs ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run                Run
			status, createdAt  string
			cacheHit, degraded int
		)
		if err := rows.Scan(
			&run.ID, &run.InputPath, &run.Fingerprint, &run.Mode, &run.Backend, &status,
			&cacheHit, &degraded, &run.FieldsCount, &run.ModelCalls,
			&run.InputTokens, &run.OutputTokens, &run.CostUSD, &run.DurationMS, &run.Error, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = constants.RunStatus(status)
		run.CacheHit = cacheHit != 0
		run.Degraded = degraded != 0
		if ts, parseErr := time.Parse(time.RFC3339Nano, createdAt); parseErr == nil {
			run.CreatedAt = ts
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
