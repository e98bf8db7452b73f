package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/message-search/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS ingestion_runs (
    id            BIGSERIAL PRIMARY KEY,
    trace_id      TEXT        NOT NULL,
    generation_id BIGINT      NOT NULL,
    status        TEXT        NOT NULL,
    records       INTEGER     NOT NULL,
    lost          INTEGER     NOT NULL,
    pages         INTEGER     NOT NULL,
    rounds        INTEGER     NOT NULL,
    started_at    TIMESTAMPTZ NOT NULL,
    duration_ms   BIGINT      NOT NULL,
    error         TEXT        NOT NULL DEFAULT ''
)`

const startedIndex = `CREATE INDEX IF NOT EXISTS ingestion_runs_started_at_idx ON ingestion_runs (started_at DESC)`

// Postgres stores runs in the ingestion_runs table.
type Postgres struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewPostgres(db *postgres.Client) *Postgres {
	return &Postgres{
		db:     db,
		logger: slog.Default().With("component", "runlog"),
	}
}

// EnsureSchema creates the table and its index if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	return p.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("creating ingestion_runs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, startedIndex); err != nil {
			return fmt.Errorf("creating ingestion_runs index: %w", err)
		}
		return nil
	})
}

func (p *Postgres) Record(ctx context.Context, run Run) error {
	_, err := p.db.DB.ExecContext(ctx,
		`INSERT INTO ingestion_runs
		    (trace_id, generation_id, status, records, lost, pages, rounds, started_at, duration_ms, error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.TraceID, int64(run.GenerationID), string(run.Status), run.Records, run.Lost,
		run.Pages, run.Rounds, run.StartedAt.UTC(), run.Duration.Milliseconds(), run.Error,
	)
	if err != nil {
		return fmt.Errorf("recording ingestion run: %w", err)
	}
	p.logger.Debug("run recorded", "trace_id", run.TraceID, "status", run.Status)
	return nil
}

func (p *Postgres) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := p.db.DB.QueryContext(ctx,
		`SELECT trace_id, generation_id, status, records, lost, pages, rounds, started_at, duration_ms, error
		   FROM ingestion_runs
		  ORDER BY started_at DESC
		  LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing ingestion runs: %w", err)
	}
	defer rows.Close()

	runs := make([]Run, 0, limit)
	for rows.Next() {
		var (
			run        Run
			genID      int64
			status     string
			durationMs int64
		)
		if err := rows.Scan(&run.TraceID, &genID, &status, &run.Records, &run.Lost,
			&run.Pages, &run.Rounds, &run.StartedAt, &durationMs, &run.Error); err != nil {
			return nil, fmt.Errorf("scanning ingestion run: %w", err)
		}
		run.GenerationID = uint64(genID)
		run.Status = Status(status)
		run.Duration = time.Duration(durationMs) * time.Millisecond
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
