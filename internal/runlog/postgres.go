package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mohammad-safakhou/osinthunter/internal/agent/core"
)

const insertRunSQL = `INSERT INTO investigation_runs (id, finished_at, input, evidence, flags, plan, loop, stop_reason)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING`

// PostgresSink stores runs in the investigation_runs table.
type PostgresSink struct {
	DB *sql.DB
}

// OpenPostgres connects with the lib/pq driver and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresSink, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresSink{DB: db}, nil
}

// Report implements core.Sink.
func (s *PostgresSink) Report(ctx context.Context, record core.RunRecord) error {
	inputBytes, err := json.Marshal(record.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	evidence := record.Evidence
	if evidence == nil {
		evidence = []core.Evidence{}
	}
	evidenceBytes, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, insertRunSQL,
		record.ID,
		record.Timestamp,
		inputBytes,
		evidenceBytes,
		pq.Array(nonNil(record.Flags)),
		pq.Array(nonNil(record.Plan)),
		record.Loop,
		string(record.Reason),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", record.ID, err)
	}
	return nil
}

// RunSummary is a row of the run history.
type RunSummary struct {
	ID         string    `json:"id"`
	FinishedAt time.Time `json:"finished_at"`
	Flags      []string  `json:"flags"`
	Loop       int       `json:"loop"`
	StopReason string    `json:"stop_reason"`
}

// Recent lists the latest runs, newest first.
func (s *PostgresSink) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, finished_at, flags, loop, stop_reason FROM investigation_runs ORDER BY finished_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.ID, &r.FinishedAt, pq.Array(&r.Flags), &r.Loop, &r.StopReason); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database handle.
func (s *PostgresSink) Close() error { return s.DB.Close() }

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
