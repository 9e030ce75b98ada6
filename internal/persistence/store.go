package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"closim/internal/gateway"
)

// Store is the Postgres implementation of the gateway's durable
// persistence: contract records and run checkpoints. The emulator
// delegates to it when a DSN is configured.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PersistContract upserts a contract record keyed by (run, kind, local
// id). Re-persisting the same contract on a resumed run updates the
// stored document and returns the original remote id.
func (s *Store) PersistContract(ctx context.Context, rec gateway.ContractRecord) (string, error) {
	var remoteID string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO closim.contracts (remote_id, run_id, kind, local_id, status, data)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, kind, local_id) DO UPDATE
			SET status = EXCLUDED.status,
			    data = EXCLUDED.data,
			    updated_at = NOW()
		RETURNING remote_id`,
		uuid.NewString(), rec.RunID, rec.Kind, rec.LocalID, rec.Status, rec.Data,
	).Scan(&remoteID)
	if err != nil {
		return "", fmt.Errorf("persist contract %s/%s: %w", rec.Kind, rec.LocalID, err)
	}
	return remoteID, nil
}

// UpdateContractState patches the stored status of a contract.
func (s *Store) UpdateContractState(ctx context.Context, remoteID string, patch map[string]any) error {
	status, ok := patch["status"].(string)
	if !ok {
		return fmt.Errorf("contract %s: patch carries no status", remoteID)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE closim.contracts SET status = $2, updated_at = NOW() WHERE remote_id = $1`,
		remoteID, status,
	)
	if err != nil {
		return fmt.Errorf("update contract %s: %w", remoteID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("unknown contract %s", remoteID)
	}
	return nil
}

// SaveCheckpoint appends a run state snapshot. History is kept: each
// phase boundary adds a row, and resume reads the newest.
func (s *Store) SaveCheckpoint(ctx context.Context, cp gateway.Checkpoint) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO closim.checkpoints (run_id, phase, paused, state, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		cp.RunID, cp.Phase, cp.Paused, cp.State, cp.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save checkpoint run=%s phase=%d: %w", cp.RunID, cp.Phase, err)
	}
	return nil
}

// LoadLatestCheckpoint returns the newest checkpoint for a run, or nil
// when the run has never checkpointed.
func (s *Store) LoadLatestCheckpoint(ctx context.Context, runID string) (*gateway.Checkpoint, error) {
	cp := &gateway.Checkpoint{RunID: runID}
	err := s.db.QueryRowContext(ctx, `
		SELECT phase, paused, state, created_at
		FROM closim.checkpoints
		WHERE run_id = $1
		ORDER BY id DESC
		LIMIT 1`,
		runID,
	).Scan(&cp.Phase, &cp.Paused, &cp.State, &cp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint run=%s: %w", runID, err)
	}
	return cp, nil
}
