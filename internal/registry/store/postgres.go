// Package store is the durable mirror of the Supervisor's Tenant
// Registry: on Router restart, live TenantRecord rows here are
// reconciled against actually-running worker PIDs before the Supervisor
// accepts new start/lookup calls. A single pgx connection pool, no
// replica routing, no schema migrations: the registry mirror is one
// small table this repository owns outright.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/LerianStudio/acsd/internal/registry"
	"github.com/LerianStudio/acsd/pkg/mlog"
)

// PostgresConnection is a hub for the registry mirror's connection pool.
type PostgresConnection struct {
	ConnectionString string
	Logger           mlog.Logger

	pool *pgxpool.Pool
}

// Connect establishes the connection pool. Safe to call once at startup;
// GetPool reuses the established pool on every subsequent call.
func (pc *PostgresConnection) Connect(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, pc.ConnectionString)
	if err != nil {
		return fmt.Errorf("store: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("store: ping: %w", err)
	}

	pc.pool = pool
	pc.Logger.Info("connected to registry mirror postgres")

	return nil
}

// GetPool returns the established pool, connecting lazily if Connect
// hasn't run yet.
func (pc *PostgresConnection) GetPool(ctx context.Context) (*pgxpool.Pool, error) {
	if pc.pool != nil {
		return pc.pool, nil
	}
	if err := pc.Connect(ctx); err != nil {
		return nil, err
	}
	return pc.pool, nil
}

// Store persists TenantRecord rows so the Supervisor's in-memory
// registry can be reconstructed after a Router restart.
type Store struct {
	conn *PostgresConnection
}

// NewStore wraps an already-configured PostgresConnection.
func NewStore(conn *PostgresConnection) *Store {
	return &Store{conn: conn}
}

// EnsureSchema creates the registry_mirror table if it doesn't exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.conn.GetPool(ctx)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS registry_mirror (
			tenant_id        TEXT PRIMARY KEY,
			state            TEXT NOT NULL,
			pid              INTEGER NOT NULL,
			listen_port      INTEGER NOT NULL,
			started_at       TIMESTAMPTZ NOT NULL,
			last_health_ok_at TIMESTAMPTZ,
			restart_count    INTEGER NOT NULL,
			generation       BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Upsert writes rec, overwriting any existing row for its tenant_id.
func (s *Store) Upsert(ctx context.Context, rec registry.TenantRecord) error {
	pool, err := s.conn.GetPool(ctx)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO registry_mirror (tenant_id, state, pid, listen_port, started_at, last_health_ok_at, restart_count, generation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id) DO UPDATE SET
			state = EXCLUDED.state,
			pid = EXCLUDED.pid,
			listen_port = EXCLUDED.listen_port,
			started_at = EXCLUDED.started_at,
			last_health_ok_at = EXCLUDED.last_health_ok_at,
			restart_count = EXCLUDED.restart_count,
			generation = EXCLUDED.generation
	`, rec.TenantID, rec.State, rec.PID, rec.ListenPort, rec.StartedAt, rec.LastHealthOKAt, rec.RestartCount, rec.Generation)
	if err != nil {
		return fmt.Errorf("store: upsert: %w", err)
	}
	return nil
}

// Delete removes tenantID's mirrored row, called once its record
// transitions to Stopped and the Supervisor no longer needs to recover
// it across a restart.
func (s *Store) Delete(ctx context.Context, tenantID string) error {
	pool, err := s.conn.GetPool(ctx)
	if err != nil {
		return err
	}

	_, err = pool.Exec(ctx, `DELETE FROM registry_mirror WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	return nil
}

// LoadAll reads every mirrored row, used at Router startup to reconcile
// against live worker PIDs before accepting start/lookup calls.
func (s *Store) LoadAll(ctx context.Context) ([]registry.TenantRecord, error) {
	pool, err := s.conn.GetPool(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, `
		SELECT tenant_id, state, pid, listen_port, started_at, last_health_ok_at, restart_count, generation
		FROM registry_mirror
	`)
	if err != nil {
		return nil, fmt.Errorf("store: load all: %w", err)
	}
	defer rows.Close()

	var out []registry.TenantRecord
	for rows.Next() {
		var rec registry.TenantRecord
		var state string
		if err := rows.Scan(&rec.TenantID, &state, &rec.PID, &rec.ListenPort, &rec.StartedAt, &rec.LastHealthOKAt, &rec.RestartCount, &rec.Generation); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		rec.State = registry.State(state)
		out = append(out, rec)
	}

	return out, rows.Err()
}
