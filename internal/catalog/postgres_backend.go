package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend is the "SQL later" catalog backend anticipated by the
// pluggable-state-backend design note: repos and workpads are stored as
// JSONB blobs keyed by id, so the schema does not need to track every field
// listed in the data model one column at a time.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS repositories (
    id         TEXT PRIMARY KEY,
    record     JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS workpads (
    id         TEXT PRIMARY KEY,
    repo_id    TEXT NOT NULL,
    record     JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_workpads_repo ON workpads(repo_id);
`

// NewPostgresBackend connects to dsn and ensures the catalog schema exists.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to catalog database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (b *PostgresBackend) PutRepo(r *Repository) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal repo %s: %w", r.ID, err)
	}
	_, err = b.pool.Exec(context.Background(),
		`INSERT INTO repositories (id, record) VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET record = $2, updated_at = now()`,
		r.ID, data,
	)
	if err != nil {
		return fmt.Errorf("put repo %s: %w", r.ID, err)
	}
	return nil
}

func (b *PostgresBackend) GetRepo(id string) (*Repository, bool, error) {
	var data []byte
	err := b.pool.QueryRow(context.Background(),
		`SELECT record FROM repositories WHERE id = $1`, id,
	).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get repo %s: %w", id, err)
	}
	var r Repository
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false, fmt.Errorf("unmarshal repo %s: %w", id, err)
	}
	return &r, true, nil
}

func (b *PostgresBackend) ListRepos() ([]*Repository, error) {
	rows, err := b.pool.Query(context.Background(),
		`SELECT record FROM repositories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer rows.Close()

	var out []*Repository
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan repo: %w", err)
		}
		var r Repository
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("unmarshal repo: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) DeleteRepo(id string) error {
	_, err := b.pool.Exec(context.Background(), `DELETE FROM repositories WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete repo %s: %w", id, err)
	}
	return nil
}

func (b *PostgresBackend) PutWorkpad(w *Workpad) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal workpad %s: %w", w.ID, err)
	}
	_, err = b.pool.Exec(context.Background(),
		`INSERT INTO workpads (id, repo_id, record) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET record = $3, repo_id = $2, updated_at = now()`,
		w.ID, w.RepoID, data,
	)
	if err != nil {
		return fmt.Errorf("put workpad %s: %w", w.ID, err)
	}
	return nil
}

func (b *PostgresBackend) GetWorkpad(id string) (*Workpad, bool, error) {
	var data []byte
	err := b.pool.QueryRow(context.Background(),
		`SELECT record FROM workpads WHERE id = $1`, id,
	).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get workpad %s: %w", id, err)
	}
	var w Workpad
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, false, fmt.Errorf("unmarshal workpad %s: %w", id, err)
	}
	return &w, true, nil
}

func (b *PostgresBackend) ListWorkpads() ([]*Workpad, error) {
	rows, err := b.pool.Query(context.Background(),
		`SELECT record FROM workpads ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list workpads: %w", err)
	}
	defer rows.Close()

	var out []*Workpad
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan workpad: %w", err)
		}
		var w Workpad
		if err := json.Unmarshal(data, &w); err != nil {
			return nil, fmt.Errorf("unmarshal workpad: %w", err)
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

func (b *PostgresBackend) DeleteWorkpad(id string) error {
	_, err := b.pool.Exec(context.Background(), `DELETE FROM workpads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workpad %s: %w", id, err)
	}
	return nil
}

// Snapshot is a no-op: Postgres already durably commits every write.
func (b *PostgresBackend) Snapshot() error { return nil }

func (b *PostgresBackend) Close() error {
	b.pool.Close()
	return nil
}
