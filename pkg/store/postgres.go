package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // Postgres driver

	"github.com/cartorio-ai/cartorio/pkg/contract"
)

// PostgresStore persists contracts in Postgres for shared deployments. Row
// locking (SELECT ... FOR UPDATE) plus the version check serializes
// transitions on one contract across processes.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects and migrates a Postgres-backed store.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore wraps an existing database handle.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		estado_atual TEXT NOT NULL,
		version BIGINT NOT NULL,
		doc JSONB NOT NULL
	);
	CREATE TABLE IF NOT EXISTS contract_state_history (
		id TEXT NOT NULL,
		contract_id TEXT NOT NULL,
		sequence BIGINT NOT NULL,
		estado_anterior TEXT NOT NULL,
		estado_novo TEXT NOT NULL,
		reason TEXT,
		actor TEXT,
		metadata JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		prev_hash TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (contract_id, sequence)
	);`
	if _, err := s.db.ExecContext(context.Background(), query); err != nil {
		return fmt.Errorf("store: migrate postgres: %w", err)
	}
	return nil
}

// Create implements contract.Store.
func (s *PostgresStore) Create(ctx context.Context, c *contract.RegistryContract) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("store: marshal contract: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contracts (id, estado_atual, version, doc) VALUES ($1, $2, $3, $4)`,
		c.ID, string(c.State), c.Version, string(doc),
	)
	if err != nil {
		return fmt.Errorf("store: insert contract: %w", err)
	}
	return nil
}

// Get implements contract.Store.
func (s *PostgresStore) Get(ctx context.Context, id string) (*contract.RegistryContract, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM contracts WHERE id = $1`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: %s: %w", id, contract.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: query contract: %w", err)
	}
	var c contract.RegistryContract
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, fmt.Errorf("store: unmarshal contract %s: %w", id, err)
	}
	return &c, nil
}

// ApplyTransition implements contract.Store. The contract row is locked for
// the duration of the transaction; the version check then rejects writers
// that resolved against stale state.
func (s *PostgresStore) ApplyTransition(ctx context.Context, c *contract.RegistryContract, expectVersion int64, row *contract.HistoryRow) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("store: marshal contract: %w", err)
	}
	meta, err := json.Marshal(row.Metadata)
	if err != nil {
		return fmt.Errorf("store: marshal history metadata: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin transition tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM contracts WHERE id = $1 FOR UPDATE`, c.ID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("store: %s: %w", c.ID, contract.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("store: lock contract row: %w", err)
	}
	if version != expectVersion {
		return fmt.Errorf("store: %s at version %d, expected %d: %w",
			c.ID, version, expectVersion, contract.ErrConcurrentTransition)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE contracts SET estado_atual = $1, version = $2, doc = $3 WHERE id = $4`,
		string(c.State), c.Version, string(doc), c.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update contract: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO contract_state_history
		 (id, contract_id, sequence, estado_anterior, estado_novo, reason, actor, metadata, created_at, prev_hash, content_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		row.ID, row.ContractID, row.Sequence, string(row.PrevState), string(row.NewState),
		row.Reason, row.Actor, string(meta), row.CreatedAt.UTC(),
		row.PrevHash, row.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("store: append history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transition: %w", err)
	}
	return nil
}

// History implements contract.Store.
func (s *PostgresStore) History(ctx context.Context, contractID string) ([]contract.HistoryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contract_id, sequence, estado_anterior, estado_novo, reason, actor, metadata, created_at, prev_hash, content_hash
		 FROM contract_state_history WHERE contract_id = $1 ORDER BY sequence ASC`, contractID)
	if err != nil {
		return nil, fmt.Errorf("store: query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []contract.HistoryRow
	for rows.Next() {
		r, err := scanPostgresHistoryRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate history: %w", err)
	}
	return out, nil
}

// LastHistory implements contract.Store.
func (s *PostgresStore) LastHistory(ctx context.Context, contractID string) (*contract.HistoryRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, contract_id, sequence, estado_anterior, estado_novo, reason, actor, metadata, created_at, prev_hash, content_hash
		 FROM contract_state_history WHERE contract_id = $1 ORDER BY sequence DESC LIMIT 1`, contractID)
	r, err := scanPostgresHistoryRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// scanPostgresHistoryRow decodes a history row; pq scans TIMESTAMPTZ into
// time.Time directly, unlike the text-typed SQLite driver.
func scanPostgresHistoryRow(scan func(...any) error) (*contract.HistoryRow, error) {
	var (
		r         contract.HistoryRow
		prevState string
		newState  string
		meta      sql.NullString
	)
	err := scan(&r.ID, &r.ContractID, &r.Sequence, &prevState, &newState,
		&r.Reason, &r.Actor, &meta, &r.CreatedAt, &r.PrevHash, &r.ContentHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan history row: %w", err)
	}
	r.PrevState = contract.State(prevState)
	r.NewState = contract.State(newState)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &r.Metadata); err != nil {
			return nil, fmt.Errorf("store: unmarshal history metadata: %w", err)
		}
	}
	return &r, nil
}
