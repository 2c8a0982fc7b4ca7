package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cartorio-ai/cartorio/pkg/contract"
)

// SQLiteStore persists contracts in an embedded SQLite database. The history
// table is append-only: no UPDATE or DELETE statement for it exists in this
// package.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLite-backed store at the given DSN.
// Use ":memory:" for tests.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// The embedded driver serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent transitions.
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLiteStore wraps an existing database handle.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		estado_atual TEXT NOT NULL,
		version INTEGER NOT NULL,
		doc JSON NOT NULL
	);
	CREATE TABLE IF NOT EXISTS contract_state_history (
		id TEXT NOT NULL,
		contract_id TEXT NOT NULL,
		sequence INTEGER NOT NULL,
		estado_anterior TEXT NOT NULL,
		estado_novo TEXT NOT NULL,
		reason TEXT,
		actor TEXT,
		metadata JSON,
		created_at DATETIME NOT NULL,
		prev_hash TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		PRIMARY KEY (contract_id, sequence)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("store: migrate sqlite: %w", err)
	}
	return nil
}

// Create implements contract.Store.
func (s *SQLiteStore) Create(ctx context.Context, c *contract.RegistryContract) error {
	doc, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("store: marshal contract: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO contracts (id, estado_atual, version, doc) VALUES (?, ?, ?, ?)`,
		c.ID, string(c.State), c.Version, string(doc),
	)
	if err != nil {
		return fmt.Errorf("store: insert contract: %w", err)
	}
	return nil
}

// Get implements contract.Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*contract.RegistryContract, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM contracts WHERE id = ?`, id).Scan(&doc)
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

// ApplyTransition implements contract.Store. The contract update and history
// append share one transaction; a stale version surfaces as
// ErrConcurrentTransition with nothing written.
func (s *SQLiteStore) ApplyTransition(ctx context.Context, c *contract.RegistryContract, expectVersion int64, row *contract.HistoryRow) error {
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

	res, err := tx.ExecContext(ctx,
		`UPDATE contracts SET estado_atual = ?, version = ?, doc = ? WHERE id = ? AND version = ?`,
		string(c.State), c.Version, string(doc), c.ID, expectVersion,
	)
	if err != nil {
		return fmt.Errorf("store: update contract: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s: %w", c.ID, contract.ErrConcurrentTransition)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO contract_state_history
		 (id, contract_id, sequence, estado_anterior, estado_novo, reason, actor, metadata, created_at, prev_hash, content_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.ContractID, row.Sequence, string(row.PrevState), string(row.NewState),
		row.Reason, row.Actor, string(meta), row.CreatedAt.UTC().Format(time.RFC3339Nano),
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
func (s *SQLiteStore) History(ctx context.Context, contractID string) ([]contract.HistoryRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, contract_id, sequence, estado_anterior, estado_novo, reason, actor, metadata, created_at, prev_hash, content_hash
		 FROM contract_state_history WHERE contract_id = ? ORDER BY sequence ASC`, contractID)
	if err != nil {
		return nil, fmt.Errorf("store: query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []contract.HistoryRow
	for rows.Next() {
		r, err := scanHistoryRow(rows.Scan)
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
func (s *SQLiteStore) LastHistory(ctx context.Context, contractID string) (*contract.HistoryRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, contract_id, sequence, estado_anterior, estado_novo, reason, actor, metadata, created_at, prev_hash, content_hash
		 FROM contract_state_history WHERE contract_id = ? ORDER BY sequence DESC LIMIT 1`, contractID)
	r, err := scanHistoryRow(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// scanHistoryRow decodes one history row from either *sql.Row or *sql.Rows.
func scanHistoryRow(scan func(...any) error) (*contract.HistoryRow, error) {
	var (
		r         contract.HistoryRow
		prevState string
		newState  string
		meta      sql.NullString
		createdAt string
	)
	err := scan(&r.ID, &r.ContractID, &r.Sequence, &prevState, &newState,
		&r.Reason, &r.Actor, &meta, &createdAt, &r.PrevHash, &r.ContentHash)
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
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("store: parse history timestamp: %w", err)
	}
	r.CreatedAt = ts
	return &r, nil
}
