package infra

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"apikey-gateway/middleware/apikey/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore persiste o snapshot numa tabela SQLite embarcada.
//
// Save substitui todas as linhas dentro de uma transação, então o snapshot
// continua sendo gravado por inteiro e de forma atômica.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// um único escritor; evita SQLITE_BUSY entre conexões do mesmo processo
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			api_key TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			requests_left INTEGER NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Load lê todas as contas. A tabela é criada vazia em NewSQLiteStore, então
// "sem estado" já é um snapshot vazio persistido.
func (s *SQLiteStore) Load(ctx context.Context) (domain.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT api_key, created_at, requests_left FROM accounts")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := domain.Snapshot{}
	for rows.Next() {
		var (
			key       string
			createdAt string
			acc       domain.Account
		)
		if err := rows.Scan(&key, &createdAt, &acc.RequestsLeft); err != nil {
			return nil, err
		}
		acc.Key = domain.Key(key)
		acc.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", domain.Mask(acc.Key), err)
		}
		out[acc.Key] = acc
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Save(ctx context.Context, snap domain.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM accounts"); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO accounts (api_key, created_at, requests_left) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for k, acc := range snap {
		if _, err := stmt.ExecContext(ctx, string(k), acc.CreatedAt.UTC().Format(time.RFC3339Nano), acc.RequestsLeft); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
