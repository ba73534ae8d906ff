package secretchain

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/boternity/boternity/pkg/models"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SQLiteStore persists encrypted secret blobs, hex-encoded for storage,
// in the `secrets` table (spec.md §6's "secrets (scoped, BLOB-encrypted
// value)" schema entry). It never sees plaintext; VaultProvider owns
// encryption.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the secrets table at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("secretchain: open database: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS secrets (
			key TEXT NOT NULL,
			scope_kind TEXT NOT NULL,
			bot_id TEXT NOT NULL DEFAULT '',
			value_hex TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			PRIMARY KEY (key, scope_kind, bot_id)
		)
	`)
	if err != nil {
		return fmt.Errorf("secretchain: create secrets table: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) get(ctx context.Context, key string, scope models.SecretScope) (string, bool, error) {
	var hexValue string
	err := s.db.QueryRowContext(ctx,
		`SELECT value_hex FROM secrets WHERE key = ? AND scope_kind = ? AND bot_id = ?`,
		key, string(scope.Kind), scope.BotID,
	).Scan(&hexValue)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("secretchain: query secret: %w", err)
	}
	return hexValue, true, nil
}

func (s *SQLiteStore) set(ctx context.Context, key, hexValue string, scope models.SecretScope) error {
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secrets (key, scope_kind, bot_id, value_hex, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (key, scope_kind, bot_id) DO UPDATE SET value_hex = excluded.value_hex, updated_at = excluded.updated_at
	`, key, string(scope.Kind), scope.BotID, hexValue, now, now)
	if err != nil {
		return fmt.Errorf("secretchain: upsert secret: %w", err)
	}
	return nil
}

func (s *SQLiteStore) delete(ctx context.Context, key string, scope models.SecretScope) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM secrets WHERE key = ? AND scope_kind = ? AND bot_id = ?`,
		key, string(scope.Kind), scope.BotID,
	)
	if err != nil {
		return fmt.Errorf("secretchain: delete secret: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("secretchain: delete secret: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) list(ctx context.Context, scope models.SecretScope) ([]models.SecretEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, created_at, updated_at FROM secrets WHERE scope_kind = ? AND bot_id = ?`,
		string(scope.Kind), scope.BotID,
	)
	if err != nil {
		return nil, fmt.Errorf("secretchain: list secrets: %w", err)
	}
	defer rows.Close()

	var entries []models.SecretEntry
	for rows.Next() {
		var e models.SecretEntry
		if err := rows.Scan(&e.Key, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("secretchain: scan secret row: %w", err)
		}
		e.Provider = models.SecretProviderVault
		e.Scope = scope
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

func hexDecode(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("secretchain: corrupt vault data: %w", err)
	}
	return b, nil
}
