// Package history persists session messages for plugins that declare
// require_history. The host reads them back before each call and hands them
// to the plugin through set_history.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/woxQAQ/plugin-bridge/pkg/protocol"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS history_messages (
	id         TEXT PRIMARY KEY,
	plugin_id  TEXT NOT NULL,
	type       TEXT NOT NULL,
	status     TEXT NOT NULL,
	content    TEXT NOT NULL,
	role       TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

const pluginIndex = `CREATE INDEX IF NOT EXISTS idx_history_plugin ON history_messages(plugin_id)`

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("history: store closed")

// Store is a SQLite-backed history store. Safe for concurrent use until Close.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// Open creates or opens the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("history: create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{
		db:     db,
		now:    time.Now,
		logger: logger.With(zap.String("component", "history")),
	}
	if err := s.init(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Debug("History store opened", zap.String("path", path))
	return s, nil
}

func (s *Store) init(ctx context.Context) error {
	stmts := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		schema,
		pluginIndex,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("history: apply %q: %w", stmt, err)
		}
	}
	return nil
}

// Close closes the database. Idempotent.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Append stores msg. A missing ID or CreatedAt is filled in; the stored
// message is returned.
func (s *Store) Append(ctx context.Context, msg protocol.HistoryMessage) (protocol.HistoryMessage, error) {
	if s.db == nil {
		return msg, ErrClosed
	}
	if msg.PluginID == "" {
		return msg, errors.New("history: plugin id is required")
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt == "" {
		msg.CreatedAt = s.now().UTC().Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history_messages (id, plugin_id, type, status, content, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.PluginID, msg.MessageType, msg.Status, msg.Content, msg.Role, msg.CreatedAt,
	)
	if err != nil {
		return msg, fmt.Errorf("history: append %s: %w", msg.ID, err)
	}
	return msg, nil
}

// List returns the latest limit messages of pluginID, oldest first.
// A non-positive limit returns all of them.
func (s *Store) List(ctx context.Context, pluginID string, limit int) ([]protocol.HistoryMessage, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, status, content, plugin_id, role, created_at FROM (
			SELECT rowid, * FROM history_messages
			WHERE plugin_id = ?
			ORDER BY rowid DESC
			LIMIT ?
		) ORDER BY rowid ASC`,
		pluginID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: list %s: %w", pluginID, err)
	}
	defer rows.Close()

	messages := []protocol.HistoryMessage{}
	for rows.Next() {
		var m protocol.HistoryMessage
		if err := rows.Scan(&m.ID, &m.MessageType, &m.Status, &m.Content, &m.PluginID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// Clear deletes every message of pluginID.
func (s *Store) Clear(ctx context.Context, pluginID string) error {
	if s.db == nil {
		return ErrClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history_messages WHERE plugin_id = ?`, pluginID); err != nil {
		return fmt.Errorf("history: clear %s: %w", pluginID, err)
	}
	return nil
}
