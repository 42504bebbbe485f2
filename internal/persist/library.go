package persist

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"pkt.systems/pmdesk/schema"
	"pkt.systems/pslog"

	_ "modernc.org/sqlite"
)

// Library stores named arrangement blobs per user in SQLite.
type Library struct {
	db  *sql.DB
	log pslog.Logger
	now func() time.Time
}

// OpenLibrary opens (and migrates) the library database at path.
func OpenLibrary(ctx context.Context, path string, logger pslog.Logger) (*Library, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("library path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS arrangements (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		cells INTEGER NOT NULL,
		blob_json TEXT NOT NULL,
		updated_at_unixms INTEGER NOT NULL,
		UNIQUE(user_id, name)
	);`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if logger != nil {
		logger = logger.With("library", path)
	}
	return &Library{db: db, log: logger, now: time.Now}, nil
}

// Close releases the database.
func (l *Library) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Save stores blob under name, replacing an existing arrangement with the same name.
func (l *Library) Save(ctx context.Context, userID schema.UserID, name string, blob []byte) (schema.ArrangementInfo, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return schema.ArrangementInfo{}, fmt.Errorf("%w: arrangement name is required", schema.ErrInvalidRequest)
	}
	var decoded schema.ArrangementBlob
	if err := json.Unmarshal(blob, &decoded); err != nil {
		return schema.ArrangementInfo{}, fmt.Errorf("%w: %v", schema.ErrMalformedSnapshot, err)
	}
	info := schema.ArrangementInfo{
		ID:        schema.ArrangementID(uuid.NewString()),
		Name:      name,
		Cells:     len(decoded.Sheets),
		UpdatedAt: l.now().UTC().Truncate(time.Millisecond),
	}
	row := l.db.QueryRowContext(ctx, `INSERT INTO arrangements (id, user_id, name, cells, blob_json, updated_at_unixms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, name) DO UPDATE SET
			cells = excluded.cells,
			blob_json = excluded.blob_json,
			updated_at_unixms = excluded.updated_at_unixms
		RETURNING id`,
		string(info.ID), string(userID), info.Name, info.Cells, string(blob), info.UpdatedAt.UnixMilli())
	var id string
	if err := row.Scan(&id); err != nil {
		l.warn("library save failed", "user", userID, "name", name, "err", err)
		return schema.ArrangementInfo{}, err
	}
	info.ID = schema.ArrangementID(id)
	l.debug("library save ok", "user", userID, "arrangement", id, "cells", info.Cells)
	return info, nil
}

// List returns a user's arrangements, most recently updated first.
func (l *Library) List(ctx context.Context, userID schema.UserID) ([]schema.ArrangementInfo, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT id, name, cells, updated_at_unixms FROM arrangements
		WHERE user_id = ? ORDER BY updated_at_unixms DESC, name ASC`, string(userID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []schema.ArrangementInfo{}
	for rows.Next() {
		var (
			info    schema.ArrangementInfo
			id      string
			updated int64
		)
		if err := rows.Scan(&id, &info.Name, &info.Cells, &updated); err != nil {
			return nil, err
		}
		info.ID = schema.ArrangementID(id)
		info.UpdatedAt = time.UnixMilli(updated).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

// Get loads an arrangement by id, or by name when id is empty.
func (l *Library) Get(ctx context.Context, userID schema.UserID, id schema.ArrangementID, name string) (schema.ArrangementInfo, []byte, error) {
	query, arg, err := lookupClause(id, name)
	if err != nil {
		return schema.ArrangementInfo{}, nil, err
	}
	row := l.db.QueryRowContext(ctx, `SELECT id, name, cells, blob_json, updated_at_unixms FROM arrangements
		WHERE user_id = ? AND `+query, string(userID), arg)
	var (
		info    schema.ArrangementInfo
		rawID   string
		blob    string
		updated int64
	)
	if err := row.Scan(&rawID, &info.Name, &info.Cells, &blob, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return schema.ArrangementInfo{}, nil, fmt.Errorf("%w: %s", schema.ErrArrangementNotFound, arg)
		}
		return schema.ArrangementInfo{}, nil, err
	}
	info.ID = schema.ArrangementID(rawID)
	info.UpdatedAt = time.UnixMilli(updated).UTC()
	return info, []byte(blob), nil
}

// Delete removes an arrangement by id, or by name when id is empty.
func (l *Library) Delete(ctx context.Context, userID schema.UserID, id schema.ArrangementID, name string) error {
	query, arg, err := lookupClause(id, name)
	if err != nil {
		return err
	}
	res, err := l.db.ExecContext(ctx, `DELETE FROM arrangements WHERE user_id = ? AND `+query, string(userID), arg)
	if err != nil {
		l.warn("library delete failed", "user", userID, "err", err)
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", schema.ErrArrangementNotFound, arg)
	}
	l.debug("library delete ok", "user", userID, "lookup", arg)
	return nil
}

func lookupClause(id schema.ArrangementID, name string) (string, string, error) {
	if id != "" {
		return "id = ?", string(id), nil
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("%w: arrangement id or name is required", schema.ErrInvalidRequest)
	}
	return "name = ?", name, nil
}

func (l *Library) debug(msg string, kv ...any) {
	if l.log != nil {
		l.log.Debug(msg, kv...)
	}
}

func (l *Library) warn(msg string, kv ...any) {
	if l.log != nil {
		l.log.Warn(msg, kv...)
	}
}
