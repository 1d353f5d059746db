package persist

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/l1jgo/cubic/internal/store"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteBackend stores documents in an embedded SQLite file. It implements
// store.Backend.
type SQLiteBackend struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations.
func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One writer at a time; SQLite serialises writes anyway.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if err := RunSQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteBackend{db: db, log: log}, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key store.Key) ([]byte, bool, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT data FROM cube_documents WHERE kind = ? AND x = ? AND z = ? AND y = ?`,
		int(key.Kind), key.X, key.Z, key.Y,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *SQLiteBackend) Has(ctx context.Context, key store.Key) (bool, error) {
	var n int
	err := b.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM cube_documents WHERE kind = ? AND x = ? AND z = ? AND y = ?`,
		int(key.Kind), key.X, key.Z, key.Y,
	).Scan(&n)
	return n > 0, err
}

func (b *SQLiteBackend) PutBatch(ctx context.Context, entries []store.Entry) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cube_documents (kind, x, y, z, data, updated_at)
		 VALUES (?, ?, ?, ?, ?, unixepoch())
		 ON CONFLICT (kind, x, z, y) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("sqlite prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, int(e.Key.Kind), e.Key.X, e.Key.Y, e.Key.Z, e.Data); err != nil {
			return fmt.Errorf("sqlite upsert %v: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

func (b *SQLiteBackend) ForEach(ctx context.Context, fn func(store.Entry) bool) error {
	rows, err := b.db.QueryContext(ctx, `SELECT kind, x, y, z, data FROM cube_documents ORDER BY kind, x, z, y`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind int
			e    store.Entry
		)
		if err := rows.Scan(&kind, &e.Key.X, &e.Key.Y, &e.Key.Z, &e.Data); err != nil {
			return err
		}
		e.Key.Kind = store.Kind(kind)
		if !fn(e) {
			break
		}
	}
	return rows.Err()
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
