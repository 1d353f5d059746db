package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/l1jgo/cubic/internal/store"
)

// PostgresBackend stores cell and column documents in Postgres. It implements
// store.Backend.
type PostgresBackend struct {
	db *DB
}

func NewPostgresBackend(db *DB) *PostgresBackend {
	return &PostgresBackend{db: db}
}

func (r *PostgresBackend) Get(ctx context.Context, key store.Key) ([]byte, bool, error) {
	var data []byte
	err := r.db.Pool.QueryRow(ctx,
		`SELECT data FROM cube_documents WHERE kind = $1 AND x = $2 AND z = $3 AND y = $4`,
		int16(key.Kind), key.X, key.Z, key.Y,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *PostgresBackend) Has(ctx context.Context, key store.Key) (bool, error) {
	var ok bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM cube_documents WHERE kind = $1 AND x = $2 AND z = $3 AND y = $4)`,
		int16(key.Kind), key.X, key.Z, key.Y,
	).Scan(&ok)
	return ok, err
}

// PutBatch upserts all entries in a single transaction.
func (r *PostgresBackend) PutBatch(ctx context.Context, entries []store.Entry) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("documents begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(
			`INSERT INTO cube_documents (kind, x, y, z, data, updated_at)
			 VALUES ($1, $2, $3, $4, $5, now())
			 ON CONFLICT (kind, x, z, y) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
			int16(e.Key.Kind), e.Key.X, e.Key.Y, e.Key.Z, e.Data,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("documents upsert: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *PostgresBackend) ForEach(ctx context.Context, fn func(store.Entry) bool) error {
	rows, err := r.db.Pool.Query(ctx, `SELECT kind, x, y, z, data FROM cube_documents ORDER BY kind, x, z, y`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			kind int16
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

// Close releases the underlying pool.
func (r *PostgresBackend) Close() error {
	r.db.Close()
	return nil
}
