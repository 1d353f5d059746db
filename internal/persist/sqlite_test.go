package persist

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/l1jgo/cubic/internal/store"
	"go.uber.org/zap"
)

func TestSQLiteBackendPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "world.db")

	b, err := OpenSQLite(ctx, path, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	cell := store.Key{Kind: store.KindCell, X: -1, Y: 4, Z: 2}
	col := store.Key{Kind: store.KindColumn, X: -1, Z: 2}
	if err := b.PutBatch(ctx, []store.Entry{
		{Key: cell, Data: []byte("cell-v1")},
		{Key: col, Data: []byte("column")},
	}); err != nil {
		t.Fatalf("PutBatch: %v", err)
	}
	if err := b.PutBatch(ctx, []store.Entry{{Key: cell, Data: []byte("cell-v2")}}); err != nil {
		t.Fatalf("PutBatch overwrite: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenSQLite(ctx, path, zap.NewNop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	data, ok, err := reopened.Get(ctx, cell)
	if err != nil || !ok || string(data) != "cell-v2" {
		t.Fatalf("Get = %q %v %v", data, ok, err)
	}
	if ok, err := reopened.Has(ctx, col); err != nil || !ok {
		t.Fatalf("Has column = %v %v", ok, err)
	}
	if _, ok, _ := reopened.Get(ctx, store.Key{Kind: store.KindCell}); ok {
		t.Fatalf("unexpected document at origin")
	}

	seen := 0
	if err := reopened.ForEach(ctx, func(store.Entry) bool { seen++; return true }); err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if seen != 2 {
		t.Fatalf("ForEach visited %d documents, want 2", seen)
	}
}
