package store

import (
	"fmt"

	"github.com/l1jgo/cubic/internal/world"
)

// Kind distinguishes the two document families sharing one backend.
type Kind uint8

const (
	KindColumn Kind = 1
	KindCell   Kind = 2
)

// Key addresses one stored document. Column keys have Y == 0.
type Key struct {
	Kind    Kind
	X, Y, Z int32
}

func CellKey(p world.CellPos) Key {
	return Key{Kind: KindCell, X: p.X, Y: p.Y, Z: p.Z}
}

func ColumnKey(p world.ColumnPos) Key {
	return Key{Kind: KindColumn, X: p.X, Z: p.Z}
}

func (k Key) String() string {
	if k.Kind == KindColumn {
		return fmt.Sprintf("column(%d,%d)", k.X, k.Z)
	}
	return fmt.Sprintf("cell(%d,%d,%d)", k.X, k.Y, k.Z)
}

// Entry is one document in a write batch.
type Entry struct {
	Key  Key
	Data []byte
}
