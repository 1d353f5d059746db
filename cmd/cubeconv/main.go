// cubeconv copies and checks stored world documents between backends.
//
// Usage:
//
//	go run ./cmd/cubeconv <command> -from sqlite:world.db [-to postgres:postgres://...]
//
// Commands: copy, verify, count
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/l1jgo/cubic/internal/config"
	"github.com/l1jgo/cubic/internal/persist"
	"github.com/l1jgo/cubic/internal/store"
	"github.com/l1jgo/cubic/internal/tag"
	"github.com/l1jgo/cubic/internal/world"
	"go.uber.org/zap"
)

const batchSize = 256

func printUsage() {
	fmt.Println("Usage: cubeconv <command> -from <backend> [-to <backend>]")
	fmt.Println()
	fmt.Println("Backends:")
	fmt.Println("  sqlite:<path>       embedded SQLite file")
	fmt.Println("  postgres:<dsn>      PostgreSQL database")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  copy      Copy every document from -from into -to")
	fmt.Println("  verify    Decode every document in -from and report corrupt ones")
	fmt.Println("  count     Count cell and column documents in -from")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	cmd := os.Args[1]
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	from := fs.String("from", "sqlite:world.db", "source backend")
	to := fs.String("to", "", "destination backend (copy only)")
	_ = fs.Parse(os.Args[2:])

	log := zap.NewNop()
	ctx := context.Background()

	src, err := openBackend(ctx, *from, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
	defer src.Close()

	switch cmd {
	case "copy":
		if *to == "" {
			fmt.Fprintln(os.Stderr, "copy needs -to")
			os.Exit(1)
		}
		dst, err := openBackend(ctx, *to, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		defer dst.Close()
		n, err := copyAll(ctx, src, dst)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Copied %d documents from %s to %s\n", n, *from, *to)
	case "verify":
		st, err := verifyAll(ctx, src)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		for _, k := range st.corrupt {
			fmt.Printf("  corrupt %s\n", k)
		}
		fmt.Printf("Checked %d cells, %d columns: %d corrupt\n", st.cells, st.columns, len(st.corrupt))
		if len(st.corrupt) > 0 {
			os.Exit(2)
		}
	case "count":
		st, err := countAll(ctx, src)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%d cells, %d columns\n", st.cells, st.columns)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

// openBackend parses "kind:target".
func openBackend(ctx context.Context, spec string, log *zap.Logger) (store.Backend, error) {
	kind, target, ok := strings.Cut(spec, ":")
	if !ok || target == "" {
		return nil, fmt.Errorf("backend %q: want kind:target", spec)
	}
	switch kind {
	case "sqlite":
		return persist.OpenSQLite(ctx, target, log)
	case "postgres":
		db, err := persist.NewDB(ctx, config.DatabaseConfig{
			DSN:             target,
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		}, log)
		if err != nil {
			return nil, err
		}
		if err := persist.RunMigrations(ctx, db.Pool); err != nil {
			db.Close()
			return nil, err
		}
		return persist.NewPostgresBackend(db), nil
	}
	return nil, fmt.Errorf("backend %q: unknown kind %q", spec, kind)
}

// copyAll streams src into dst in fixed-size batches.
func copyAll(ctx context.Context, src, dst store.Backend) (int, error) {
	var (
		batch  []store.Entry
		total  int
		putErr error
	)
	err := src.ForEach(ctx, func(e store.Entry) bool {
		batch = append(batch, e)
		if len(batch) < batchSize {
			return true
		}
		if putErr = dst.PutBatch(ctx, batch); putErr != nil {
			return false
		}
		total += len(batch)
		batch = batch[:0]
		return true
	})
	if err != nil {
		return total, fmt.Errorf("read source: %w", err)
	}
	if putErr != nil {
		return total, fmt.Errorf("write destination: %w", putErr)
	}
	if len(batch) > 0 {
		if err := dst.PutBatch(ctx, batch); err != nil {
			return total, fmt.Errorf("write destination: %w", err)
		}
		total += len(batch)
	}
	return total, nil
}

type stats struct {
	cells, columns int
	corrupt        []store.Key
}

func countAll(ctx context.Context, src store.Backend) (stats, error) {
	var st stats
	err := src.ForEach(ctx, func(e store.Entry) bool {
		if e.Key.Kind == store.KindColumn {
			st.columns++
		} else {
			st.cells++
		}
		return true
	})
	return st, err
}

func verifyAll(ctx context.Context, src store.Backend) (stats, error) {
	var st stats
	err := src.ForEach(ctx, func(e store.Entry) bool {
		var err error
		switch e.Key.Kind {
		case store.KindColumn:
			st.columns++
			_, err = tag.DecodeColumn(e.Data, world.ColumnPos{X: e.Key.X, Z: e.Key.Z})
		default:
			st.cells++
			pos := world.CellPos{X: e.Key.X, Y: e.Key.Y, Z: e.Key.Z}
			_, err = tag.DecodeCell(e.Data, pos, world.DecodeBlockSection, "")
		}
		if err != nil {
			st.corrupt = append(st.corrupt, e.Key)
		}
		return true
	})
	return st, err
}
