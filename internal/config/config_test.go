package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[database]
backend = "memory"

[network]
tick_rate = "100ms"

[world]
view_distance_xz = 3
generator = "lua"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.Backend != "memory" || cfg.World.Generator != "lua" {
		t.Fatalf("overrides lost: %+v", cfg.Database)
	}
	if cfg.Network.TickRate != 100*time.Millisecond {
		t.Fatalf("tick rate %v", cfg.Network.TickRate)
	}
	if cfg.World.ViewDistanceXZ != 3 || cfg.World.ViewDistanceY != 4 {
		t.Fatalf("view %d/%d", cfg.World.ViewDistanceXZ, cfg.World.ViewDistanceY)
	}
	if cfg.Store.MaxWorkers != 16 || cfg.World.ScriptDir != "scripts" {
		t.Fatal("untouched sections should keep defaults")
	}
	if cfg.Server.StartTime == 0 {
		t.Fatal("start time not stamped")
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"backend":   "[database]\nbackend = \"mysql\"\n",
		"generator": "[world]\ngenerator = \"noise\"\n",
		"view":      "[world]\nview_distance_y = -1\n",
		"workers":   "[store]\nmin_workers = 8\nmax_workers = 2\n",
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: invalid config accepted", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err == nil || !strings.Contains(err.Error(), "read config") {
		t.Fatalf("err = %v", err)
	}
}

func TestShippedConfigLoads(t *testing.T) {
	cfg, err := Load("../../config/server.toml")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.World.Generator != "layered" || cfg.Store.CacheTTL != 30*time.Second {
		t.Fatalf("unexpected shipped config: %+v", cfg.World)
	}
}
