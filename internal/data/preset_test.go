package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flat.yaml")
	doc := `
name: test
biome: 2
transparent: [20]
layers:
  - {block: 7, from: 0, to: 0}
  - {block: 1, from: 1, to: 3}
  - {block: 20, from: 4, to: 4}
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadPreset(path)
	if err != nil {
		t.Fatalf("LoadPreset: %v", err)
	}
	if p.Name != "test" || p.Biome != 2 || p.Count() != 3 {
		t.Fatalf("unexpected preset %+v", p)
	}
	if id, _ := p.BlockAt(2); id != 1 {
		t.Fatalf("block at 2 = %d, want 1", id)
	}
	if id, _ := p.BlockAt(10); id != 0 {
		t.Fatalf("block above layers = %d, want air", id)
	}
	if p.Opaque(0) || p.Opaque(20) || !p.Opaque(7) {
		t.Fatal("opacity table wrong")
	}
	top, ok := p.TopOpaque()
	if !ok || top != 3 {
		t.Fatalf("TopOpaque = %d,%v want 3,true", top, ok)
	}
}

func TestParsePresetRejectsOverlap(t *testing.T) {
	doc := `
layers:
  - {block: 1, from: 0, to: 5}
  - {block: 2, from: 5, to: 6}
`
	_, err := ParsePreset([]byte(doc))
	if err == nil || !strings.Contains(err.Error(), "overlaps") {
		t.Fatalf("want overlap error, got %v", err)
	}
}

func TestParsePresetRejectsInvertedLayer(t *testing.T) {
	_, err := ParsePreset([]byte("layers:\n  - {block: 1, from: 4, to: 2}\n"))
	if err == nil {
		t.Fatal("want error for inverted layer")
	}
}

func TestShippedPresetsParse(t *testing.T) {
	for _, name := range []string{"flat.yaml", "layered.yaml"} {
		if _, err := LoadPreset(filepath.Join("..", "..", "data", "yaml", name)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
}
