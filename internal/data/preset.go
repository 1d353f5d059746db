package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Layer fills every block between From and To (world Y, inclusive).
type Layer struct {
	Block uint16 `yaml:"block"`
	Meta  uint8  `yaml:"meta"`
	From  int32  `yaml:"from"`
	To    int32  `yaml:"to"`
	Note  string `yaml:"note"`
}

// Terrain parameters for the height-field generator.
type Terrain struct {
	BaseHeight  int32   `yaml:"base_height"`
	Amplitude   float64 `yaml:"amplitude"`
	Wavelength  float64 `yaml:"wavelength"`
	Bedrock     uint16  `yaml:"bedrock_block"`
	BedrockY    int32   `yaml:"bedrock_y"`
	Stone       uint16  `yaml:"stone_block"`
	Filler      uint16  `yaml:"filler_block"`
	FillerDepth int32   `yaml:"filler_depth"`
	Surface     uint16  `yaml:"surface_block"`
	Water       uint16  `yaml:"water_block"`
	SeaLevel    int32   `yaml:"sea_level"`
	Decoration  uint16  `yaml:"decoration_block"`
}

// Preset describes a world generator setup.
type Preset struct {
	Name        string   `yaml:"name"`
	Biome       uint8    `yaml:"biome"`
	Layers      []Layer  `yaml:"layers"`
	Terrain     Terrain  `yaml:"terrain"`
	Transparent []uint16 `yaml:"transparent"`

	transparent map[uint16]struct{}
}

// LoadPreset loads a generator preset yaml file.
func LoadPreset(path string) (*Preset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read preset: %w", err)
	}
	p, err := ParsePreset(raw)
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", path, err)
	}
	return p, nil
}

// ParsePreset decodes and validates a preset document.
func ParsePreset(raw []byte) (*Preset, error) {
	var p Preset
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse preset: %w", err)
	}
	for i, l := range p.Layers {
		if l.From > l.To {
			return nil, fmt.Errorf("layer %d: from %d above to %d", i, l.From, l.To)
		}
		for j := 0; j < i; j++ {
			o := p.Layers[j]
			if l.From <= o.To && o.From <= l.To {
				return nil, fmt.Errorf("layer %d overlaps layer %d", i, j)
			}
		}
	}
	if p.Terrain.Wavelength < 0 {
		return nil, fmt.Errorf("terrain wavelength must not be negative")
	}
	p.transparent = make(map[uint16]struct{}, len(p.Transparent))
	for _, id := range p.Transparent {
		p.transparent[id] = struct{}{}
	}
	return &p, nil
}

// BlockAt returns the layer block at world height y, or air.
func (p *Preset) BlockAt(y int32) (uint16, uint8) {
	for i := range p.Layers {
		l := &p.Layers[i]
		if y >= l.From && y <= l.To {
			return l.Block, l.Meta
		}
	}
	return 0, 0
}

// Opaque reports whether a block id stops sky light. Air never does.
func (p *Preset) Opaque(id uint16) bool {
	if id == 0 {
		return false
	}
	_, ok := p.transparent[id]
	return !ok
}

// TopOpaque returns the highest layer Y holding an opaque block.
func (p *Preset) TopOpaque() (int32, bool) {
	var top int32
	found := false
	for _, l := range p.Layers {
		if p.Opaque(l.Block) && (!found || l.To > top) {
			top, found = l.To, true
		}
	}
	return top, found
}

// Count returns the number of layers.
func (p *Preset) Count() int {
	return len(p.Layers)
}
