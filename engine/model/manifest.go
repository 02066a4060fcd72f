package model

import (
	"fmt"
	"os"

	"github.com/Carmen-Shannon/oxy-world/common"
	"gopkg.in/yaml.v3"
)

// ManifestEntry describes one model in a YAML asset manifest.
type ManifestEntry struct {
	Name string `yaml:"name"`
	// Min and Max are the local bounds of a point model.
	Min [3]float32 `yaml:"min"`
	Max [3]float32 `yaml:"max"`
	// Deferred models start unloaded and must be marked loaded before their instances get indexed.
	Deferred bool                `yaml:"deferred"`
	Parts    []ManifestPartEntry `yaml:"parts"`
}

// ManifestPartEntry describes one part of a compound model.
type ManifestPartEntry struct {
	Name     string      `yaml:"name"`
	Position [3]float32  `yaml:"position"`
	Rotation [3]float32  `yaml:"rotation"`
	Scale    *[3]float32 `yaml:"scale"`
	Min      [3]float32  `yaml:"min"`
	Max      [3]float32  `yaml:"max"`
}

type manifestFile struct {
	Models []ManifestEntry `yaml:"models"`
}

// LoadManifest reads a YAML asset manifest from disk and registers every model in a new Catalog.
//
// Parameters:
//   - path: the manifest file path
//
// Returns:
//   - Catalog: the populated catalog
//   - error: read, parse, or duplicate-name errors
func LoadManifest(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data)
}

// ParseManifest decodes YAML manifest bytes into a new Catalog.
//
// Parameters:
//   - data: the YAML document
//
// Returns:
//   - Catalog: the populated catalog
//   - error: parse or duplicate-name errors
func ParseManifest(data []byte) (Catalog, error) {
	var f manifestFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	c := NewCatalog()
	for i := range f.Models {
		e := &f.Models[i]
		if e.Name == "" {
			return nil, fmt.Errorf("parse manifest: model %d has no name", i)
		}
		if err := c.Register(e.toModel()); err != nil {
			return nil, fmt.Errorf("parse manifest: %w", err)
		}
	}
	return c, nil
}

func (e *ManifestEntry) toModel() Model {
	opts := []ModelBuilderOption{
		WithName(e.Name),
		WithLoaded(!e.Deferred),
	}
	if len(e.Parts) == 0 {
		opts = append(opts, WithBounds(common.AABB{Min: e.Min, Max: e.Max}))
	}
	for _, p := range e.Parts {
		t := common.IdentityTransform()
		t.Position = p.Position
		t.Rotation = p.Rotation
		if p.Scale != nil {
			t.Scale = *p.Scale
		}
		opts = append(opts, WithParts(Part{
			Name:      p.Name,
			Transform: t,
			Bounds:    common.AABB{Min: p.Min, Max: p.Max},
		}))
	}
	return NewModel(opts...)
}
