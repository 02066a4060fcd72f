package main

import (
	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/model"
	"github.com/Carmen-Shannon/oxy-world/engine/persist"
)

var placeholderBounds = common.AABB{Min: [3]float32{-0.5, 0, -0.5}, Max: [3]float32{0.5, 1, 0.5}}

// loadCatalog reads the YAML manifest when one is configured. Without one, every model named in
// the map gets a unit-cube placeholder so the map can still be loaded and repaired.
func loadCatalog(manifest string, snap persist.MapSnapshot) (model.Catalog, error) {
	if manifest != "" {
		return model.LoadManifest(manifest)
	}
	return placeholderCatalog(snap), nil
}

func placeholderCatalog(snap persist.MapSnapshot) model.Catalog {
	compound := make(map[string]bool)
	for _, r := range snap.Instances {
		compound[r.Model] = compound[r.Model] || r.Kind == "compound"
	}

	c := model.NewCatalog()
	for name, isCompound := range compound {
		opts := []model.ModelBuilderOption{model.WithName(name), model.WithLoaded(true)}
		if isCompound {
			opts = append(opts, model.WithParts(model.Part{
				Name:      "placeholder",
				Transform: common.IdentityTransform(),
				Bounds:    placeholderBounds,
			}))
		} else {
			opts = append(opts, model.WithBounds(placeholderBounds))
		}
		_ = c.Register(model.NewModel(opts...))
	}
	return c
}
