package model

import (
	"github.com/Carmen-Shannon/oxy-world/common"
)

// ModelBuilderOption is a functional option for configuring a Model via NewModel.
type ModelBuilderOption func(*model)

// WithName is an option builder that sets the name of the Model.
//
// Parameters:
//   - name: the model identifier
//
// Returns:
//   - ModelBuilderOption: a function that applies the name option to a model
func WithName(name string) ModelBuilderOption {
	return func(m *model) {
		m.name = name
	}
}

// WithBounds sets the model-space bounding box of a point model.
//
// Parameters:
//   - b: the local bounding box
//
// Returns:
//   - ModelBuilderOption: a function that applies the bounds option to a model
func WithBounds(b common.AABB) ModelBuilderOption {
	return func(m *model) {
		m.bounds = b
	}
}

// WithParts makes the model a compound model built from the given parts.
//
// Parameters:
//   - parts: the placed parts of the model
//
// Returns:
//   - ModelBuilderOption: a function that applies the parts option to a model
func WithParts(parts ...Part) ModelBuilderOption {
	return func(m *model) {
		m.parts = append(m.parts, parts...)
	}
}

// WithLoaded sets the initial loaded state of the model.
//
// Parameters:
//   - loaded: whether the geometry is already available
//
// Returns:
//   - ModelBuilderOption: a function that applies the loaded option to a model
func WithLoaded(loaded bool) ModelBuilderOption {
	return func(m *model) {
		m.loaded.Store(loaded)
	}
}
