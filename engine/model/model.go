package model

import (
	"sync"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-world/common"
)

// model is the implementation of the Model interface.
type model struct {
	name   string
	bounds common.AABB
	parts  []Part
	loaded atomic.Bool
	mu     *sync.RWMutex
}

// Part is one sub-mesh of a compound model, placed relative to the model origin.
type Part struct {
	// Name identifies the part within its model.
	Name string
	// Transform places the part in model space.
	Transform common.Transform
	// Bounds is the part's local-space bounding box before Transform is applied.
	Bounds common.AABB
}

// Model defines the interface for a placeable asset.
// A Model only describes what instances of it occupy in space: its name, local bounding box,
// and for compound models the list of placed parts. Geometry parsing happens elsewhere;
// until that finishes the model reports Loaded() == false and its bounds must not be trusted.
type Model interface {
	// Name retrieves the model identifier.
	//
	// Returns:
	//   - string: the model name
	Name() string

	// Loaded reports whether the model's geometry has finished loading.
	// Instances of an unloaded model have no valid extents.
	//
	// Returns:
	//   - bool: true once the geometry is available
	Loaded() bool

	// SetLoaded marks the model's geometry as loaded or unloaded.
	//
	// Parameters:
	//   - loaded: the new loaded state
	SetLoaded(loaded bool)

	// Bounds returns the model-space bounding box. For compound models this is the
	// union of every part's bounds after its part transform.
	//
	// Returns:
	//   - common.AABB: the local bounding box
	Bounds() common.AABB

	// SetBounds replaces the model-space bounding box of a point model.
	// Has no effect on compound models, whose bounds derive from their parts.
	//
	// Parameters:
	//   - b: the new bounds
	SetBounds(b common.AABB)

	// Parts returns a copy of the compound model's parts, or nil for point models.
	//
	// Returns:
	//   - []Part: the model parts
	Parts() []Part

	// Compound reports whether the model is made of several placed parts.
	//
	// Returns:
	//   - bool: true for compound models
	Compound() bool
}

var _ Model = &model{}

// NewModel creates a new Model instance with the specified options applied.
// Models start unloaded unless WithLoaded(true) is given.
//
// Parameters:
//   - options: a variadic list of ModelBuilderOption functions to configure the Model
//
// Returns:
//   - Model: a new instance of Model configured with the provided options
func NewModel(options ...ModelBuilderOption) Model {
	m := &model{
		bounds: common.EmptyAABB(),
		mu:     &sync.RWMutex{},
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *model) Name() string {
	return m.name
}

func (m *model) Loaded() bool {
	return m.loaded.Load()
}

func (m *model) SetLoaded(loaded bool) {
	m.loaded.Store(loaded)
}

func (m *model) Bounds() common.AABB {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.parts) == 0 {
		return m.bounds
	}
	out := common.EmptyAABB()
	for _, p := range m.parts {
		mat := p.Transform.Matrix()
		out = out.Union(common.TransformAABB(mat[:], p.Bounds))
	}
	return out
}

func (m *model) SetBounds(b common.AABB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bounds = b
}

func (m *model) Parts() []Part {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.parts) == 0 {
		return nil
	}
	out := make([]Part, len(m.parts))
	copy(out, m.parts)
	return out
}

func (m *model) Compound() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.parts) > 0
}
