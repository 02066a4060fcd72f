package instance

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/model"
)

// Kind tags which variant an Instance is. The set is closed.
type Kind uint8

const (
	// KindPointModel is a single-mesh model whose extents come straight from the model bounds.
	KindPointModel Kind = iota + 1
	// KindCompoundModel is a model made of several placed parts. Its extents are the union over every part.
	KindCompoundModel
)

// String returns the kind name used in logs and persisted maps.
func (k Kind) String() string {
	switch k {
	case KindPointModel:
		return "point"
	case KindCompoundModel:
		return "compound"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind converts a persisted kind name back into a Kind.
//
// Parameters:
//   - s: the kind name ("point" or "compound")
//
// Returns:
//   - Kind: the parsed kind
//   - error: error if the name is unknown
func ParseKind(s string) (Kind, error) {
	switch s {
	case "point":
		return KindPointModel, nil
	case "compound":
		return KindCompoundModel, nil
	default:
		return 0, fmt.Errorf("unknown instance kind %q", s)
	}
}

// Instance is one placed object in the world.
// Instances are plain values: the registry hands out copies, so mutating a copy has no effect
// until it goes back through the registry's Update.
type Instance struct {
	// UID is the persistent identifier. 0 means unassigned.
	UID uint32
	// Kind selects the variant.
	Kind Kind
	// Transform places the instance in the world.
	Transform common.Transform
	// Extents is the world-space bounding box. Only valid when the model is loaded.
	Extents common.AABB
	// Model is the asset the instance places.
	Model model.Model
}

// NewInstance creates an Instance with an identity transform and applies the options.
// When no kind is set it is taken from the model: compound models give KindCompoundModel.
//
// Parameters:
//   - options: a variadic list of InstanceBuilderOption functions
//
// Returns:
//   - Instance: the configured instance
func NewInstance(options ...InstanceBuilderOption) Instance {
	inst := Instance{
		Transform: common.IdentityTransform(),
		Extents:   common.EmptyAABB(),
	}
	for _, option := range options {
		option(&inst)
	}
	if inst.Kind == 0 {
		inst.Kind = KindPointModel
		if inst.Model != nil && inst.Model.Compound() {
			inst.Kind = KindCompoundModel
		}
	}
	return inst
}

// Pending reports whether the instance's model geometry has not finished loading.
func (i *Instance) Pending() bool {
	return i.Model == nil || !i.Model.Loaded()
}

// ComputeExtents recomputes the world-space extents from the transform and model.
// Point models transform the model bounds. Compound models compose each part transform with
// the instance transform and union the results, which costs one box transform per part.
//
// Returns:
//   - bool: false if the model is not loaded, in which case Extents is left unchanged
func (i *Instance) ComputeExtents() bool {
	if i.Pending() {
		return false
	}

	world := i.Transform.Matrix()
	switch i.Kind {
	case KindCompoundModel:
		out := common.EmptyAABB()
		var composed [16]float32
		for _, part := range i.Model.Parts() {
			local := part.Transform.Matrix()
			common.Mul4(composed[:], world[:], local[:])
			out = out.Union(common.TransformAABB(composed[:], part.Bounds))
		}
		i.Extents = out
	default:
		i.Extents = common.TransformAABB(world[:], i.Model.Bounds())
	}
	return true
}

// ModelName returns the name of the instance's model, or "" if it has none.
func (i *Instance) ModelName() string {
	if i.Model == nil {
		return ""
	}
	return i.Model.Name()
}

// GPUTransform returns the per-instance GPU record for this instance.
func (i *Instance) GPUTransform() GPUTransform {
	return GPUTransform{Model: i.Transform.Matrix()}
}
