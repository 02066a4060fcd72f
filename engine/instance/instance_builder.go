package instance

import (
	"github.com/Carmen-Shannon/oxy-world/common"
	"github.com/Carmen-Shannon/oxy-world/engine/model"
)

// InstanceBuilderOption is a functional option for configuring an Instance via NewInstance.
type InstanceBuilderOption func(*Instance)

// WithUID sets the requested UID of the Instance.
// The registry may still assign a different UID if this one is taken.
//
// Parameters:
//   - uid: the requested UID
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithUID(uid uint32) InstanceBuilderOption {
	return func(i *Instance) {
		i.UID = uid
	}
}

// WithKind forces the instance variant instead of deriving it from the model.
//
// Parameters:
//   - kind: the instance kind
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithKind(kind Kind) InstanceBuilderOption {
	return func(i *Instance) {
		i.Kind = kind
	}
}

// WithModel sets the model the instance places.
//
// Parameters:
//   - m: the model
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithModel(m model.Model) InstanceBuilderOption {
	return func(i *Instance) {
		i.Model = m
	}
}

// WithTransform replaces the whole transform.
//
// Parameters:
//   - t: the transform
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithTransform(t common.Transform) InstanceBuilderOption {
	return func(i *Instance) {
		i.Transform = t
	}
}

// WithPosition sets the world position of the Instance.
//
// Parameters:
//   - x, y, z: position components
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithPosition(x, y, z float32) InstanceBuilderOption {
	return func(i *Instance) {
		i.Transform.Position = [3]float32{x, y, z}
	}
}

// WithRotation sets the Euler rotation of the Instance in radians.
//
// Parameters:
//   - rx, ry, rz: rotation angles
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithRotation(rx, ry, rz float32) InstanceBuilderOption {
	return func(i *Instance) {
		i.Transform.Rotation = [3]float32{rx, ry, rz}
	}
}

// WithScale sets the scale of the Instance.
//
// Parameters:
//   - sx, sy, sz: scale factors
//
// Returns:
//   - InstanceBuilderOption: option function to apply
func WithScale(sx, sy, sz float32) InstanceBuilderOption {
	return func(i *Instance) {
		i.Transform.Scale = [3]float32{sx, sy, sz}
	}
}
