// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

import "math"

// AABB is an axis-aligned bounding box in world units.
// A zero-volume box (Min == Max) is valid and describes a single point.
type AABB struct {
	// Min is the lowest corner of the box on every axis.
	Min [3]float32
	// Max is the highest corner of the box on every axis.
	Max [3]float32
}

// EmptyAABB returns an inverted box that acts as the identity for Union.
//
// Returns:
//   - AABB: a box with Min at +Inf and Max at -Inf
func EmptyAABB() AABB {
	inf := float32(math.Inf(1))
	return AABB{
		Min: [3]float32{inf, inf, inf},
		Max: [3]float32{-inf, -inf, -inf},
	}
}

// Empty reports whether the box has been extended by at least one point.
func (b AABB) Empty() bool {
	return b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] || b.Min[2] > b.Max[2]
}

// Finite reports whether every corner coordinate is a finite number.
func (b AABB) Finite() bool {
	for i := range 3 {
		if !finite32(b.Min[i]) || !finite32(b.Max[i]) {
			return false
		}
	}
	return true
}

func finite32(v float32) bool {
	f := float64(v)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Extend grows the box to include the point p.
//
// Parameters:
//   - p: the point to include
//
// Returns:
//   - AABB: the grown box
func (b AABB) Extend(p [3]float32) AABB {
	for i := range 3 {
		b.Min[i] = min(b.Min[i], p[i])
		b.Max[i] = max(b.Max[i], p[i])
	}
	return b
}

// Union returns the smallest box that contains both b and o.
//
// Parameters:
//   - o: the other box
//
// Returns:
//   - AABB: the union of both boxes
func (b AABB) Union(o AABB) AABB {
	if o.Empty() {
		return b
	}
	if b.Empty() {
		return o
	}
	return b.Extend(o.Min).Extend(o.Max)
}

// Corners returns the eight corners of the box.
func (b AABB) Corners() [8][3]float32 {
	return [8][3]float32{
		{b.Min[0], b.Min[1], b.Min[2]},
		{b.Max[0], b.Min[1], b.Min[2]},
		{b.Min[0], b.Max[1], b.Min[2]},
		{b.Max[0], b.Max[1], b.Min[2]},
		{b.Min[0], b.Min[1], b.Max[2]},
		{b.Max[0], b.Min[1], b.Max[2]},
		{b.Min[0], b.Max[1], b.Max[2]},
		{b.Max[0], b.Max[1], b.Max[2]},
	}
}

// Transform is the placement of an object in the world.
// Rotation holds Euler angles in radians and is applied in Y * X * Z order, matching BuildModelMatrix.
type Transform struct {
	Position [3]float32
	Rotation [3]float32
	Scale    [3]float32
}

// IdentityTransform returns a transform at the origin with unit scale and no rotation.
func IdentityTransform() Transform {
	return Transform{Scale: [3]float32{1, 1, 1}}
}

// Matrix builds the column-major model matrix for the transform.
//
// Returns:
//   - [16]float32: the model matrix
func (t Transform) Matrix() [16]float32 {
	var m [16]float32
	BuildModelMatrix(m[:],
		t.Position[0], t.Position[1], t.Position[2],
		t.Rotation[0], t.Rotation[1], t.Rotation[2],
		t.Scale[0], t.Scale[1], t.Scale[2],
	)
	return m
}

// TransformPoint multiplies p by the column-major matrix m, treating p as a position (w = 1).
//
// Parameters:
//   - m: a column-major 4x4 matrix (at least 16 elements)
//   - p: the point to transform
//
// Returns:
//   - [3]float32: the transformed point
func TransformPoint(m []float32, p [3]float32) [3]float32 {
	return [3]float32{
		m[0]*p[0] + m[4]*p[1] + m[8]*p[2] + m[12],
		m[1]*p[0] + m[5]*p[1] + m[9]*p[2] + m[13],
		m[2]*p[0] + m[6]*p[1] + m[10]*p[2] + m[14],
	}
}

// TransformAABB returns the world-space box that bounds the local box b after applying m.
// All eight corners are transformed so rotated boxes stay conservative.
//
// Parameters:
//   - m: a column-major 4x4 matrix (at least 16 elements)
//   - b: the local-space box
//
// Returns:
//   - AABB: the world-space bounding box
func TransformAABB(m []float32, b AABB) AABB {
	if b.Empty() {
		return b
	}
	out := EmptyAABB()
	for _, c := range b.Corners() {
		out = out.Extend(TransformPoint(m, c))
	}
	return out
}
