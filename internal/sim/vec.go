package sim

import "math"

// Vec2 is a 2D vector used for directional input.
// Value type, passed by value.
type Vec2 struct {
	X float32
	Y float32
}

// SqrMagnitude returns the squared length of the vector.
func (v Vec2) SqrMagnitude() float32 {
	return v.X*v.X + v.Y*v.Y
}

// Normalized returns the vector scaled to unit length.
// The zero vector normalizes to itself.
func (v Vec2) Normalized() Vec2 {
	sq := v.SqrMagnitude()
	if sq == 0 {
		return Vec2{}
	}
	inv := 1 / Sqrt(sq)
	return Vec2{X: v.X * inv, Y: v.Y * inv}
}

// Vec3 is a 3D vector for positions and velocities in world space.
// Y is up.
type Vec3 struct {
	X float32
	Y float32
	Z float32
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Scale returns v scaled by s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

// SqrMagnitude returns the squared length of the vector.
func (v Vec3) SqrMagnitude() float32 {
	return v.X*v.X + v.Y*v.Y + v.Z*v.Z
}

// HorizontalSqrMagnitude returns the squared length of the XZ projection.
func (v Vec3) HorizontalSqrMagnitude() float32 {
	return v.X*v.X + v.Z*v.Z
}

// Sqrt is the square root used by all movement math.
// math.Sqrt is an IEEE-754 required operation (correctly rounded), so the
// result is bit-identical on every platform, which deterministic replay
// depends on. No other transcendental functions are allowed here.
func Sqrt(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
