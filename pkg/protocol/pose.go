package protocol

import "math"

// DefaultUnitTolerance bounds | |q| - 1 | for IsUnit.
const DefaultUnitTolerance = 1e-3

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{X: v.X * s, Y: v.Y * s, Z: v.Z * s}
}

func (q Quat) Norm() float64 {
	x, y, z, w := float64(q.X), float64(q.Y), float64(q.Z), float64(q.W)
	return math.Sqrt(x*x + y*y + z*z + w*w)
}

// IsUnit reports whether q is a unit quaternion within tol.
func (q Quat) IsUnit(tol float64) bool {
	return math.Abs(q.Norm()-1) <= tol
}

// Normalize scales q to unit length. A zero quaternion becomes identity.
func (q Quat) Normalize() Quat {
	n := q.Norm()
	if n == 0 || math.IsNaN(n) {
		return IdentityQuat
	}
	inv := 1 / n
	return Quat{
		X: float32(float64(q.X) * inv),
		Y: float32(float64(q.Y) * inv),
		Z: float32(float64(q.Z) * inv),
		W: float32(float64(q.W) * inv),
	}
}

func (q Quat) Conjugate() Quat {
	return Quat{X: -q.X, Y: -q.Y, Z: -q.Z, W: q.W}
}

// Mul returns the Hamilton product q*o (apply o, then q).
func (q Quat) Mul(o Quat) Quat {
	ax, ay, az, aw := float64(q.X), float64(q.Y), float64(q.Z), float64(q.W)
	bx, by, bz, bw := float64(o.X), float64(o.Y), float64(o.Z), float64(o.W)
	return Quat{
		X: float32(aw*bx + ax*bw + ay*bz - az*by),
		Y: float32(aw*by - ax*bz + ay*bw + az*bx),
		Z: float32(aw*bz + ax*by - ay*bx + az*bw),
		W: float32(aw*bw - ax*bx - ay*by - az*bz),
	}
}

// Rotate applies the rotation q to v. q is assumed to be unit length.
func (q Quat) Rotate(v Vec3) Vec3 {
	x, y, z, w := float64(q.X), float64(q.Y), float64(q.Z), float64(q.W)
	vx, vy, vz := float64(v.X), float64(v.Y), float64(v.Z)

	xx, yy, zz := x*x*2, y*y*2, z*z*2
	xy, xz, yz := x*y*2, x*z*2, y*z*2
	wx, wy, wz := w*x*2, w*y*2, w*z*2

	return Vec3{
		X: float32((1-(yy+zz))*vx + (xy-wz)*vy + (xz+wy)*vz),
		Y: float32((xy+wz)*vx + (1-(xx+zz))*vy + (yz-wx)*vz),
		Z: float32((xz-wy)*vx + (yz+wx)*vy + (1-(xx+yy))*vz),
	}
}

// EulerAngles returns roll, pitch and yaw in radians (ZYX convention).
func (q Quat) EulerAngles() (roll, pitch, yaw float64) {
	x, y, z, w := float64(q.X), float64(q.Y), float64(q.Z), float64(q.W)

	roll = math.Atan2(2*(w*x+y*z), 1-2*(x*x+y*y))

	sinp := 2 * (w*y - z*x)
	if math.Abs(sinp) >= 1 {
		pitch = math.Copysign(math.Pi/2, sinp)
	} else {
		pitch = math.Asin(sinp)
	}

	yaw = math.Atan2(2*(w*z+x*y), 1-2*(y*y+z*z))
	return roll, pitch, yaw
}

// QuatFromEuler builds a unit quaternion from roll, pitch and yaw (ZYX).
func QuatFromEuler(roll, pitch, yaw float64) Quat {
	cr, sr := math.Cos(roll*0.5), math.Sin(roll*0.5)
	cp, sp := math.Cos(pitch*0.5), math.Sin(pitch*0.5)
	cy, sy := math.Cos(yaw*0.5), math.Sin(yaw*0.5)

	return Quat{
		W: float32(cr*cp*cy + sr*sp*sy),
		X: float32(sr*cp*cy - cr*sp*sy),
		Y: float32(cr*sp*cy + sr*cp*sy),
		Z: float32(cr*cp*sy - sr*sp*cy),
	}
}

// Compose returns p followed by o: o expressed in p's parent space.
func (p Pose) Compose(o Pose) Pose {
	return Pose{
		Position:    p.Position.Add(p.Orientation.Rotate(o.Position)),
		Orientation: p.Orientation.Mul(o.Orientation),
	}
}

// Inverse returns the pose that undoes p.
func (p Pose) Inverse() Pose {
	inv := p.Orientation.Conjugate()
	return Pose{
		Position:    inv.Rotate(p.Position.Scale(-1)),
		Orientation: inv,
	}
}

// FlipZ mirrors the pose across the XY plane, converting between right- and
// left-handed scene conventions.
func (p Pose) FlipZ() Pose {
	return Pose{
		Position:    Vec3{X: p.Position.X, Y: p.Position.Y, Z: -p.Position.Z},
		Orientation: Quat{X: -p.Orientation.X, Y: -p.Orientation.Y, Z: p.Orientation.Z, W: p.Orientation.W},
	}
}
