package protocol_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"posewire/pkg/protocol"
)

const eps = 1e-5

func requireVecNear(t *testing.T, want, got protocol.Vec3) {
	t.Helper()
	require.InDelta(t, want.X, got.X, eps)
	require.InDelta(t, want.Y, got.Y, eps)
	require.InDelta(t, want.Z, got.Z, eps)
}

func requireQuatNear(t *testing.T, want, got protocol.Quat) {
	t.Helper()
	require.InDelta(t, want.X, got.X, eps)
	require.InDelta(t, want.Y, got.Y, eps)
	require.InDelta(t, want.Z, got.Z, eps)
	require.InDelta(t, want.W, got.W, eps)
}

func TestQuatRotateQuarterTurn(t *testing.T) {
	q := protocol.QuatFromEuler(0, 0, math.Pi/2)
	require.True(t, q.IsUnit(protocol.DefaultUnitTolerance))

	got := q.Rotate(protocol.Vec3{X: 1})
	requireVecNear(t, protocol.Vec3{Y: 1}, got)
}

func TestQuatEulerRoundTrip(t *testing.T) {
	roll, pitch, yaw := 0.3, -0.4, 1.1
	r, p, y := protocol.QuatFromEuler(roll, pitch, yaw).EulerAngles()
	require.InDelta(t, roll, r, 1e-5)
	require.InDelta(t, pitch, p, 1e-5)
	require.InDelta(t, yaw, y, 1e-5)
}

func TestPoseComposeWithInverseIsIdentity(t *testing.T) {
	p := protocol.Pose{
		Position:    protocol.Vec3{X: 0.2, Y: 1.1, Z: -0.4},
		Orientation: protocol.QuatFromEuler(0.5, 0.1, -0.7),
	}
	id := p.Compose(p.Inverse())
	requireVecNear(t, protocol.Vec3{}, id.Position)
	requireQuatNear(t, protocol.IdentityQuat, id.Orientation)
}

func TestPoseComposeChainsParentToChild(t *testing.T) {
	parent := protocol.Pose{
		Position:    protocol.Vec3{Y: 1},
		Orientation: protocol.QuatFromEuler(0, 0, math.Pi/2),
	}
	child := protocol.Pose{Position: protocol.Vec3{X: 0.5}, Orientation: protocol.IdentityQuat}

	model := parent.Compose(child)
	requireVecNear(t, protocol.Vec3{Y: 1.5}, model.Position)
	requireQuatNear(t, parent.Orientation, model.Orientation)
}

func TestNormalizeZeroQuatIsIdentity(t *testing.T) {
	require.Equal(t, protocol.IdentityQuat, protocol.Quat{}.Normalize())
	n := protocol.Quat{X: 3, Y: 4}.Normalize()
	requireQuatNear(t, protocol.Quat{X: 0.6, Y: 0.8}, n)
}

func TestPoseFlipZ(t *testing.T) {
	p := protocol.Pose{
		Position:    protocol.Vec3{X: 1, Y: 2, Z: 3},
		Orientation: protocol.Quat{X: 0.1, Y: 0.2, Z: 0.3, W: 0.9},
	}
	f := p.FlipZ()
	require.Equal(t, protocol.Vec3{X: 1, Y: 2, Z: -3}, f.Position)
	require.Equal(t, protocol.Quat{X: -0.1, Y: -0.2, Z: 0.3, W: 0.9}, f.Orientation)
	require.Equal(t, p, f.FlipZ())
}
