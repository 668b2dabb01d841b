package main

import (
	"math"
	"time"

	"posewire/pkg/protocol"
	"posewire/pkg/source"
)

const (
	mockRollAmplitudeRad  = 35.0 * math.Pi / 180.0
	mockPitchAmplitudeRad = 25.0 * math.Pi / 180.0
	mockYawAmplitudeRad   = 40.0 * math.Pi / 180.0

	mockRollFreqHz  = 0.23
	mockPitchFreqHz = 0.31
	mockYawFreqHz   = 0.17

	mockRollPhaseRad  = 0.0
	mockPitchPhaseRad = math.Pi / 3.0
	mockYawPhaseRad   = 2.0 * math.Pi / 3.0
)

// mockJoint animates one joint relative to its parent. Parents are listed
// before their children.
type mockJoint struct {
	name   string
	parent string
	offset protocol.Vec3
	scale  float64
	phase  float64
}

var mockSkeleton = []mockJoint{
	{name: "root"},
	{name: "hips_joint", parent: "root", offset: protocol.Vec3{Y: 0.95}, scale: 0.2},
	{name: "spine_1_joint", parent: "hips_joint", offset: protocol.Vec3{Y: 0.1}, scale: 0.15, phase: 0.3},
	{name: "spine_4_joint", parent: "spine_1_joint", offset: protocol.Vec3{Y: 0.25}, scale: 0.15, phase: 0.6},
	{name: "spine_7_joint", parent: "spine_4_joint", offset: protocol.Vec3{Y: 0.2}, scale: 0.1, phase: 0.9},
	{name: "neck_1_joint", parent: "spine_7_joint", offset: protocol.Vec3{Y: 0.1}, scale: 0.2, phase: 1.2},
	{name: "head_joint", parent: "neck_1_joint", offset: protocol.Vec3{Y: 0.12}, scale: 0.5, phase: 1.5},
	{name: "left_shoulder_1_joint", parent: "spine_7_joint", offset: protocol.Vec3{X: 0.18}, scale: 0.2, phase: 0.4},
	{name: "left_arm_joint", parent: "left_shoulder_1_joint", offset: protocol.Vec3{X: 0.12}, scale: 1.0, phase: 0.8},
	{name: "left_forearm_joint", parent: "left_arm_joint", offset: protocol.Vec3{X: 0.28}, scale: 0.8, phase: 1.6},
	{name: "left_hand_joint", parent: "left_forearm_joint", offset: protocol.Vec3{X: 0.25}, scale: 0.5, phase: 2.4},
	{name: "right_shoulder_1_joint", parent: "spine_7_joint", offset: protocol.Vec3{X: -0.18}, scale: 0.2, phase: 3.5},
	{name: "right_arm_joint", parent: "right_shoulder_1_joint", offset: protocol.Vec3{X: -0.12}, scale: 1.0, phase: 3.9},
	{name: "right_forearm_joint", parent: "right_arm_joint", offset: protocol.Vec3{X: -0.28}, scale: 0.8, phase: 4.7},
	{name: "right_hand_joint", parent: "right_forearm_joint", offset: protocol.Vec3{X: -0.25}, scale: 0.5, phase: 5.5},
	{name: "left_upLeg_joint", parent: "hips_joint", offset: protocol.Vec3{X: 0.1, Y: -0.05}, scale: 0.6, phase: 0},
	{name: "left_leg_joint", parent: "left_upLeg_joint", offset: protocol.Vec3{Y: -0.42}, scale: 0.5, phase: 0.5},
	{name: "left_foot_joint", parent: "left_leg_joint", offset: protocol.Vec3{Y: -0.42}, scale: 0.3, phase: 1.0},
	{name: "right_upLeg_joint", parent: "hips_joint", offset: protocol.Vec3{X: -0.1, Y: -0.05}, scale: 0.6, phase: math.Pi},
	{name: "right_leg_joint", parent: "right_upLeg_joint", offset: protocol.Vec3{Y: -0.42}, scale: 0.5, phase: math.Pi + 0.5},
	{name: "right_foot_joint", parent: "right_leg_joint", offset: protocol.Vec3{Y: -0.42}, scale: 0.3, phase: math.Pi + 1.0},
}

// mockSource swings a small joint chain with slow sinusoids. Joints outside
// the chain are left to the identity fill.
type mockSource struct {
	start time.Time
}

func newMockSource(start time.Time) *mockSource {
	return &mockSource{start: start}
}

func (m *mockSource) Sample(ts time.Time) (source.Sample, error) {
	t := ts.Sub(m.start).Seconds()
	poses := make(source.Poses, len(mockSkeleton))
	for _, j := range mockSkeleton {
		local := protocol.Pose{
			Position:    j.offset,
			Orientation: mockQuaternion(t, j.scale, j.phase),
		}
		model := local
		if parent, ok := poses[j.parent]; ok {
			model = parent.Model.Compose(local)
		}
		poses[j.name] = protocol.JointPose{Local: local, Model: model}
	}
	return poses, nil
}

func mockEulerAngles(t float64, scale float64, phase float64) (roll float64, pitch float64, yaw float64) {
	roll = scale * mockRollAmplitudeRad * math.Sin(2.0*math.Pi*mockRollFreqHz*t+mockRollPhaseRad+phase)
	pitch = scale * mockPitchAmplitudeRad * math.Sin(2.0*math.Pi*mockPitchFreqHz*t+mockPitchPhaseRad+phase)
	yaw = scale * mockYawAmplitudeRad * math.Sin(2.0*math.Pi*mockYawFreqHz*t+mockYawPhaseRad+phase)
	return
}

func mockQuaternion(t float64, scale float64, phase float64) protocol.Quat {
	return protocol.QuatFromEuler(mockEulerAngles(t, scale, phase))
}
