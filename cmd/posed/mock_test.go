package main

import (
	"math"
	"testing"
	"time"

	"posewire/pkg/protocol"
	"posewire/pkg/source"
)

func TestMockSourceChainsModelPoses(t *testing.T) {
	start := time.Unix(0, 0)
	src := newMockSource(start)

	sample, err := src.Sample(start.Add(1500 * time.Millisecond))
	if err != nil {
		t.Fatalf("sample failed: %v", err)
	}

	hips, ok := sample.JointPose("hips_joint")
	if !ok {
		t.Fatalf("expected hips in mock sample")
	}
	spine, ok := sample.JointPose("spine_1_joint")
	if !ok {
		t.Fatalf("expected spine in mock sample")
	}
	want := hips.Model.Compose(spine.Local)
	if !closePose(spine.Model, want) {
		t.Fatalf("spine model pose should be hips model composed with spine local: got %+v want %+v", spine.Model, want)
	}

	frame := source.Frame(sample)
	for i, jp := range frame.Joints {
		if !jp.Local.Orientation.IsUnit(protocol.DefaultUnitTolerance) {
			t.Fatalf("joint %s has non-unit rotation %+v", protocol.Joint(i), jp.Local.Orientation)
		}
	}
	if frame.Joint(protocol.JointHips) != hips {
		t.Fatalf("frame hips does not match sample")
	}
}

func TestMockSkeletonParentsFirst(t *testing.T) {
	seen := map[string]bool{}
	for _, j := range mockSkeleton {
		if _, ok := protocol.LookupJoint(j.name); !ok {
			t.Fatalf("mock joint %q is not a wire joint", j.name)
		}
		if j.parent != "" && !seen[j.parent] {
			t.Fatalf("joint %s listed before parent %s", j.name, j.parent)
		}
		seen[j.name] = true
	}
}

func TestMockQuaternionAtRestPhase(t *testing.T) {
	q := mockQuaternion(0, 0, 0)
	if q != protocol.IdentityQuat {
		t.Fatalf("zero scale should give identity, got %+v", q)
	}
}

func closePose(a, b protocol.Pose) bool {
	vals := [][2]float32{
		{a.Position.X, b.Position.X}, {a.Position.Y, b.Position.Y}, {a.Position.Z, b.Position.Z},
		{a.Orientation.X, b.Orientation.X}, {a.Orientation.Y, b.Orientation.Y},
		{a.Orientation.Z, b.Orientation.Z}, {a.Orientation.W, b.Orientation.W},
	}
	for _, v := range vals {
		if math.Abs(float64(v[0]-v[1])) > 1e-5 {
			return false
		}
	}
	return true
}
