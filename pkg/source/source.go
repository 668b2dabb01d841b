package source

import (
	"time"

	"posewire/pkg/protocol"
)

// Sample is one capture of named joint poses.
type Sample interface {
	JointPose(name string) (protocol.JointPose, bool)
}

// Source produces a sample for a given capture time.
type Source interface {
	Sample(ts time.Time) (Sample, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ts time.Time) (Sample, error)

func (f SourceFunc) Sample(ts time.Time) (Sample, error) {
	return f(ts)
}

// Poses is a Sample backed by a map keyed by joint name.
type Poses map[string]protocol.JointPose

func (p Poses) JointPose(name string) (protocol.JointPose, bool) {
	jp, ok := p[name]
	return jp, ok
}

// Frame builds a full skeleton frame from a sample. Joints the sample does
// not know are sent as identity.
func Frame(s Sample) protocol.SkeletonFrame {
	if s == nil {
		return protocol.NewSkeletonFrame()
	}
	if f, ok := s.(*protocol.SkeletonFrame); ok {
		return *f
	}
	return protocol.BuildFrame(s.JointPose)
}
