// Package scene applies received skeleton frames to a named joint hierarchy
// on the render side.
package scene

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"posewire/pkg/engine"
	"posewire/pkg/protocol"
)

// ApplyMode selects which parts of a joint pose are written into a node.
type ApplyMode int

const (
	// ApplyLocalRotation writes only the parent-relative rotation.
	ApplyLocalRotation ApplyMode = iota
	// ApplyLocalPose writes parent-relative position and rotation.
	ApplyLocalPose
	// ApplyLocalPoseModelRotation additionally records the root-relative rotation.
	ApplyLocalPoseModelRotation
)

var modeNames = map[ApplyMode]string{
	ApplyLocalRotation:          "local_rotation",
	ApplyLocalPose:              "local_pose",
	ApplyLocalPoseModelRotation: "local_pose_model_rotation",
}

func (m ApplyMode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

func ParseApplyMode(raw string) (ApplyMode, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if key == "" {
		return ApplyLocalRotation, nil
	}
	for mode, name := range modeNames {
		if name == key {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown apply mode %q", raw)
}

// Node is one joint of the render scene.
type Node struct {
	Name          string
	LocalPosition protocol.Vec3
	LocalRotation protocol.Quat
	ModelRotation protocol.Quat
	Updates       uint64
}

type binding struct {
	joint protocol.Joint
	node  *Node
}

// Rig holds the scene nodes and the joint bindings resolved at construction.
// Wire joints with no matching node are ignored, as are nodes that no joint
// maps to.
type Rig struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	bindings []binding
	mode     ApplyMode
	flipZ    bool
	aliases  map[string]string
	applied  uint64
	lastSeq  uint64
}

type RigOption func(*Rig)

func WithMode(mode ApplyMode) RigOption {
	return func(r *Rig) {
		r.mode = mode
	}
}

// WithFlipZ converts incoming poses between left- and right-handed frames.
func WithFlipZ(enabled bool) RigOption {
	return func(r *Rig) {
		r.flipZ = enabled
	}
}

// WithAliases maps wire joint names to scene node names.
func WithAliases(aliases map[string]string) RigOption {
	return func(r *Rig) {
		r.aliases = aliases
	}
}

func NewRig(nodeNames []string, opts ...RigOption) *Rig {
	r := &Rig{nodes: make(map[string]*Node, len(nodeNames))}
	for _, opt := range opts {
		opt(r)
	}
	for _, name := range nodeNames {
		r.nodes[name] = &Node{
			Name:          name,
			LocalRotation: protocol.IdentityQuat,
			ModelRotation: protocol.IdentityQuat,
		}
	}
	for i, jointName := range protocol.JointNames() {
		nodeName := jointName
		if alias, ok := r.aliases[jointName]; ok {
			nodeName = alias
		}
		if node, ok := r.nodes[nodeName]; ok {
			r.bindings = append(r.bindings, binding{joint: protocol.Joint(i), node: node})
		}
	}
	return r
}

// NewFullRig builds a rig with one node per wire joint, named through the
// alias map when one is given.
func NewFullRig(opts ...RigOption) *Rig {
	probe := &Rig{}
	for _, opt := range opts {
		opt(probe)
	}
	names := protocol.JointNames()
	for i, name := range names {
		if alias, ok := probe.aliases[name]; ok {
			names[i] = alias
		}
	}
	return NewRig(names, opts...)
}

func (r *Rig) ApplyFrame(pkt engine.FramePacket) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bindings {
		jp := pkt.Frame.Joints[b.joint]
		local, model := jp.Local, jp.Model
		if r.flipZ {
			local, model = local.FlipZ(), model.FlipZ()
		}
		switch r.mode {
		case ApplyLocalPose:
			b.node.LocalPosition = local.Position
			b.node.LocalRotation = local.Orientation
		case ApplyLocalPoseModelRotation:
			b.node.LocalPosition = local.Position
			b.node.LocalRotation = local.Orientation
			b.node.ModelRotation = model.Orientation
		default:
			b.node.LocalRotation = local.Orientation
		}
		b.node.Updates++
	}
	r.applied++
	r.lastSeq = pkt.Seq
}

// Node returns a copy of the named node.
func (r *Rig) Node(name string) (Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.nodes[name]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Bound lists the node names that receive joint data, sorted.
func (r *Rig) Bound() []string {
	names := make([]string, 0, len(r.bindings))
	for _, b := range r.bindings {
		names = append(names, b.node.Name)
	}
	sort.Strings(names)
	return names
}

func (r *Rig) Mode() ApplyMode {
	return r.mode
}

// Applied reports how many frames were applied and the last sequence number.
func (r *Rig) Applied() (count, lastSeq uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.applied, r.lastSeq
}
