package protocol

// Vec3 is a position in meters.
type Vec3 struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// Quat mirrors the wire orientation layout: { float x, y, z, w; }.
type Quat struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
	W float32 `json:"w"`
}

// Pose is one transform on the wire: position followed by orientation.
type Pose struct {
	Position    Vec3 `json:"position"`
	Orientation Quat `json:"orientation"`
}

// JointPose pairs the parent-relative and root-relative transforms of a joint.
type JointPose struct {
	Local Pose `json:"local"`
	Model Pose `json:"model"`
}

// IdentityQuat is the no-rotation quaternion.
var IdentityQuat = Quat{W: 1}

// IdentityPose stands in for joints the capture side could not supply.
var IdentityPose = Pose{Orientation: IdentityQuat}

// IdentityJointPose is IdentityPose in both spaces.
var IdentityJointPose = JointPose{Local: IdentityPose, Model: IdentityPose}

// SkeletonFrame is one full skeleton sample in JointTable order.
// The protocol tag is implied: every encoded frame carries ProtocolTag.
type SkeletonFrame struct {
	Joints [JointCount]JointPose
}

// NewSkeletonFrame returns a frame with every joint at identity.
func NewSkeletonFrame() SkeletonFrame {
	var f SkeletonFrame
	for i := range f.Joints {
		f.Joints[i] = IdentityJointPose
	}
	return f
}

// Joint returns the pose pair of j. Out-of-range joints yield identity.
func (f *SkeletonFrame) Joint(j Joint) JointPose {
	if !j.Valid() {
		return IdentityJointPose
	}
	return f.Joints[j]
}

// JointPose looks a joint up by its wire name.
func (f *SkeletonFrame) JointPose(name string) (JointPose, bool) {
	j, ok := LookupJoint(name)
	if !ok {
		return JointPose{}, false
	}
	return f.Joints[j], true
}

// BuildFrame assembles a frame by asking lookup for every joint in table
// order. Joints lookup cannot supply are set to identity.
func BuildFrame(lookup func(name string) (JointPose, bool)) SkeletonFrame {
	var f SkeletonFrame
	for i, name := range jointNames {
		if pose, ok := lookup(name); ok {
			f.Joints[i] = pose
			continue
		}
		f.Joints[i] = IdentityJointPose
	}
	return f
}
