package protocol

import (
	"encoding/binary"
	"math"
)

const (
	// ProtocolTag opens every record.
	ProtocolTag uint32 = 11235813

	HeaderSize = 4
	PoseSize   = 7 * 4
	JointSize  = 2 * PoseSize
	RecordSize = HeaderSize + JointCount*JointSize
)

// Encode returns the 5100-byte wire image of f.
func Encode(f SkeletonFrame) []byte {
	buf := make([]byte, RecordSize)
	encodeRecord(buf, &f)
	return buf
}

// EncodeInto writes the wire image of f into the first RecordSize bytes of dst.
func EncodeInto(dst []byte, f SkeletonFrame) (int, error) {
	if len(dst) < RecordSize {
		return 0, ErrShortBuffer
	}
	encodeRecord(dst[:RecordSize], &f)
	return RecordSize, nil
}

// AppendFrame appends the wire image of f to dst.
func AppendFrame(dst []byte, f SkeletonFrame) []byte {
	n := len(dst)
	if cap(dst)-n < RecordSize {
		grown := make([]byte, n, n+RecordSize)
		copy(grown, dst)
		dst = grown
	}
	dst = dst[:n+RecordSize]
	encodeRecord(dst[n:], &f)
	return dst
}

// PeekTag reads the record tag without decoding the joints.
func PeekTag(b []byte) (uint32, bool) {
	if len(b) < HeaderSize {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[0:4]), true
}

// Decode parses one record from the start of b. Bytes after RecordSize are
// ignored. A bad tag stops decoding before any joint data is read.
func Decode(b []byte) (SkeletonFrame, error) {
	if len(b) < RecordSize {
		return SkeletonFrame{}, ErrShortBuffer
	}
	if tag := binary.LittleEndian.Uint32(b[0:4]); tag != ProtocolTag {
		return SkeletonFrame{}, &HeaderError{Got: tag}
	}

	var f SkeletonFrame
	off := HeaderSize
	for i := range f.Joints {
		f.Joints[i].Local = decodePose(b[off : off+PoseSize])
		off += PoseSize
		f.Joints[i].Model = decodePose(b[off : off+PoseSize])
		off += PoseSize
	}
	return f, nil
}

func encodeRecord(buf []byte, f *SkeletonFrame) {
	binary.LittleEndian.PutUint32(buf[0:4], ProtocolTag)
	off := HeaderSize
	for i := range f.Joints {
		encodePose(buf[off:off+PoseSize], f.Joints[i].Local)
		off += PoseSize
		encodePose(buf[off:off+PoseSize], f.Joints[i].Model)
		off += PoseSize
	}
}

func encodePose(buf []byte, p Pose) {
	putFloat32(buf[0:4], p.Position.X)
	putFloat32(buf[4:8], p.Position.Y)
	putFloat32(buf[8:12], p.Position.Z)
	putFloat32(buf[12:16], p.Orientation.X)
	putFloat32(buf[16:20], p.Orientation.Y)
	putFloat32(buf[20:24], p.Orientation.Z)
	putFloat32(buf[24:28], p.Orientation.W)
}

func decodePose(buf []byte) Pose {
	return Pose{
		Position: Vec3{
			X: float32At(buf[0:4]),
			Y: float32At(buf[4:8]),
			Z: float32At(buf[8:12]),
		},
		Orientation: Quat{
			X: float32At(buf[12:16]),
			Y: float32At(buf[16:20]),
			Z: float32At(buf[20:24]),
			W: float32At(buf[24:28]),
		},
	}
}

func putFloat32(buf []byte, v float32) {
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
}

func float32At(buf []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf))
}
