package logger

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"posewire/pkg/engine"
	"posewire/pkg/protocol"
)

// JSONLWriter records frames as one JSON object per line.
type JSONLWriter struct {
	enc    *json.Encoder
	joints []protocol.Joint
}

type jsonRecord struct {
	TS     string                        `json:"ts"`
	Seq    uint64                        `json:"seq"`
	Remote string                        `json:"remote,omitempty"`
	Joints map[string]protocol.JointPose `json:"joints"`
}

// NewJSONLWriter writes the named joints of every frame, or all of them when
// joints is empty. Unknown names are skipped.
func NewJSONLWriter(w io.Writer, joints ...string) *JSONLWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	var selected []protocol.Joint
	for _, name := range joints {
		if j, ok := protocol.LookupJoint(name); ok {
			selected = append(selected, j)
		}
	}
	if len(selected) == 0 {
		for j := protocol.Joint(0); j < protocol.JointCount; j++ {
			selected = append(selected, j)
		}
	}
	return &JSONLWriter{enc: enc, joints: selected}
}

func (j *JSONLWriter) Write(pkt engine.FramePacket) error {
	rec := jsonRecord{
		TS:     pkt.Received.UTC().Format(time.RFC3339Nano),
		Seq:    pkt.Seq,
		Joints: make(map[string]protocol.JointPose, len(j.joints)),
	}
	if pkt.Remote != nil {
		rec.Remote = pkt.Remote.String()
	}
	for _, joint := range j.joints {
		rec.Joints[joint.String()] = pkt.Frame.Joint(joint)
	}
	return j.enc.Encode(rec)
}

// Consume writes packets until in is closed or ctx is done.
func (j *JSONLWriter) Consume(ctx context.Context, in <-chan engine.FramePacket) error {
	return consume(ctx, in, j.Write)
}

func consume(ctx context.Context, in <-chan engine.FramePacket, write func(engine.FramePacket) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case pkt, ok := <-in:
			if !ok {
				return nil
			}
			if err := write(pkt); err != nil {
				return err
			}
		}
	}
}
