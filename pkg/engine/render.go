package engine

import (
	"context"
	"time"
)

// DefaultRenderHz is the render tick used when none is configured.
const DefaultRenderHz = 60

// MaxRateHz bounds configured render and send rates.
const MaxRateHz = 1000

// TickInterval is the ticker period for hz. It never returns less than 1ns,
// so any positive rate yields a valid ticker.
func TickInterval(hz int) time.Duration {
	if hz <= 0 {
		hz = DefaultRenderHz
	}
	return max(time.Second/time.Duration(hz), time.Nanosecond)
}

// FrameSink applies a decoded frame to a render-side representation.
type FrameSink interface {
	ApplyFrame(pkt FramePacket)
}

type FrameSinkFunc func(pkt FramePacket)

func (f FrameSinkFunc) ApplyFrame(pkt FramePacket) {
	f(pkt)
}

// RunRenderLoop applies the latest frame to every sink once per tick. Frames
// that arrived between ticks are superseded; a frame already applied is not
// applied again.
func RunRenderLoop(ctx context.Context, latest *Latest, hz int, sinks ...FrameSink) {
	ticker := time.NewTicker(TickInterval(hz))
	defer ticker.Stop()

	var lastSeq uint64
	rendered := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pkt, ok := latest.Load()
			if !ok || (rendered && pkt.Seq == lastSeq) {
				continue
			}
			for _, sink := range sinks {
				sink.ApplyFrame(pkt)
			}
			lastSeq = pkt.Seq
			rendered = true
		}
	}
}
