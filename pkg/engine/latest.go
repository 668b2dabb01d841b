package engine

import (
	"net"
	"sync"
	"time"

	"posewire/pkg/protocol"
)

// FramePacket is a decoded frame plus receive metadata.
type FramePacket struct {
	Seq      uint64
	Received time.Time
	Remote   net.Addr
	Frame    protocol.SkeletonFrame
}

// LatestStats is a snapshot of the hand-off counters.
type LatestStats struct {
	Published uint64
	Loaded    uint64
	Dropped   uint64
}

// Latest is the single-slot hand-off between the receiver and the render
// side. The receiver overwrites the slot; readers always get the most recent
// complete frame. A frame replaced before anyone loaded it is counted as
// dropped.
//
// Published packets are stored by pointer and never mutated afterwards, so
// Load cannot observe a half-written frame.
type Latest struct {
	mu     sync.Mutex
	pkt    *FramePacket
	unread bool
	stats  LatestStats
}

func NewLatest() *Latest {
	return &Latest{}
}

func (l *Latest) Publish(pkt FramePacket) {
	p := &pkt
	l.mu.Lock()
	if l.unread {
		l.stats.Dropped++
	}
	l.pkt = p
	l.unread = true
	l.stats.Published++
	l.mu.Unlock()
}

// Load returns the most recently published packet. ok is false until the
// first Publish.
func (l *Latest) Load() (FramePacket, bool) {
	l.mu.Lock()
	p := l.pkt
	if p != nil && l.unread {
		l.unread = false
		l.stats.Loaded++
	}
	l.mu.Unlock()

	if p == nil {
		return FramePacket{}, false
	}
	return *p, true
}

// Peek returns the most recent packet without marking it loaded, so
// observers do not disturb the drop accounting of the render side.
func (l *Latest) Peek() (FramePacket, bool) {
	l.mu.Lock()
	p := l.pkt
	l.mu.Unlock()

	if p == nil {
		return FramePacket{}, false
	}
	return *p, true
}

func (l *Latest) Stats() LatestStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
