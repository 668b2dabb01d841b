package engine

import (
	"context"
	"sync/atomic"
)

// Hub fans every received frame out to recorders. Publishing never blocks
// the receiver: a full broadcast queue or a slow subscriber drops frames.
type Hub struct {
	broadcast  chan FramePacket
	register   chan chan FramePacket
	unregister chan chan FramePacket
	clients    map[chan FramePacket]struct{}
	clientBuf  int
	dropped    atomic.Uint64
}

type Option func(*Hub)

func WithBroadcastBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.broadcast = make(chan FramePacket, size)
		}
	}
}

func WithClientBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.clientBuf = size
		}
	}
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		broadcast:  make(chan FramePacket, 256),
		register:   make(chan chan FramePacket),
		unregister: make(chan chan FramePacket),
		clients:    make(map[chan FramePacket]struct{}),
		clientBuf:  64,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for ch := range h.clients {
				close(ch)
			}
			return
		case ch := <-h.register:
			h.clients[ch] = struct{}{}
		case ch := <-h.unregister:
			if _, ok := h.clients[ch]; ok {
				delete(h.clients, ch)
				close(ch)
			}
		case pkt := <-h.broadcast:
			for ch := range h.clients {
				select {
				case ch <- pkt:
				default:
					h.dropped.Add(1)
				}
			}
		}
	}
}

func (h *Hub) Subscribe() chan FramePacket {
	return h.SubscribeWithBuffer(h.clientBuf)
}

func (h *Hub) SubscribeWithBuffer(size int) chan FramePacket {
	if size <= 0 {
		size = h.clientBuf
	}
	ch := make(chan FramePacket, size)
	h.register <- ch
	return ch
}

func (h *Hub) Unsubscribe(ch chan FramePacket) {
	h.unregister <- ch
}

// Publish queues pkt for every subscriber and reports whether it was queued.
func (h *Hub) Publish(pkt FramePacket) bool {
	select {
	case h.broadcast <- pkt:
		return true
	default:
		h.dropped.Add(1)
		return false
	}
}

// Dropped counts frames lost to a full queue, per subscriber.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
