package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"posewire/pkg/engine"
	"posewire/pkg/metrics"
	"posewire/pkg/protocol"
)

// FrameHandler receives every frame decoded from the capture connection.
type FrameHandler interface {
	HandleFrame(pkt engine.FramePacket)
}

type FrameHandlerFunc func(pkt engine.FramePacket)

func (f FrameHandlerFunc) HandleFrame(pkt engine.FramePacket) {
	f(pkt)
}

// Acceptor listens for capture clients and serves them one at a time.
type Acceptor struct {
	addr    string
	handler FrameHandler
	opts    options

	mu      sync.Mutex
	ln      net.Listener
	active  net.Conn
	stopped bool

	seq atomic.Uint64
}

func NewAcceptor(addr string, handler FrameHandler, opts ...Option) *Acceptor {
	return &Acceptor{
		addr:    addr,
		handler: handler,
		opts:    buildOptions(opts),
	}
}

// Listen binds the listening socket. Serve calls it when needed; calling it
// first lets callers learn the bound address.
func (a *Acceptor) Listen() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln != nil {
		return nil
	}
	if a.opts.listener != nil {
		a.ln = a.opts.listener
		return nil
	}
	ln, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.addr, err)
	}
	a.ln = ln
	return nil
}

// Addr is nil until Listen succeeds.
func (a *Acceptor) Addr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ln == nil {
		return nil
	}
	return a.ln.Addr()
}

// Serve accepts connections until ctx is cancelled. Connection failures are
// logged and reported; the acceptor then waits for the next client. A nil
// error means ctx ended the loop.
func (a *Acceptor) Serve(ctx context.Context) error {
	if err := a.Listen(); err != nil {
		return err
	}
	a.mu.Lock()
	ln := a.ln
	a.mu.Unlock()

	stop := context.AfterFunc(ctx, a.shutdown)
	defer stop()

	log := a.opts.logger
	log.Info().Str("addr", ln.Addr().String()).Msg("waiting for capture client")
	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}
			backoff = nextAcceptBackoff(backoff)
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("accept failed")
			a.handleError(fmt.Errorf("%w: accept: %w", protocol.ErrTransport, err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		backoff = 0
		if !a.setActive(conn) {
			_ = conn.Close()
			return nil
		}
		err = a.serveConn(ctx, conn)
		a.setActive(nil)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			a.handleError(err)
		}
	}
}

func (a *Acceptor) serveConn(ctx context.Context, conn net.Conn) error {
	remote := conn.RemoteAddr()
	log := a.opts.logger.With().Str("remote", remote.String()).Logger()
	log.Info().Msg("capture client connected")
	metrics.RecordConnection()
	if a.opts.onOpen != nil {
		a.opts.onOpen(remote)
	}

	ra := protocol.NewReassembler(conn, protocol.WithBankSize(a.opts.bankSize))
	var err error
	for {
		var frame protocol.SkeletonFrame
		frame, err = ra.Next()
		if err != nil {
			break
		}
		metrics.RecordFrameReceived()
		a.handler.HandleFrame(engine.FramePacket{
			Seq:      a.seq.Add(1),
			Received: time.Now(),
			Remote:   remote,
			Frame:    frame,
		})
	}
	_ = conn.Close()

	if ctx.Err() != nil || errors.Is(err, io.EOF) {
		err = nil
	}
	stats := ra.Stats()
	metrics.RecordConnectionClosed(stats.BytesRead, err)

	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err).Str("reason", metrics.Reason(err))
	}
	ev.Uint64("frames", stats.Frames).
		Uint64("bytes", stats.BytesRead).
		Int("discarded", ra.Pending()).
		Msg("capture client disconnected")

	if a.opts.onClose != nil {
		a.opts.onClose(remote, err)
	}
	return err
}

// nextAcceptBackoff doubles from 5ms up to one second, as net/http does.
func nextAcceptBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	return min(2*d, time.Second)
}

func (a *Acceptor) setActive(conn net.Conn) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped && conn != nil {
		return false
	}
	a.active = conn
	return true
}

func (a *Acceptor) shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.ln != nil {
		_ = a.ln.Close()
	}
	if a.active != nil {
		_ = a.active.Close()
	}
}

func (a *Acceptor) handleError(err error) {
	if a.opts.errorHandler != nil {
		a.opts.errorHandler(err)
	}
}
