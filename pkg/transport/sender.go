package transport

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"posewire/pkg/engine"
	"posewire/pkg/metrics"
	"posewire/pkg/protocol"
	"posewire/pkg/source"
)

// Sender streams frames sampled from a Source to a receiver at a fixed rate.
type Sender struct {
	addr string
	src  source.Source
	opts options
	buf  []byte
	sent atomic.Uint64
}

func NewSender(addr string, src source.Source, opts ...Option) *Sender {
	return &Sender{
		addr: addr,
		src:  src,
		opts: buildOptions(opts),
		buf:  make([]byte, protocol.RecordSize),
	}
}

// Run dials once and sends a frame per tick until ctx is cancelled, the frame
// limit is reached, or a write fails. There is no reconnect.
func (s *Sender) Run(ctx context.Context) error {
	log := s.opts.logger.With().Str("addr", s.addr).Logger()

	dialer := net.Dialer{Timeout: s.opts.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		metrics.RecordSendError()
		return fmt.Errorf("%w: dial %s: %w", protocol.ErrTransport, s.addr, err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log.Info().Int("hz", s.opts.hz).Msg("streaming skeleton frames")
	ticker := time.NewTicker(engine.TickInterval(s.opts.hz))
	defer ticker.Stop()

	ts := time.Now()
	for {
		if err := s.sendOnce(conn, ts); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			metrics.RecordSendError()
			log.Error().Err(err).Uint64("sent", s.Sent()).Msg("sender stopped")
			return err
		}
		if s.opts.frameLimit > 0 && s.Sent() >= s.opts.frameLimit {
			log.Info().Uint64("sent", s.Sent()).Msg("frame limit reached")
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case ts = <-ticker.C:
		}
	}
}

// Sent reports the number of frames written so far.
func (s *Sender) Sent() uint64 {
	return s.sent.Load()
}

func (s *Sender) sendOnce(conn net.Conn, ts time.Time) error {
	sample, err := s.src.Sample(ts)
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	n, err := protocol.EncodeInto(s.buf, source.Frame(sample))
	if err != nil {
		return err
	}
	if _, err := conn.Write(s.buf[:n]); err != nil {
		return fmt.Errorf("%w: write: %w", protocol.ErrTransport, err)
	}
	s.sent.Add(1)
	metrics.RecordFrameSent()
	return nil
}
