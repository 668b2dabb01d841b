package logger

import (
	"bufio"
	"context"
	"io"

	"posewire/pkg/engine"
	"posewire/pkg/protocol"
)

// RawWriter records frames in wire format, back to back. The output can be
// played again with source.OpenReplay.
type RawWriter struct {
	w   *bufio.Writer
	buf []byte
}

func NewRawWriter(w io.Writer) *RawWriter {
	return &RawWriter{
		w:   bufio.NewWriterSize(w, 4*protocol.RecordSize),
		buf: make([]byte, protocol.RecordSize),
	}
}

func (r *RawWriter) Write(pkt engine.FramePacket) error {
	n, err := protocol.EncodeInto(r.buf, pkt.Frame)
	if err != nil {
		return err
	}
	_, err = r.w.Write(r.buf[:n])
	return err
}

func (r *RawWriter) Flush() error {
	return r.w.Flush()
}

// Consume writes packets until in is closed or ctx is done, then flushes.
func (r *RawWriter) Consume(ctx context.Context, in <-chan engine.FramePacket) error {
	err := consume(ctx, in, r.Write)
	if ferr := r.Flush(); err == nil {
		err = ferr
	}
	return err
}
