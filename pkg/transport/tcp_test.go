package transport_test

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"posewire/pkg/engine"
	"posewire/pkg/protocol"
	"posewire/pkg/source"
	"posewire/pkg/transport"
)

func frameWithHips(x float32) protocol.SkeletonFrame {
	f := protocol.NewSkeletonFrame()
	f.Joints[protocol.JointHips].Local.Position.X = x
	return f
}

type harness struct {
	acceptor *transport.Acceptor
	frames   chan engine.FramePacket
	errs     chan error
	closed   chan net.Addr
	done     chan error
	cancel   context.CancelFunc
}

func startAcceptor(t *testing.T, opts ...transport.Option) *harness {
	t.Helper()
	h := &harness{
		frames: make(chan engine.FramePacket, 16),
		errs:   make(chan error, 4),
		closed: make(chan net.Addr, 4),
		done:   make(chan error, 1),
	}
	opts = append(opts,
		transport.WithErrorHandler(func(err error) { h.errs <- err }),
		transport.WithConnHooks(nil, func(addr net.Addr, _ error) { h.closed <- addr }),
	)
	h.acceptor = transport.NewAcceptor("127.0.0.1:0",
		transport.FrameHandlerFunc(func(pkt engine.FramePacket) { h.frames <- pkt }),
		opts...,
	)
	if err := h.acceptor.Listen(); err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.acceptor.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(time.Second):
			t.Errorf("acceptor did not stop")
		}
	})
	return h
}

func (h *harness) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", h.acceptor.Addr().String())
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readPacket(t *testing.T, ch <-chan engine.FramePacket) engine.FramePacket {
	t.Helper()
	select {
	case pkt := <-ch:
		return pkt
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for frame")
		return engine.FramePacket{}
	}
}

func readErr(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for connection error")
		return nil
	}
}

func TestAcceptorReassemblesChunkedStream(t *testing.T) {
	h := startAcceptor(t, transport.WithBankSize(protocol.RecordSize+100))
	conn := h.dial(t)

	var stream []byte
	for i := 1; i <= 3; i++ {
		stream = protocol.AppendFrame(stream, frameWithHips(float32(i)))
	}
	for _, size := range []int{1, 4, 5095, 7000, 3} {
		if _, err := conn.Write(stream[:size]); err != nil {
			t.Fatalf("write failed: %v", err)
		}
		stream = stream[size:]
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := conn.Write(stream); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	for i := 1; i <= 3; i++ {
		pkt := readPacket(t, h.frames)
		if pkt.Seq != uint64(i) {
			t.Fatalf("frame %d: seq = %d", i, pkt.Seq)
		}
		if got := pkt.Frame.Joint(protocol.JointHips).Local.Position.X; got != float32(i) {
			t.Fatalf("frame %d: hips x = %v", i, got)
		}
		if pkt.Remote == nil || pkt.Received.IsZero() {
			t.Fatalf("frame %d: missing receive metadata", i)
		}
	}
}

func TestAcceptorClosesOnHeaderMismatchAndResumes(t *testing.T) {
	h := startAcceptor(t)
	conn := h.dial(t)

	bad := protocol.Encode(frameWithHips(2))
	bad[0] ^= 0xff
	stream := append(protocol.Encode(frameWithHips(1)), bad...)
	if _, err := conn.Write(stream); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if pkt := readPacket(t, h.frames); pkt.Frame.Joint(protocol.JointHips).Local.Position.X != 1 {
		t.Fatalf("unexpected first frame")
	}
	if err := readErr(t, h.errs); !errors.Is(err, protocol.ErrHeaderMismatch) {
		t.Fatalf("expected header mismatch, got %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := conn.Read(make([]byte, 1)); err == nil {
		t.Fatalf("expected server to close connection")
	}
	select {
	case pkt := <-h.frames:
		t.Fatalf("no frame may follow a header mismatch, got seq %d", pkt.Seq)
	default:
	}

	next := h.dial(t)
	if _, err := next.Write(protocol.Encode(frameWithHips(3))); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if pkt := readPacket(t, h.frames); pkt.Frame.Joint(protocol.JointHips).Local.Position.X != 3 {
		t.Fatalf("unexpected frame after reconnect")
	}
}

func TestAcceptorReportsTruncatedStream(t *testing.T) {
	h := startAcceptor(t)
	conn := h.dial(t)

	data := protocol.Encode(frameWithHips(1))
	data = append(data, protocol.Encode(frameWithHips(2))[:protocol.RecordSize/2]...)
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	readPacket(t, h.frames)
	_ = conn.Close()

	if err := readErr(t, h.errs); !errors.Is(err, protocol.ErrTruncatedStream) {
		t.Fatalf("expected truncated stream, got %v", err)
	}
}

// flakyListener fails its first accepts with ECONNABORTED.
type flakyListener struct {
	net.Listener
	failures atomic.Int32
}

func (l *flakyListener) Accept() (net.Conn, error) {
	if l.failures.Add(-1) >= 0 {
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: syscall.ECONNABORTED}
	}
	return l.Listener.Accept()
}

func TestAcceptorRetriesFailedAccept(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	flaky := &flakyListener{Listener: ln}
	flaky.failures.Store(3)

	h := startAcceptor(t, transport.WithListener(flaky))
	for i := 0; i < 3; i++ {
		if err := readErr(t, h.errs); !errors.Is(err, protocol.ErrTransport) || !errors.Is(err, syscall.ECONNABORTED) {
			t.Fatalf("accept error %d = %v", i, err)
		}
	}

	conn := h.dial(t)
	if _, err := conn.Write(protocol.Encode(frameWithHips(7))); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if got := readPacket(t, h.frames).Frame.Joints[protocol.JointHips].Local.Position.X; got != 7 {
		t.Fatalf("hips x = %v", got)
	}
	select {
	case err := <-h.done:
		t.Fatalf("serve returned %v", err)
	default:
	}
}

func TestAcceptorCleanCloseIsNotAnError(t *testing.T) {
	h := startAcceptor(t)
	conn := h.dial(t)
	if _, err := conn.Write(protocol.Encode(frameWithHips(1))); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	readPacket(t, h.frames)
	_ = conn.Close()

	select {
	case <-h.closed:
	case <-time.After(time.Second):
		t.Fatalf("close hook not called")
	}
	select {
	case err := <-h.errs:
		t.Fatalf("unexpected error for clean close: %v", err)
	default:
	}
}

func TestAcceptorStopsWithActiveConnection(t *testing.T) {
	h := startAcceptor(t)
	conn := h.dial(t)
	if _, err := conn.Write(protocol.Encode(frameWithHips(1))); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	readPacket(t, h.frames)

	h.cancel()
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
		h.done <- nil
	case <-time.After(time.Second):
		t.Fatalf("serve did not return after cancel")
	}
}

func TestSenderStreamsToAcceptor(t *testing.T) {
	h := startAcceptor(t)

	hips := protocol.JointPose{
		Local: protocol.Pose{Position: protocol.Vec3{X: 0.25}, Orientation: protocol.IdentityQuat},
		Model: protocol.IdentityPose,
	}
	src := source.SourceFunc(func(time.Time) (source.Sample, error) {
		return source.Poses{"hips_joint": hips}, nil
	})
	sender := transport.NewSender(h.acceptor.Addr().String(), src,
		transport.WithRate(200),
		transport.WithFrameLimit(5),
	)
	if err := sender.Run(context.Background()); err != nil {
		t.Fatalf("sender failed: %v", err)
	}
	if sender.Sent() != 5 {
		t.Fatalf("sent = %d", sender.Sent())
	}

	for i := 0; i < 5; i++ {
		pkt := readPacket(t, h.frames)
		if got := pkt.Frame.Joint(protocol.JointHips); got != hips {
			t.Fatalf("frame %d: hips = %+v", i, got)
		}
		if got := pkt.Frame.Joint(protocol.JointRoot); got != protocol.IdentityJointPose {
			t.Fatalf("frame %d: root should be identity, got %+v", i, got)
		}
	}
}

func TestSenderDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	sender := transport.NewSender(addr, source.SourceFunc(func(time.Time) (source.Sample, error) {
		return source.Poses{}, nil
	}), transport.WithDialTimeout(200*time.Millisecond))
	if err := sender.Run(context.Background()); !errors.Is(err, protocol.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestSenderStopsOnSampleError(t *testing.T) {
	h := startAcceptor(t)
	boom := errors.New("tracking lost")
	sender := transport.NewSender(h.acceptor.Addr().String(), source.SourceFunc(func(time.Time) (source.Sample, error) {
		return nil, boom
	}))
	if err := sender.Run(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected sample error, got %v", err)
	}
}
