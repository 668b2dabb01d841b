package foxglove_test

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"posewire/pkg/bridge/foxglove"
	"posewire/pkg/engine"
	"posewire/pkg/protocol"
)

type foxgloveSession struct {
	srv      *foxglove.Server
	conn     *websocket.Conn
	channels map[string]foxglove.Channel
}

func startFoxgloveSession(t *testing.T, cfg foxglove.Config) *foxgloveSession {
	t.Helper()

	cfg.WSAddr = "127.0.0.1:0"
	srv := foxglove.NewServer(cfg)
	if err := srv.Listen(); err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx)
	}()

	dialURL := url.URL{Scheme: "ws", Host: srv.Addr().String(), Path: "/"}
	dialer := websocket.Dialer{Subprotocols: []string{foxglove.Subprotocol}}
	conn, _, err := dialer.Dial(dialURL.String(), nil)
	if err != nil {
		cancel()
		t.Fatalf("dial foxglove websocket: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("foxglove server run error: %v", err)
			}
		case <-time.After(3 * time.Second):
			t.Errorf("timed out waiting foxglove server shutdown")
		}
	})

	_, infoRaw, err := readWSMessage(conn)
	if err != nil {
		t.Fatalf("read serverInfo: %v", err)
	}
	var info foxglove.ServerInfoMsg
	if err := json.Unmarshal(infoRaw, &info); err != nil {
		t.Fatalf("decode serverInfo json: %v", err)
	}
	if info.Op != foxglove.OpServerInfo {
		t.Fatalf("unexpected first op: %v", info.Op)
	}

	_, advRaw, err := readWSMessage(conn)
	if err != nil {
		t.Fatalf("read advertise: %v", err)
	}
	var adv foxglove.AdvertiseMsg
	if err := json.Unmarshal(advRaw, &adv); err != nil {
		t.Fatalf("decode advertise json: %v", err)
	}
	channels := make(map[string]foxglove.Channel, len(adv.Channels))
	for _, ch := range adv.Channels {
		channels[ch.Topic] = ch
	}

	return &foxgloveSession{srv: srv, conn: conn, channels: channels}
}

func readWSMessage(conn *websocket.Conn) (int, []byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	_ = conn.SetReadDeadline(time.Time{})
	return msgType, raw, err
}

func subscribeChannel(t *testing.T, conn *websocket.Conn, subID uint32, channelID uint64) {
	t.Helper()
	msg := foxglove.SubscribeMsg{
		Op: foxglove.OpSubscribe,
		Subscriptions: []foxglove.Subscription{
			{ID: subID, ChannelID: channelID},
		},
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("subscribe channel %d: %v", channelID, err)
	}
	// Subscriptions are applied asynchronously by the server read loop.
	time.Sleep(20 * time.Millisecond)
}

func readBinaryPayloadForSubID(t *testing.T, conn *websocket.Conn, subID uint32) []byte {
	t.Helper()
	for i := 0; i < 40; i++ {
		msgType, frame, err := readWSMessage(conn)
		if err != nil {
			t.Fatalf("read messageData frame: %v", err)
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		if len(frame) < 13 || frame[0] != foxglove.BinaryOpMessageData {
			continue
		}
		if binary.LittleEndian.Uint32(frame[1:5]) != subID {
			continue
		}
		return append([]byte(nil), frame[13:]...)
	}
	t.Fatalf("did not receive messageData for subscription id %d", subID)
	return nil
}

func TestEncodeMessageData(t *testing.T) {
	frame := foxglove.EncodeMessageData(7, 0x1122334455667788, []byte{0xAA, 0xBB})
	if len(frame) != 1+4+8+2 {
		t.Fatalf("unexpected frame length: %d", len(frame))
	}
	if frame[0] != foxglove.BinaryOpMessageData {
		t.Fatalf("unexpected opcode: 0x%02x", frame[0])
	}
	if binary.LittleEndian.Uint32(frame[1:5]) != 7 {
		t.Fatalf("unexpected subscription id")
	}
	if binary.LittleEndian.Uint64(frame[5:13]) != 0x1122334455667788 {
		t.Fatalf("unexpected log time")
	}
	if frame[13] != 0xAA || frame[14] != 0xBB {
		t.Fatalf("unexpected payload bytes: %v", frame[13:])
	}
}

func TestFoxgloveAdvertisesChannels(t *testing.T) {
	cfg := foxglove.DefaultConfig()
	s := startFoxgloveSession(t, cfg)

	if len(s.channels) != 3 {
		t.Fatalf("expected 3 channels, got %d", len(s.channels))
	}
	want := map[string]string{
		cfg.TransformTopic: "foxglove.FrameTransforms",
		cfg.SkeletonTopic:  "posewire.Skeleton",
		cfg.LogTopic:       "foxglove.Log",
	}
	for topic, schema := range want {
		ch, ok := s.channels[topic]
		if !ok {
			t.Fatalf("missing advertised topic: %s", topic)
		}
		if ch.SchemaName != schema {
			t.Fatalf("topic %s schema = %s", topic, ch.SchemaName)
		}
	}
}

func TestFoxglovePublishesFrame(t *testing.T) {
	cfg := foxglove.DefaultConfig()
	s := startFoxgloveSession(t, cfg)
	subscribeChannel(t, s.conn, 31, s.channels[cfg.TransformTopic].ID)
	subscribeChannel(t, s.conn, 32, s.channels[cfg.SkeletonTopic].ID)

	f := protocol.NewSkeletonFrame()
	f.Joints[protocol.JointHips].Model.Orientation = protocol.Quat{X: 0.1, Y: -0.2, Z: 0.3, W: 0.9}
	s.srv.ApplyFrame(engine.FramePacket{Seq: 12, Received: time.Unix(777, 999), Frame: f})

	var tf foxglove.FrameTransformsMessage
	if err := json.Unmarshal(readBinaryPayloadForSubID(t, s.conn, 31), &tf); err != nil {
		t.Fatalf("decode transform payload: %v", err)
	}
	if len(tf.Transforms) != protocol.JointCount {
		t.Fatalf("expected %d transforms, got %d", protocol.JointCount, len(tf.Transforms))
	}
	rot := tf.Transforms[protocol.JointHips].Rotation
	if !near(rot.X, 0.1) || !near(rot.Y, -0.2) || !near(rot.Z, 0.3) || !near(rot.W, 0.9) {
		t.Fatalf("unexpected hips rotation: %+v", rot)
	}

	var skel foxglove.SkeletonMessage
	if err := json.Unmarshal(readBinaryPayloadForSubID(t, s.conn, 32), &skel); err != nil {
		t.Fatalf("decode skeleton payload: %v", err)
	}
	if skel.Seq != 12 || len(skel.Joints) != protocol.JointCount {
		t.Fatalf("unexpected skeleton message: seq=%d joints=%d", skel.Seq, len(skel.Joints))
	}
}

func TestFoxglovePublishesConnectionLog(t *testing.T) {
	cfg := foxglove.DefaultConfig()
	s := startFoxgloveSession(t, cfg)
	subscribeChannel(t, s.conn, 11, s.channels[cfg.LogTopic].ID)

	remote := &net.TCPAddr{IP: net.IPv4(10, 0, 0, 9), Port: 6000}
	s.srv.ConnectionClosed(remote, errors.New("header mismatch"))

	var rec foxglove.LogMessage
	if err := json.Unmarshal(readBinaryPayloadForSubID(t, s.conn, 11), &rec); err != nil {
		t.Fatalf("decode log payload: %v", err)
	}
	if rec.Level != foxglove.LogLevelWarning {
		t.Fatalf("unexpected log level: %d", rec.Level)
	}
	if rec.Message != "capture client 10.0.0.9:6000 dropped: header mismatch" {
		t.Fatalf("unexpected log message: %s", rec.Message)
	}
	if rec.Name != cfg.LogName {
		t.Fatalf("unexpected log name: %s", rec.Name)
	}
}

func near(got float64, want float64) bool {
	delta := got - want
	if delta < 0 {
		delta = -delta
	}
	return delta < 1e-6
}
