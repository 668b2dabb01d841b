package foxglove

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"posewire/pkg/engine"
	"posewire/pkg/protocol"
)

const rootFrame = "root"

// Server is a Foxglove WebSocket endpoint that publishes skeleton frames as
// a transform tree and a JSON skeleton message. It is an engine.FrameSink.
type Server struct {
	cfg     Config
	log     zerolog.Logger
	clients map[*client]struct{}
	mu      sync.RWMutex

	lnMu sync.Mutex
	ln   net.Listener

	published atomic.Uint64
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	subs   map[uint32]uint64
	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

type Option func(*Server)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) {
		s.log = l
	}
}

func NewServer(cfg Config, opts ...Option) *Server {
	cfg.normalize()
	s := &Server{
		cfg:     cfg,
		log:     zerolog.Nop(),
		clients: make(map[*client]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Listen binds the WebSocket address ahead of Run.
func (s *Server) Listen() error {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.cfg.WSAddr)
	if err != nil {
		return fmt.Errorf("foxglove listen %s: %w", s.cfg.WSAddr, err)
	}
	s.ln = ln
	return nil
}

func (s *Server) Addr() net.Addr {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	s.lnMu.Lock()
	ln := s.ln
	s.lnMu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWS)
	httpServer := &http.Server{Handler: mux}

	s.log.Info().Str("addr", ln.Addr().String()).Msg("foxglove bridge listening")
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		cancel()
		s.closeClients()
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// ApplyFrame publishes one frame to every subscribed client.
func (s *Server) ApplyFrame(pkt engine.FramePacket) {
	ts := pkt.Received
	if ts.IsZero() {
		ts = time.Now()
	}
	s.publishJSONToChannel(ChannelTransforms, ts, s.transforms(pkt.Frame, ts))
	s.publishJSONToChannel(ChannelSkeleton, ts, skeletonMessage(pkt, ts))
	s.published.Add(1)
}

// PublishLog sends a foxglove.Log entry.
func (s *Server) PublishLog(level uint8, message string, ts time.Time) {
	s.publishJSONToChannel(ChannelLog, ts, LogMessage{
		Timestamp: frameTime(ts),
		Level:     level,
		Message:   message,
		Name:      s.cfg.LogName,
	})
}

// ConnectionOpened and ConnectionClosed fit transport.WithConnHooks.
func (s *Server) ConnectionOpened(remote net.Addr) {
	s.PublishLog(LogLevelInfo, "capture client connected: "+remote.String(), time.Now())
}

func (s *Server) ConnectionClosed(remote net.Addr, err error) {
	if err != nil {
		s.PublishLog(LogLevelWarning, fmt.Sprintf("capture client %s dropped: %v", remote, err), time.Now())
		return
	}
	s.PublishLog(LogLevelInfo, "capture client disconnected: "+remote.String(), time.Now())
}

// Published counts frames handed to ApplyFrame.
func (s *Server) Published() uint64 {
	return s.published.Load()
}

func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// transforms roots the skeleton under the configured parent frame and hangs
// every other joint off the root by its model-space pose.
func (s *Server) transforms(f protocol.SkeletonFrame, ts time.Time) FrameTransformsMessage {
	stamp := frameTime(ts)
	out := FrameTransformsMessage{Transforms: make([]FrameTransformMessage, 0, protocol.JointCount)}
	for i, jp := range f.Joints {
		j := protocol.Joint(i)
		if j == protocol.JointRoot {
			out.Transforms = append(out.Transforms, transformFromPose(stamp, s.cfg.ParentFrameID, rootFrame, jp.Local))
			continue
		}
		out.Transforms = append(out.Transforms, transformFromPose(stamp, rootFrame, j.String(), jp.Model))
	}
	return out
}

func skeletonMessage(pkt engine.FramePacket, ts time.Time) SkeletonMessage {
	msg := SkeletonMessage{
		Seq:    pkt.Seq,
		TS:     ts.UTC().Format(time.RFC3339Nano),
		Joints: make([]SkeletonJoint, 0, protocol.JointCount),
	}
	if pkt.Remote != nil {
		msg.Remote = pkt.Remote.String()
	}
	for i, jp := range pkt.Frame.Joints {
		msg.Joints = append(msg.Joints, SkeletonJoint{
			Name:  protocol.Joint(i).String(),
			Local: jp.Local,
			Model: jp.Model,
		})
	}
	return msg
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		Subprotocols: []string{Subprotocol},
		CheckOrigin: func(*http.Request) bool {
			return true
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := newClient(conn, s.cfg.SendBuf)
	s.addClient(c)
	s.log.Info().Str("remote", r.RemoteAddr).Msg("foxglove client connected")

	if err := conn.WriteJSON(s.serverInfo()); err != nil {
		c.close()
		s.removeClient(c)
		return
	}
	if err := conn.WriteJSON(s.advertise()); err != nil {
		c.close()
		s.removeClient(c)
		return
	}

	go c.writeLoop()
	c.readLoop(s.supportedChannels())

	c.close()
	s.removeClient(c)
	s.log.Info().Str("remote", r.RemoteAddr).Msg("foxglove client disconnected")
}

func (s *Server) supportedChannels() map[uint64]struct{} {
	return map[uint64]struct{}{
		ChannelTransforms: {},
		ChannelSkeleton:   {},
		ChannelLog:        {},
	}
}

func (s *Server) serverInfo() ServerInfoMsg {
	return ServerInfoMsg{
		Op:                 OpServerInfo,
		Name:               s.cfg.Name,
		Capabilities:       []string{},
		SupportedEncodings: []string{},
		Metadata: map[string]string{
			"joints": fmt.Sprintf("%d", protocol.JointCount),
		},
		SessionID: fmt.Sprintf("%d", time.Now().UTC().UnixNano()),
	}
}

func (s *Server) advertise() AdvertiseMsg {
	return AdvertiseMsg{Op: OpAdvertise, Channels: []Channel{
		{
			ID:             ChannelTransforms,
			Topic:          s.cfg.TransformTopic,
			Encoding:       "json",
			SchemaName:     "foxglove.FrameTransforms",
			SchemaEncoding: "jsonschema",
			Schema:         DefaultFrameTransformsSchema,
		},
		{
			ID:             ChannelSkeleton,
			Topic:          s.cfg.SkeletonTopic,
			Encoding:       "json",
			SchemaName:     "posewire.Skeleton",
			SchemaEncoding: "jsonschema",
			Schema:         DefaultSkeletonSchema,
		},
		{
			ID:             ChannelLog,
			Topic:          s.cfg.LogTopic,
			Encoding:       "json",
			SchemaName:     "foxglove.Log",
			SchemaEncoding: "jsonschema",
			Schema:         DefaultLogSchema,
		},
	}}
}

func (s *Server) publishJSONToChannel(channelID uint64, ts time.Time, message any) {
	clients := s.snapshotClients()
	if len(clients) == 0 {
		return
	}
	payload, err := json.Marshal(message)
	if err != nil {
		s.log.Error().Err(err).Uint64("channel", channelID).Msg("encode foxglove message")
		return
	}

	logTime := uint64(ts.UnixNano())
	for _, c := range clients {
		for _, subID := range c.subIDsForChannel(channelID) {
			c.trySend(EncodeMessageData(subID, logTime, payload))
		}
	}
}

func (s *Server) addClient(c *client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func (s *Server) closeClients() {
	for _, c := range s.snapshotClients() {
		c.close()
	}
}

func (s *Server) snapshotClients() []*client {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()
	return clients
}

func newClient(conn *websocket.Conn, sendBuf int) *client {
	if sendBuf <= 0 {
		sendBuf = DefaultConfig().SendBuf
	}
	return &client{
		conn: conn,
		send: make(chan []byte, sendBuf),
		subs: make(map[uint32]uint64),
	}
}

func (c *client) readLoop(supportedChannels map[uint64]struct{}) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var header struct {
			Op string `json:"op"`
		}
		if err := json.Unmarshal(data, &header); err != nil {
			continue
		}

		switch header.Op {
		case OpSubscribe:
			var msg SubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, sub := range msg.Subscriptions {
				if _, ok := supportedChannels[sub.ChannelID]; ok {
					c.addSub(sub.ID, sub.ChannelID)
				}
			}
		case OpUnsubscribe:
			var msg UnsubscribeMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			for _, id := range msg.SubscriptionIDs {
				c.removeSub(id)
			}
		}
	}
}

func (c *client) writeLoop() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			c.close()
			return
		}
	}
}

// trySend queues msg unless the client is closed or behind, and reports
// whether it was queued.
func (c *client) trySend(msg []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) addSub(id uint32, channelID uint64) {
	c.mu.Lock()
	c.subs[id] = channelID
	c.mu.Unlock()
}

func (c *client) removeSub(id uint32) {
	c.mu.Lock()
	delete(c.subs, id)
	c.mu.Unlock()
}

func (c *client) subIDsForChannel(channelID uint64) []uint32 {
	c.mu.RLock()
	ids := make([]uint32, 0, len(c.subs))
	for id, ch := range c.subs {
		if ch == channelID {
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()
	return ids
}

func (c *client) close() {
	c.once.Do(func() {
		c.closeSend()
		_ = c.conn.Close()
	})
}

func (c *client) closeSend() {
	c.mu.Lock()
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}
