package signal

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"voxrelay/internal/core/domain"
	"voxrelay/internal/core/ports"
	"voxrelay/internal/infrastructure/monitoring"
	"voxrelay/pkg/tracing"
	"voxrelay/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Destination types for voice note announcements.
const (
	ToTypeUser  = "user"
	ToTypeGroup = "group"
)

// ControlMessage is the JSON shape shared by every signaling message.
// Field names are contractual with the browser clients.
type ControlMessage struct {
	Type         string          `json:"type"`
	ClientID     domain.ClientID `json:"clientId,omitempty"`
	CallerID     domain.ClientID `json:"callerId,omitempty"`
	ReceiverID   domain.ClientID `json:"receiverId,omitempty"`
	CallKey      domain.CallKey  `json:"callKey,omitempty"`
	ToType       string          `json:"toType,omitempty"`
	Target       string          `json:"target,omitempty"`
	Filename     string          `json:"filename,omitempty"`
	Base64       string          `json:"base64,omitempty"`
	FromClientID domain.ClientID `json:"fromClientId,omitempty"`
}

// Config carries the transport tunables of the gateway.
type Config struct {
	PingInterval      time.Duration
	WriteTimeout      time.Duration
	MaxMessageBytes   int64
	MessagesPerSecond float64 // 0 disables the per-connection limiter
	Burst             int
}

// Server is the signaling gateway: it accepts WebSocket connections, binds
// them to client identities, drives the call lifecycle and hands binary
// frames to the audio relay.
type Server struct {
	registry *Registry
	calls    ports.CallTable
	relay    *AudioRelay
	backends ports.BackendPool // nil when the chat backend is not attached
	presence ports.PresenceBus
	metrics  *monitoring.Collector

	cfg Config

	logger *zap.SugaredLogger
}

func NewServer(
	registry *Registry,
	calls ports.CallTable,
	relay *AudioRelay,
	backends ports.BackendPool,
	presence ports.PresenceBus,
	metrics *monitoring.Collector,
	cfg Config,
	logger *zap.SugaredLogger,
) *Server {
	if presence == nil {
		presence = NopPresenceBus{}
	}
	return &Server{
		registry: registry,
		calls:    calls,
		relay:    relay,
		backends: backends,
		presence: presence,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}
}

// HandleWebSocket upgrades the request and runs the connection's read loop
// until the transport closes.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	conn := newConn(ws, s.cfg.WriteTimeout)
	s.registry.Track(conn)
	s.metrics.RecordConnectionAccepted()

	if s.cfg.MaxMessageBytes > 0 {
		ws.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	ws.SetPongHandler(func(string) error {
		conn.setAlive(true)
		return nil
	})

	s.logger.Infow("connection accepted", "session_id", conn.SessionID(), "remote", r.RemoteAddr)

	var limiter *rate.Limiter
	if s.cfg.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst)
	}

	defer s.handleClose(conn)

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read failed", "session_id", conn.SessionID(), "error", err)
			}
			return
		}

		if limiter != nil && !limiter.Allow() {
			s.metrics.RecordFrameDropped(monitoring.DropRateLimited)
			s.logger.Warnw("message rate limit exceeded, dropping",
				"session_id", conn.SessionID(),
				"client_id", conn.Identity(),
			)
			continue
		}

		switch msgType {
		case websocket.TextMessage:
			s.handleControl(conn, data)
		case websocket.BinaryMessage:
			// Some proxies deliver text frames with the binary opcode;
			// sniff for JSON before treating the frame as audio.
			if domain.LooksLikeControl(data) {
				s.handleControl(conn, data)
				continue
			}
			if err := s.relay.Relay(conn, data); err != nil {
				s.logger.Debugw("dropped audio frame",
					"session_id", conn.SessionID(),
					"client_id", conn.Identity(),
					"error", err,
				)
			}
		}
	}
}

// handleControl dispatches one control message. Malformed input is dropped
// with a log; nothing here may panic or escape into the read loop.
func (s *Server) handleControl(conn *Conn, data []byte) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warnw("dropping malformed control message",
			"session_id", conn.SessionID(),
			"error", err,
		)
		return
	}
	if msg.Type == "" {
		s.logger.Warnw("dropping control message without type", "session_id", conn.SessionID())
		return
	}

	ctx, span := tracing.TraceControlMessage(context.Background(), msg.Type, conn.Identity().String())
	defer span.End()

	s.metrics.RecordControlMessage(msg.Type)

	switch msg.Type {
	case "register":
		s.handleRegister(ctx, conn, msg)
	case "call-start":
		s.handleCallStart(ctx, conn, msg)
	case "call-accept":
		s.handleCallAccept(conn, msg)
	case "call-reject":
		s.handleCallReject(ctx, conn, msg)
	case "call-end":
		s.handleCallEnd(ctx, conn, msg)
	case "voicenote":
		s.handleVoiceNote(ctx, conn, msg)
	default:
		s.logger.Debugw("ignoring unknown control message",
			"session_id", conn.SessionID(),
			"type", msg.Type,
		)
	}
}

func (s *Server) handleRegister(ctx context.Context, conn *Conn, msg ControlMessage) {
	if msg.ClientID.IsZero() {
		s.logger.Warnw("register without clientId", "session_id", conn.SessionID())
		return
	}

	evicted := s.registry.Register(msg.ClientID, conn)
	if evicted {
		s.metrics.RecordEviction()
	}
	s.metrics.SetClientsConnected(s.registry.Len())

	s.send(conn, map[string]interface{}{
		"type":     "registered",
		"clientId": msg.ClientID,
	})

	if err := s.presence.PublishRegistered(ctx, msg.ClientID); err != nil {
		s.logger.Debugw("presence publish failed", "error", err)
	}

	s.logger.Infow("client registered",
		"client_id", msg.ClientID,
		"session_id", conn.SessionID(),
		"evicted_stale", evicted,
	)
}

func (s *Server) handleCallStart(ctx context.Context, conn *Conn, msg ControlMessage) {
	if msg.CallerID.IsZero() || msg.ReceiverID.IsZero() {
		s.logger.Warnw("call-start missing callerId or receiverId", "session_id", conn.SessionID())
		return
	}

	key := s.calls.Start(msg.CallerID, msg.ReceiverID)
	s.metrics.SetCallsActive(s.calls.Len())

	s.logger.Infow("call started", "call_key", key, "caller", msg.CallerID, "receiver", msg.ReceiverID)

	if err := s.presence.PublishCallStarted(ctx, key); err != nil {
		s.logger.Debugw("presence publish failed", "error", err)
	}

	// Best-effort: a receiver that is not registered simply never learns
	// about the call; the record still exists for when audio arrives.
	if err := s.registry.Send(msg.ReceiverID, map[string]interface{}{
		"type":     "call-incoming",
		"callerId": msg.CallerID,
		"callKey":  key,
	}); err != nil {
		s.logger.Infow("receiver not notified", "call_key", key, "receiver", msg.ReceiverID, "error", err)
	}
}

func (s *Server) handleCallAccept(conn *Conn, msg ControlMessage) {
	if msg.CallKey == "" {
		s.logger.Warnw("call-accept without callKey", "session_id", conn.SessionID())
		return
	}

	// Accepting an unknown key is ignored: the call may already have been
	// torn down by the other side.
	if !s.calls.Accept(msg.CallKey) {
		s.logger.Debugw("call-accept for unknown call", "call_key", msg.CallKey)
		return
	}

	initiator, _, err := msg.CallKey.Participants()
	if err != nil {
		s.logger.Warnw("call-accept with malformed key", "call_key", msg.CallKey, "error", err)
		return
	}

	s.logger.Infow("call accepted", "call_key", msg.CallKey)

	if err := s.registry.Send(initiator, map[string]interface{}{
		"type":    "call-accepted",
		"callKey": msg.CallKey,
	}); err != nil {
		s.logger.Debugw("initiator not notified", "call_key", msg.CallKey, "error", err)
	}
}

func (s *Server) handleCallReject(ctx context.Context, conn *Conn, msg ControlMessage) {
	if msg.CallKey == "" {
		s.logger.Warnw("call-reject without callKey", "session_id", conn.SessionID())
		return
	}

	s.calls.Reject(msg.CallKey)
	s.metrics.SetCallsActive(s.calls.Len())

	initiator, _, err := msg.CallKey.Participants()
	if err != nil {
		s.logger.Warnw("call-reject with malformed key", "call_key", msg.CallKey, "error", err)
		return
	}

	s.logger.Infow("call rejected", "call_key", msg.CallKey)

	if err := s.presence.PublishCallEnded(ctx, msg.CallKey); err != nil {
		s.logger.Debugw("presence publish failed", "error", err)
	}

	if err := s.registry.Send(initiator, map[string]interface{}{
		"type":    "call-rejected",
		"callKey": msg.CallKey,
	}); err != nil {
		s.logger.Debugw("initiator not notified", "call_key", msg.CallKey, "error", err)
	}
}

func (s *Server) handleCallEnd(ctx context.Context, conn *Conn, msg ControlMessage) {
	if msg.CallKey == "" {
		s.logger.Warnw("call-end without callKey", "session_id", conn.SessionID())
		return
	}

	s.calls.End(msg.CallKey)
	s.metrics.SetCallsActive(s.calls.Len())

	initiator, receiver, err := msg.CallKey.Participants()
	if err != nil {
		s.logger.Warnw("call-end with malformed key", "call_key", msg.CallKey, "error", err)
		return
	}

	// The notification goes to the participant who did not send call-end.
	other := initiator
	if conn.Identity() == initiator {
		other = receiver
	}

	s.logger.Infow("call ended", "call_key", msg.CallKey, "by", conn.Identity())

	if err := s.presence.PublishCallEnded(ctx, msg.CallKey); err != nil {
		s.logger.Debugw("presence publish failed", "error", err)
	}

	if err := s.registry.Send(other, map[string]interface{}{
		"type":    "call-ended",
		"callKey": msg.CallKey,
	}); err != nil {
		s.logger.Debugw("peer not notified", "call_key", msg.CallKey, "error", err)
	}
}

// handleVoiceNote announces a voice note to its destination and forwards
// the audio bytes to the chat backend when the sender has a session there.
// The sender always gets the voicenote-sent ack: delivery is best-effort
// and persistence belongs to the backend, not this gateway.
func (s *Server) handleVoiceNote(ctx context.Context, conn *Conn, msg ControlMessage) {
	if msg.ToType == "" || msg.Target == "" || msg.Filename == "" {
		s.logger.Warnw("voicenote missing toType, target or filename", "session_id", conn.SessionID())
		return
	}
	if err := validation.ValidateFilename(msg.Filename); err != nil {
		s.logger.Warnw("voicenote with bad filename", "session_id", conn.SessionID(), "error", err)
		s.sendError(conn, err.Error())
		return
	}

	sender := msg.FromClientID
	if sender.IsZero() {
		sender = conn.Identity()
	}

	announcement := map[string]interface{}{
		"type":     "voicenote",
		"from":     sender,
		"toType":   msg.ToType,
		"target":   msg.Target,
		"filename": msg.Filename,
	}

	switch msg.ToType {
	case ToTypeUser:
		if err := s.registry.Send(domain.ClientID(msg.Target), announcement); err != nil {
			s.logger.Debugw("voicenote target offline", "target", msg.Target, "error", err)
		}
	case ToTypeGroup:
		// The gateway has no group membership; every connected client
		// except the sender gets the announcement and filters it against
		// its own chat context.
		s.registry.Broadcast(announcement, sender)
	default:
		s.logger.Warnw("voicenote with unknown toType", "to_type", msg.ToType)
		return
	}

	s.metrics.RecordVoiceNote(msg.ToType)

	if msg.Base64 != "" {
		s.forwardVoiceNote(ctx, conn, sender, msg)
	}

	s.send(conn, map[string]interface{}{
		"type":     "voicenote-sent",
		"toType":   msg.ToType,
		"target":   msg.Target,
		"filename": msg.Filename,
	})
}

// forwardVoiceNote pushes the decoded audio to the sender's backend
// session so the chat service can persist and fan it out. Failures are
// advisory: the client is told, but the announcement already went out.
func (s *Server) forwardVoiceNote(ctx context.Context, conn *Conn, sender domain.ClientID, msg ControlMessage) {
	if s.backends == nil {
		return
	}

	sess, ok := s.backends.Session(sender)
	if !ok {
		s.sendError(conn, "no chat backend session for this client")
		return
	}

	data, err := base64.StdEncoding.DecodeString(msg.Base64)
	if err != nil {
		s.logger.Warnw("voicenote with invalid base64 payload", "client_id", sender, "error", err)
		s.sendError(conn, "voice note payload is not valid base64")
		return
	}

	switch msg.ToType {
	case ToTypeUser:
		err = sess.SendVoiceNoteToUser(ctx, domain.ClientID(msg.Target), msg.Filename, data)
	case ToTypeGroup:
		err = sess.SendVoiceNoteToGroup(ctx, msg.Target, msg.Filename, data)
	}
	if err != nil {
		s.logger.Warnw("voicenote backend forward failed",
			"client_id", sender,
			"to_type", msg.ToType,
			"target", msg.Target,
			"error", err,
		)
		s.sendError(conn, "failed to forward voice note: "+err.Error())
	}
}

// handleClose reaps everything the departing connection owned: its call
// records, its registry binding, and its liveness tracking. Every call the
// identity participated in ends with a single call-ended to the survivor.
func (s *Server) handleClose(conn *Conn) {
	id := conn.Identity()

	if !id.IsZero() {
		for _, key := range s.calls.ActiveCallsInvolving(id) {
			s.calls.End(key)

			if err := s.presence.PublishCallEnded(context.Background(), key); err != nil {
				s.logger.Debugw("presence publish failed", "error", err)
			}

			other, err := key.Other(id)
			if err != nil {
				continue
			}
			if err := s.registry.Send(other, map[string]interface{}{
				"type":    "call-ended",
				"callKey": key,
			}); err != nil {
				s.logger.Debugw("survivor not notified", "call_key", key, "error", err)
			}
		}
		s.metrics.SetCallsActive(s.calls.Len())

		if s.registry.Unregister(id, conn) {
			if err := s.presence.PublishUnregistered(context.Background(), id); err != nil {
				s.logger.Debugw("presence publish failed", "error", err)
			}
		}
		s.metrics.SetClientsConnected(s.registry.Len())
	}

	s.registry.Untrack(conn)
	conn.Close()

	s.logger.Infow("connection closed", "session_id", conn.SessionID(), "client_id", id)
}

// send delivers to the handling connection itself; failures are logged
// and swallowed like every other signaling send.
func (s *Server) send(conn *Conn, v interface{}) {
	if err := conn.SendJSON(v); err != nil {
		s.logger.Debugw("send to own connection failed",
			"session_id", conn.SessionID(),
			"error", err,
		)
	}
}

func (s *Server) sendError(conn *Conn, message string) {
	s.send(conn, map[string]interface{}{
		"type":    "error",
		"message": message,
	})
}

// HealthCheck reports basic gateway liveness.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": s.registry.Len(),
		"calls":       s.calls.Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// NopPresenceBus is the default bus when redis is disabled.
type NopPresenceBus struct{}

func (NopPresenceBus) PublishRegistered(context.Context, domain.ClientID) error   { return nil }
func (NopPresenceBus) PublishUnregistered(context.Context, domain.ClientID) error { return nil }
func (NopPresenceBus) PublishCallStarted(context.Context, domain.CallKey) error   { return nil }
func (NopPresenceBus) PublishCallEnded(context.Context, domain.CallKey) error     { return nil }
func (NopPresenceBus) Close() error                                               { return nil }
