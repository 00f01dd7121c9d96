// Package ws implements the client wire protocol: the websocket
// handshake, the per-session egress writer, and the in-session message
// loop (SUBSCRIBE_<CHANNEL>/UNSUBSCRIBE_<CHANNEL>/PING).
package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/galatea-ims/event-hub/internal/config"
	"github.com/galatea-ims/event-hub/internal/domain/model"
	"github.com/galatea-ims/event-hub/internal/domain/registry"
	"github.com/galatea-ims/event-hub/internal/domain/session"
	"github.com/galatea-ims/event-hub/internal/service/wire"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler serves one channel's endpoint (e.g. /ws/positions). A Handler is
// bound to exactly one model.Channel at construction.
type Handler struct {
	channel  model.Channel
	manager  *session.Manager
	cfg      config.WireConfig
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// New builds a Handler for channel, using cfg.AllowedOrigins as the
// handshake origin allow-list.
func New(channel model.Channel, manager *session.Manager, cfg config.WireConfig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{channel: channel, manager: manager, cfg: cfg, logger: logger}
	h.upgrader = websocket.Upgrader{
		WriteBufferSize: cfg.SendBufferBytes,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	for _, allowed := range h.cfg.AllowedOrigins {
		if allowed == "*" || allowed == r.Header.Get("Origin") {
			return true
		}
	}
	return false
}

// ServeHTTP performs the handshake, then runs the
// egress writer and inbound message loop until the session closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := extractToken(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(int64(h.cfg.MessageSizeLimit))

	sess, err := h.manager.Handshake(token)
	if err != nil {
		h.logger.Info("ws handshake rejected", "error", err, "channel", h.channel)
		closeWithCode(conn, session.ReasonPolicyViolation.CloseCode(), string(wire.ErrorAuthFailed))
		return
	}

	if !sess.Allowed(h.channel) {
		h.manager.Teardown(sess, session.ReasonPolicyViolation)
		closeWithCode(conn, session.ReasonPolicyViolation.CloseCode(), string(wire.ErrorChannelNotAuthorized))
		return
	}

	h.sendConnectionAck(conn, sess)

	writerDone := make(chan struct{})
	go h.runEgressWriter(conn, sess, writerDone)

	h.runInboundLoop(conn, sess)

	<-writerDone
	sess.Release()
}

// sendConnectionAck writes directly to the connection: it runs before the
// egress writer starts, so the single-writer discipline still holds.
func (h *Handler) sendConnectionAck(conn *websocket.Conn, sess *session.Session) {
	env := wire.Envelope{
		MessageID:   uuid.NewString(),
		MessageType: wire.MessageConnectionAck,
		Timestamp:   time.Now().UnixMilli(),
		Payload:     map[string]string{"sessionId": sess.ID().String()},
	}
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

// runEgressWriter drains sess.Outbox() to the wire, tearing the session
// down on any write error.
func (h *Handler) runEgressWriter(conn *websocket.Conn, sess *session.Session, done chan<- struct{}) {
	defer close(done)

	for {
		select {
		case <-sess.Done():
			h.drainGrace(conn, sess)
			// Closing the connection with the teardown reason's code also
			// unblocks the inbound read loop for teardowns that originated
			// server-side (liveness timeout, slow consumer, shutdown).
			reason := sess.CloseReason()
			closeWithCode(conn, reason.CloseCode(), string(reason))
			_ = conn.Close()
			return
		case entry, ok := <-sess.Outbox():
			if !ok {
				return
			}
			if h.cfg.SendTimeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.SendTimeout))
			}
			if err := conn.WriteMessage(websocket.TextMessage, entry.Data); err != nil {
				h.logger.Warn("ws write failed", "session_id", sess.ID(), "error", err)
				h.manager.Teardown(sess, session.ReasonWriteFailure)
				_ = conn.Close()
				return
			}
		}
	}
}

// drainGraceBudget bounds how long a closing session may spend flushing
// its remaining outbox entries.
const drainGraceBudget = 2 * time.Second

// drainGrace flushes whatever remains in the outbox within the grace
// budget. Once the session is Draining no new entries are admitted, so an
// empty channel means the drain is complete.
func (h *Handler) drainGrace(conn *websocket.Conn, sess *session.Session) {
	deadline := time.Now().Add(drainGraceBudget)

	for {
		select {
		case entry := <-sess.Outbox():
			if time.Now().After(deadline) {
				return
			}
			_ = conn.SetWriteDeadline(deadline)
			if err := conn.WriteMessage(websocket.TextMessage, entry.Data); err != nil {
				return
			}
		default:
			return
		}
	}
}

// runInboundLoop is the Session Manager's in-session message handling
// loop: SUBSCRIBE/UNSUBSCRIBE/PING dispatch until the connection closes.
func (h *Handler) runInboundLoop(conn *websocket.Conn, sess *session.Session) {
	reason := session.ReasonClientClose
	defer func() { h.manager.Teardown(sess, reason) }()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// A frame over the configured size limit is a policy violation;
			// gorilla has already written the close frame for it.
			if errors.Is(err, websocket.ErrReadLimit) {
				reason = session.ReasonPolicyViolation
			}
			return
		}

		sess.Touch()

		var msg wire.InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendError(sess, wire.ErrorMessageParsing)
			continue
		}

		h.handleInbound(sess, msg)
	}
}

// channelSuffix is this Handler's endpoint name in the SUBSCRIBE_<CHANNEL>/
// UNSUBSCRIBE_<CHANNEL> grammar. Message types are string concatenation
// validated against a closed allow-list per endpoint, so
// SUBSCRIBE_INVENTORY sent on /ws/positions is UNSUPPORTED_MESSAGE_TYPE
// rather than silently accepted as a positions subscription.
func (h *Handler) channelSuffix() string {
	return strings.ToUpper(string(h.channel))
}

func (h *Handler) handleInbound(sess *session.Session, msg wire.InboundMessage) {
	suffix := h.channelSuffix()
	switch {
	case msg.MessageType == wire.MessagePing:
		h.enqueueReply(sess, wire.Envelope{MessageType: wire.MessagePong})

	case string(msg.MessageType) == "SUBSCRIBE_"+suffix:
		h.handleSubscribe(sess, msg, true)

	case string(msg.MessageType) == "UNSUBSCRIBE_"+suffix:
		h.handleSubscribe(sess, msg, false)

	default:
		h.sendError(sess, wire.ErrorUnsupportedMessageType)
	}
}

func (h *Handler) handleSubscribe(sess *session.Session, msg wire.InboundMessage, subscribe bool) {
	var payload wire.SubscribePayload
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			h.sendError(sess, wire.ErrorMessageParsing)
			return
		}
	}
	pred := registry.Predicate(payload)

	if subscribe {
		if _, err := h.manager.Subscribe(sess, h.channel, pred); err != nil {
			h.sendError(sess, wire.ErrorChannelNotAuthorized)
			return
		}
		h.sendSubscriptionConfirmed(sess, "SUBSCRIBED")
		return
	}

	h.manager.Unsubscribe(sess, h.channel, pred)
	h.sendSubscriptionConfirmed(sess, "UNSUBSCRIBED")
}

func (h *Handler) sendSubscriptionConfirmed(sess *session.Session, action string) {
	h.enqueueReply(sess, wire.Envelope{
		MessageType: wire.MessageSubscriptionConfirmed,
		Payload:     map[string]string{"action": action},
	})
}

func (h *Handler) sendError(sess *session.Session, code wire.ErrorCode) {
	h.enqueueReply(sess, wire.Envelope{
		MessageType: wire.MessageError,
		Payload:     map[string]string{"code": string(code)},
	})
}

// enqueueReply routes in-session replies through the outbox so the egress
// writer stays the connection's only writer and replies interleave with
// event deliveries in enqueue order.
func (h *Handler) enqueueReply(sess *session.Session, env wire.Envelope) {
	env.MessageID = uuid.NewString()
	env.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	if !sess.Enqueue(data) {
		h.logger.Warn("reply dropped", "session_id", sess.ID(), "message_type", env.MessageType)
	}
}

func extractToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

func closeWithCode(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}
