package gateway

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/taprace/matchmaker/internal/identity"
	"github.com/taprace/matchmaker/internal/matchmaker"
	"github.com/taprace/matchmaker/pkg/ws"
)

// Handler serves upgraded connections and dispatches their frames to
// the Matchmaker.
type Handler struct {
	gw       *ws.Gateway
	mm       *matchmaker.Matchmaker
	verifier *identity.Verifier

	mu         sync.Mutex
	identities map[string]string // connection id -> verified user id
}

// NewHandler wires a connection registry, the Matchmaker it feeds, and
// an optional identity verifier (nil/disabled means no auth, for local
// development with no JWT secret configured).
func NewHandler(gw *ws.Gateway, mm *matchmaker.Matchmaker, verifier *identity.Verifier) *Handler {
	return &Handler{
		gw:         gw,
		mm:         mm,
		verifier:   verifier,
		identities: make(map[string]string),
	}
}

// ServeWS upgrades the request, registers the connection, and runs
// its read/write pumps. Binds the verified user id to the connection
// when verification is enabled.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := ws.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := ws.NewConnection(uuid.NewString(), conn)
	h.gw.Register(c)
	log.Info().Str("connection_id", c.ID).Str("user_id", userID).Msg("connection established")

	if h.verifier != nil && h.verifier.Enabled() {
		h.bindIdentity(c.ID, userID)
		defer h.unbindIdentity(c.ID)
	}

	go c.WritePump()
	c.ReadPump(func(payload []byte) {
		h.dispatch(c.ID, payload)
	})

	h.gw.Unregister(c.ID)
	h.mm.OnDisconnect(c.ID)
	log.Info().Str("connection_id", c.ID).Msg("connection closed")
}

// authenticate verifies the bearer token carried as a query parameter.
// An empty or disabled verifier accepts any connection, for local dev
// with no JWT_SECRET configured.
func (h *Handler) authenticate(r *http.Request) (string, error) {
	if h.verifier == nil || !h.verifier.Enabled() {
		return r.URL.Query().Get("userId"), nil
	}
	return h.verifier.Verify(r.URL.Query().Get("token"))
}

func (h *Handler) bindIdentity(connectionID, userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.identities[connectionID] = userID
}

func (h *Handler) unbindIdentity(connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.identities, connectionID)
}

// resolveUserID returns the user id a dispatched event acts as. With
// verification disabled it trusts the payload's userId. With
// verification enabled the payload's userId must match the identity
// bound to this connection at ServeWS, or the request is rejected.
func (h *Handler) resolveUserID(connectionID, payloadUserID string) (string, error) {
	if h.verifier == nil || !h.verifier.Enabled() {
		return payloadUserID, nil
	}
	h.mu.Lock()
	bound, ok := h.identities[connectionID]
	h.mu.Unlock()
	if !ok || payloadUserID == "" || payloadUserID != bound {
		return "", badPayload()
	}
	return bound, nil
}

func (h *Handler) dispatch(connectionID string, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendBadPayload(connectionID)
		return
	}

	var err error
	switch env.Type {
	case inboundJoinQueue:
		err = h.handleJoinQueue(connectionID, env.Payload)
	case inboundLeaveQueue:
		err = h.handleLeaveQueue(connectionID, env.Payload)
	case inboundPlayerReady:
		err = h.handlePlayerReady(connectionID, env.Payload)
	case inboundTap:
		err = h.handleTap(connectionID, env.Payload)
	default:
		h.sendBadPayload(connectionID)
		return
	}

	if err == nil {
		return
	}
	mmErr, ok := err.(*matchmaker.Error)
	if !ok {
		h.sendBadPayload(connectionID)
		return
	}
	h.Unicast(connectionID, matchmaker.EventError, matchmaker.ErrorPayload{Message: mmErr.Error()})
}

func (h *Handler) handleJoinQueue(connectionID string, raw json.RawMessage) error {
	var p joinQueuePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.UserID == "" {
		return badPayload()
	}
	userID, err := h.resolveUserID(connectionID, p.UserID)
	if err != nil {
		return err
	}
	return h.mm.JoinQueue(userID, p.Username, connectionID)
}

func (h *Handler) handleLeaveQueue(connectionID string, raw json.RawMessage) error {
	var p leaveQueuePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.UserID == "" {
		return badPayload()
	}
	userID, err := h.resolveUserID(connectionID, p.UserID)
	if err != nil {
		return err
	}
	return h.mm.LeaveQueue(userID)
}

func (h *Handler) handlePlayerReady(connectionID string, raw json.RawMessage) error {
	var p playerReadyPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.UserID == "" || p.MatchID == "" {
		return badPayload()
	}
	userID, err := h.resolveUserID(connectionID, p.UserID)
	if err != nil {
		return err
	}
	return h.mm.MarkReady(userID, p.MatchID)
}

func (h *Handler) handleTap(connectionID string, raw json.RawMessage) error {
	var p tapPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.UserID == "" || p.MatchID == "" {
		return badPayload()
	}
	userID, err := h.resolveUserID(connectionID, p.UserID)
	if err != nil {
		return err
	}
	return h.mm.SubmitTap(userID, p.MatchID, p.Timestamp)
}

func badPayload() error {
	return &matchmaker.Error{Kind: matchmaker.BadPayload}
}

func (h *Handler) sendBadPayload(connectionID string) {
	h.Unicast(connectionID, matchmaker.EventError, matchmaker.ErrorPayload{Message: "bad payload"})
}

// Unicast lets the Handler reuse the same frame encoding the Emitter
// uses, for error responses that happen before a Matchmaker call.
func (h *Handler) Unicast(connectionID, event string, payload any) {
	body, ok := encode(event, payload)
	if !ok {
		return
	}
	h.gw.Unicast(connectionID, body)
}
