package gateway

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/taprace/matchmaker/pkg/ws"
)

// outboundFrame is the wire envelope for every server-to-client event,
// the mirror of envelope on the inbound side.
type outboundFrame struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Emitter implements matchmaker.Emitter over a pkg/ws.Gateway, giving
// the Matchmaker a transport-agnostic interface to depend on instead
// of a direct socket reference.
type Emitter struct {
	gw *ws.Gateway
}

// NewEmitter wraps a connection registry.
func NewEmitter(gw *ws.Gateway) *Emitter {
	return &Emitter{gw: gw}
}

func encode(event string, payload any) ([]byte, bool) {
	body, err := json.Marshal(outboundFrame{Type: event, Payload: payload})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("failed to marshal outbound event")
		return nil, false
	}
	return body, true
}

// Unicast implements matchmaker.Emitter.
func (e *Emitter) Unicast(connectionID, event string, payload any) {
	body, ok := encode(event, payload)
	if !ok {
		return
	}
	e.gw.Unicast(connectionID, body)
}

// Broadcast implements matchmaker.Emitter.
func (e *Emitter) Broadcast(matchID, event string, payload any) {
	body, ok := encode(event, payload)
	if !ok {
		return
	}
	e.gw.Broadcast(matchID, body)
}

// JoinRoom implements matchmaker.Emitter.
func (e *Emitter) JoinRoom(matchID string, connectionIDs []string) {
	e.gw.JoinRoom(matchID, connectionIDs)
}

// LeaveRoom implements matchmaker.Emitter.
func (e *Emitter) LeaveRoom(matchID string) {
	e.gw.LeaveRoom(matchID)
}
