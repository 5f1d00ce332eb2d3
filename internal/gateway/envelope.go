// Package gateway is the Event Gateway: it binds inbound websocket
// frames to Matchmaker operations and adapts outbound Matchmaker
// events onto the transport, dispatching the four inbound event types
// to their matching Matchmaker call and tracking room-per-match
// broadcast membership.
package gateway

import "encoding/json"

// envelope is the outer shape every inbound frame must have.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinQueuePayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type leaveQueuePayload struct {
	UserID string `json:"userId"`
}

type playerReadyPayload struct {
	UserID  string `json:"userId"`
	MatchID string `json:"matchId"`
}

type tapPayload struct {
	UserID    string `json:"userId"`
	MatchID   string `json:"matchId"`
	Timestamp int64  `json:"timestamp"`
}

const (
	inboundJoinQueue   = "join_queue"
	inboundLeaveQueue  = "leave_queue"
	inboundPlayerReady = "player_ready"
	inboundTap         = "tap"
)
