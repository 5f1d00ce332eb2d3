// Package match holds the passive data records of the tap-race domain:
// Player, Match, and Queue. Transitions are driven by the matchmaker
// package; this package only enforces the state machine itself.
package match

import "time"

// Player is per-connection, per-match-instance state. A Player exists
// inside at most one Queue entry or one Match, never both.
type Player struct {
	ID            string
	ConnectionID  string
	DisplayName   string
	ValidatedTaps int
	LastTapAt     time.Time
	Ready         bool

	// JoinedAt and Sequence preserve Queue insertion order into the
	// Match so the end-of-match tie-break (earlier joiner wins) still
	// works after the Queue entry itself is gone.
	JoinedAt time.Time
	Sequence uint64
}

// NewPlayer creates a fresh Player for a just-enqueued connection.
func NewPlayer(id, connectionID, displayName string, joinedAt time.Time, sequence uint64) *Player {
	return &Player{
		ID:           id,
		ConnectionID: connectionID,
		DisplayName:  displayName,
		JoinedAt:     joinedAt,
		Sequence:     sequence,
	}
}
