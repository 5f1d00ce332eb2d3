package match

import (
	"fmt"
	"sort"
	"time"
)

// Status transitions waiting -> starting -> active -> finished.
type Status string

const (
	Waiting  Status = "waiting"
	Starting Status = "starting"
	Active   Status = "active"
	Finished Status = "finished"
)

// Match is the state of a single game instance: a fixed roster, a
// status, start/end times, per-player tap counts, and a winner. The
// transition helpers below enforce the state machine.
type Match struct {
	ID       string
	Players  map[string]*Player
	Status   Status
	StartAt  time.Time
	EndAt    time.Time
	Duration time.Duration
	WinnerID string // empty means no winner
}

// New creates a Match in the waiting state for the given roster.
// Players must already carry their Queue insertion order.
func New(id string, duration time.Duration, roster []*Player) *Match {
	players := make(map[string]*Player, len(roster))
	for _, p := range roster {
		players[p.ID] = p
	}
	return &Match{
		ID:       id,
		Players:  players,
		Status:   Waiting,
		Duration: duration,
	}
}

// Pair transitions waiting -> starting. No-op outside waiting.
func (m *Match) Pair() {
	if m.Status == Waiting {
		m.Status = Starting
	}
}

// AllReady reports whether every player in the roster has Ready set.
func (m *Match) AllReady() bool {
	for _, p := range m.Players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// Start transitions waiting/starting -> active. Returns false if the
// match is not eligible, so racing calls are safe.
func (m *Match) Start(now time.Time) bool {
	if m.Status != Waiting && m.Status != Starting {
		return false
	}
	m.Status = Active
	m.StartAt = now
	return true
}

// Result is one line of the end-of-match results table.
type Result struct {
	PlayerID string
	Username string
	Taps     int
	IsWinner bool
}

// End transitions to finished, computing the winner and results
// table. Idempotent: returns the same results on repeat calls.
func (m *Match) End(now time.Time) []Result {
	if m.Status == Finished {
		return m.results()
	}
	m.Status = Finished
	m.EndAt = now
	m.WinnerID = m.computeWinner()
	return m.results()
}

// Remove deletes a player from the roster. Never changes Status.
func (m *Match) Remove(playerID string) {
	delete(m.Players, playerID)
}

// computeWinner picks the highest ValidatedTaps, ties broken by
// earlier Sequence. No taps means no winner.
func (m *Match) computeWinner() string {
	var winner *Player
	for _, p := range m.Players {
		if p.ValidatedTaps == 0 {
			continue
		}
		if winner == nil {
			winner = p
			continue
		}
		if p.ValidatedTaps > winner.ValidatedTaps {
			winner = p
			continue
		}
		if p.ValidatedTaps == winner.ValidatedTaps && p.Sequence < winner.Sequence {
			winner = p
		}
	}
	if winner == nil {
		return ""
	}
	return winner.ID
}

// results builds the descending-by-taps table, stable by insertion
// order on ties.
func (m *Match) results() []Result {
	ordered := make([]*Player, 0, len(m.Players))
	for _, p := range m.Players {
		ordered = append(ordered, p)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ValidatedTaps != ordered[j].ValidatedTaps {
			return ordered[i].ValidatedTaps > ordered[j].ValidatedTaps
		}
		return ordered[i].Sequence < ordered[j].Sequence
	})
	results := make([]Result, 0, len(ordered))
	for _, p := range ordered {
		results = append(results, Result{
			PlayerID: p.ID,
			Username: p.DisplayName,
			Taps:     p.ValidatedTaps,
			IsWinner: m.WinnerID != "" && p.ID == m.WinnerID,
		})
	}
	return results
}

// String renders a short diagnostic summary, handy in log lines.
func (m *Match) String() string {
	return fmt.Sprintf("Match{id=%s status=%s players=%d}", m.ID, m.Status, len(m.Players))
}
