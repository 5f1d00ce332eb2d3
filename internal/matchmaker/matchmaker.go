// Package matchmaker owns the Queue and all live Matches, maps each
// player to at most one Queue entry or Match, schedules deferred
// transitions, and drives outbound events through an Emitter. All
// state mutation happens under a single mutex.
package matchmaker

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/taprace/matchmaker/internal/match"
	"github.com/taprace/matchmaker/internal/tap"
)

// ResultPublisher is the optional outbound hook fired after every
// endMatch. A nil ResultPublisher is a no-op. Implementations may
// block on network I/O; the matchmaker always invokes
// PublishMatchEnded from its own goroutine, never under its mutex.
type ResultPublisher interface {
	PublishMatchEnded(matchID, winnerID string, results []Result)
}

// Result mirrors match.Result at the matchmaker's public boundary.
type Result struct {
	PlayerID string
	Username string
	Taps     int
	IsWinner bool
}

// Matchmaker is the sole authority on score, timing, rate-limiting, and
// winner determination for every live match.
type Matchmaker struct {
	mu sync.Mutex

	cfg       Config
	tapLimits tap.Limits
	clock     clockwork.Clock
	emitter   Emitter
	publisher ResultPublisher
	log       zerolog.Logger

	queue   *match.Queue
	matches map[string]*match.Match

	playerToMatch map[string]string // player id -> match id
	playerToConn  map[string]string // player id -> connection id
	connToPlayer  map[string]string // connection id -> player id

	startTimers map[string]*scheduledTask // match id -> pending start timer
}

// Option customizes a Matchmaker at construction time.
type Option func(*Matchmaker)

// WithClock overrides the clock, used in tests to inject a
// clockwork.FakeClock so deferred transitions run without real sleeps.
func WithClock(c clockwork.Clock) Option {
	return func(mm *Matchmaker) { mm.clock = c }
}

// WithResultPublisher wires the outbound match_ended publisher
// (internal/outbox.Publisher satisfies this).
func WithResultPublisher(p ResultPublisher) Option {
	return func(mm *Matchmaker) { mm.publisher = p }
}

// WithLogger overrides the package-level zerolog logger.
func WithLogger(l zerolog.Logger) Option {
	return func(mm *Matchmaker) { mm.log = l }
}

// New constructs a Matchmaker bound to the given Emitter (the Event
// Gateway) and configuration.
func New(cfg Config, emitter Emitter, opts ...Option) *Matchmaker {
	mm := &Matchmaker{
		cfg:           cfg,
		tapLimits:     tap.Limits{ClockSkewWindow: cfg.TapClockSkewWindow, MinInterval: time.Second / time.Duration(cfg.MaxTapsPerSecond)},
		clock:         clockwork.NewRealClock(),
		emitter:       emitter,
		log:           log.Logger,
		queue:         match.NewQueue(),
		matches:       make(map[string]*match.Match),
		playerToMatch: make(map[string]string),
		playerToConn:  make(map[string]string),
		connToPlayer:  make(map[string]string),
		startTimers:   make(map[string]*scheduledTask),
	}
	for _, opt := range opts {
		opt(mm)
	}
	return mm
}

// JoinQueue enqueues a player, pairing immediately if the queue reaches match size.
func (mm *Matchmaker) JoinQueue(playerID, displayName, connectionID string) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if mm.queue.Contains(playerID) {
		return newError(AlreadyQueued)
	}
	if _, inMatch := mm.playerToMatch[playerID]; inMatch {
		return newError(AlreadyInMatch)
	}

	now := mm.clock.Now()
	seq := mm.queue.NextSequence()
	p := match.NewPlayer(playerID, connectionID, displayName, now, seq)
	position := mm.queue.Push(p)

	mm.playerToConn[playerID] = connectionID
	mm.connToPlayer[connectionID] = playerID

	mm.log.Info().Str("player_id", playerID).Int("position", position).Msg("player joined queue")
	mm.emitter.Unicast(connectionID, EventQueueJoined, QueueJoinedPayload{Position: position})

	if mm.queue.Len() >= mm.cfg.MatchSize {
		mm.createMatchLocked()
	}
	return nil
}

// LeaveQueue removes a queued player.
func (mm *Matchmaker) LeaveQueue(playerID string) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	p := mm.queue.Remove(playerID)
	if p == nil {
		return newError(NotQueued)
	}
	connectionID := mm.playerToConn[playerID]
	delete(mm.playerToConn, playerID)
	delete(mm.connToPlayer, connectionID)

	mm.log.Info().Str("player_id", playerID).Msg("player left queue")
	mm.emitter.Unicast(connectionID, EventQueueLeft, QueueLeftPayload{})
	return nil
}

// MarkReady marks a roster member ready, starting the match early once everyone is.
func (mm *Matchmaker) MarkReady(playerID, matchID string) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	m, ok := mm.matches[matchID]
	if !ok {
		return newError(MatchNotFound)
	}
	p, inRoster := m.Players[playerID]
	if !inRoster || mm.playerToMatch[playerID] != matchID {
		return newError(NotInMatch)
	}

	p.Ready = true
	mm.log.Info().Str("player_id", playerID).Str("match_id", matchID).Msg("player marked ready")

	if m.Status == match.Starting && m.AllReady() {
		if timer, ok := mm.startTimers[matchID]; ok {
			timer.Cancel()
			delete(mm.startTimers, matchID)
		}
		mm.startMatchLocked(m)
	}
	return nil
}

// SubmitTap validates and records a tap against an active match.
func (mm *Matchmaker) SubmitTap(playerID, matchID string, clientTimestampMs int64) error {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	m, ok := mm.matches[matchID]
	if !ok {
		return newError(MatchNotFound)
	}
	p, inRoster := m.Players[playerID]
	if !inRoster || mm.playerToMatch[playerID] != matchID {
		return newError(NotInMatch)
	}
	if m.Status != match.Active {
		return newError(MatchNotActive)
	}

	now := mm.clock.Now()
	clientTs := time.UnixMilli(clientTimestampMs)
	result := tap.Validate(mm.tapLimits, p.LastTapAt, now, clientTs)
	if !result.Accepted {
		mm.log.Info().Str("player_id", playerID).Str("match_id", matchID).Str("reason", string(result.Reason)).Msg("tap rejected")
		return newTapError(Reason(result.Reason))
	}

	p.ValidatedTaps++
	p.LastTapAt = now

	connectionID := mm.playerToConn[playerID]
	mm.emitter.Broadcast(matchID, EventPlayerTapped, PlayerTappedPayload{
		PlayerID: playerID,
		Username: p.DisplayName,
		TapCount: p.ValidatedTaps,
	})
	mm.emitter.Unicast(connectionID, EventTapConfirmed, TapConfirmedPayload{TapCount: p.ValidatedTaps})
	return nil
}

// OnDisconnect removes a connection's player from the queue or their
// match. It is idempotent: an unknown connection id is a silent no-op.
func (mm *Matchmaker) OnDisconnect(connectionID string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	playerID, ok := mm.connToPlayer[connectionID]
	if !ok {
		return
	}
	delete(mm.connToPlayer, connectionID)
	delete(mm.playerToConn, playerID)

	if mm.queue.Remove(playerID) != nil {
		mm.log.Info().Str("player_id", playerID).Msg("queued player disconnected")
		return
	}

	matchID, inMatch := mm.playerToMatch[playerID]
	if !inMatch {
		return
	}
	delete(mm.playerToMatch, playerID)
	m, ok := mm.matches[matchID]
	if !ok {
		return
	}
	m.Remove(playerID)
	mm.log.Info().Str("player_id", playerID).Str("match_id", matchID).Msg("player disconnected from match")
	mm.emitter.Broadcast(matchID, EventPlayerDisconnected, PlayerDisconnectedPayload{PlayerID: playerID})

	if len(m.Players) == 0 {
		mm.endMatchLocked(m)
	}
}

// PlayerStatus is a read-only accessor reporting queue position,
// in-match state, or idle. It takes the lock only to read a
// consistent snapshot.
type PlayerStatus struct {
	InQueue       bool
	QueuePosition int
	InMatch       bool
	MatchID       string
}

func (mm *Matchmaker) PlayerStatus(playerID string) PlayerStatus {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if pos, ok := mm.queue.Position(playerID); ok {
		return PlayerStatus{InQueue: true, QueuePosition: pos}
	}
	if matchID, ok := mm.playerToMatch[playerID]; ok {
		return PlayerStatus{InMatch: true, MatchID: matchID}
	}
	return PlayerStatus{}
}

// createMatchLocked pops roster-sized chunks off the queue and opens a
// match for each. Caller must hold mm.mu.
func (mm *Matchmaker) createMatchLocked() {
	for mm.queue.Len() >= mm.cfg.MatchSize {
		roster := mm.queue.PopFront(mm.cfg.MatchSize)
		if roster == nil {
			return
		}

		matchID := uuid.NewString()
		m := match.New(matchID, mm.cfg.MatchDuration, roster)
		m.Pair()
		mm.matches[matchID] = m

		connIDs := make([]string, 0, len(roster))
		players := make([]PlayerSummary, 0, len(roster))
		for _, p := range roster {
			mm.playerToMatch[p.ID] = matchID
			connIDs = append(connIDs, p.ConnectionID)
			players = append(players, PlayerSummary{ID: p.ID, Username: p.DisplayName})
		}

		mm.emitter.JoinRoom(matchID, connIDs)
		mm.log.Info().Str("match_id", matchID).Int("players", len(roster)).Msg("match created")

		for _, p := range roster {
			mm.emitter.Unicast(p.ConnectionID, EventMatchFound, MatchFoundPayload{MatchID: matchID, Players: players})
		}

		mm.startTimers[matchID] = mm.schedule(mm.cfg.StartDelay, func() {
			delete(mm.startTimers, matchID)
			mm.startMatchLocked(m)
		})
	}
}

// startMatchLocked transitions a match to active. Idempotent; caller
// must hold mm.mu.
func (mm *Matchmaker) startMatchLocked(m *match.Match) {
	now := mm.clock.Now()
	if !m.Start(now) {
		return
	}

	mm.log.Info().Str("match_id", m.ID).Msg("match started")
	mm.emitter.Broadcast(m.ID, EventMatchStarted, MatchStartedPayload{
		MatchID:   m.ID,
		Duration:  mm.cfg.MatchDuration.Milliseconds(),
		StartTime: now.UnixMilli(),
	})

	mm.schedule(mm.cfg.MatchDuration, func() {
		mm.endMatchLocked(m)
	})
}

// endMatchLocked transitions a match to finished, computing results.
// Idempotent; caller must hold mm.mu.
func (mm *Matchmaker) endMatchLocked(m *match.Match) {
	alreadyFinished := m.Status == match.Finished
	now := mm.clock.Now()
	results := m.End(now)

	if alreadyFinished {
		return
	}

	mm.log.Info().Str("match_id", m.ID).Str("winner_id", m.WinnerID).Msg("match ended")

	payloadResults := make([]ResultPayload, 0, len(results))
	pubResults := make([]Result, 0, len(results))
	for _, r := range results {
		payloadResults = append(payloadResults, ResultPayload{ID: r.PlayerID, Username: r.Username, Taps: r.Taps, IsWinner: r.IsWinner})
		pubResults = append(pubResults, Result{PlayerID: r.PlayerID, Username: r.Username, Taps: r.Taps, IsWinner: r.IsWinner})
	}
	mm.emitter.Broadcast(m.ID, EventMatchEnded, MatchEndedPayload{MatchID: m.ID, Results: payloadResults, WinnerID: m.WinnerID})

	if mm.publisher != nil {
		// off the mutex: publishing may block on network I/O
		winnerID, matchID, publisher, results := m.WinnerID, m.ID, mm.publisher, pubResults
		go publisher.PublishMatchEnded(matchID, winnerID, results)
	}

	matchID := m.ID
	mm.schedule(mm.cfg.CleanupDelay, func() {
		mm.cleanupLocked(matchID)
	})
}

// cleanupLocked deletes the match and clears all index entries for its
// roster. Idempotent; caller must hold mm.mu.
func (mm *Matchmaker) cleanupLocked(matchID string) {
	m, ok := mm.matches[matchID]
	if !ok {
		return
	}
	for playerID, p := range m.Players {
		delete(mm.playerToMatch, playerID)
		delete(mm.connToPlayer, p.ConnectionID)
		delete(mm.playerToConn, playerID)
	}
	delete(mm.matches, matchID)
	delete(mm.startTimers, matchID)
	mm.emitter.LeaveRoom(matchID)
	mm.log.Info().Str("match_id", matchID).Msg("match cleaned up")
}
