package matchmaker

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/taprace/matchmaker/internal/match"
)

// recordedEvent captures one Emitter call for assertions.
type recordedEvent struct {
	target  string // connection id for unicast, match id for broadcast
	kind    string // "unicast" | "broadcast"
	event   string
	payload any
}

// fakeEmitter is a recording Emitter; it never touches a socket.
type fakeEmitter struct {
	mu     sync.Mutex
	events []recordedEvent
	rooms  map[string][]string
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{rooms: make(map[string][]string)}
}

func (f *fakeEmitter) Unicast(connectionID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{target: connectionID, kind: "unicast", event: event, payload: payload})
}

func (f *fakeEmitter) Broadcast(matchID, event string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{target: matchID, kind: "broadcast", event: event, payload: payload})
}

func (f *fakeEmitter) JoinRoom(matchID string, connectionIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rooms[matchID] = append([]string{}, connectionIDs...)
}

func (f *fakeEmitter) LeaveRoom(matchID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, matchID)
}

func (f *fakeEmitter) eventsFor(connOrMatch, event string) []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedEvent
	for _, e := range f.events {
		if e.target == connOrMatch && e.event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeEmitter) snapshot() []recordedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedEvent{}, f.events...)
}

func testConfig() Config {
	return Config{
		MatchSize:          2,
		MatchDuration:      30 * time.Second,
		StartDelay:         2 * time.Second,
		CleanupDelay:       5 * time.Second,
		MaxTapsPerSecond:   10,
		TapClockSkewWindow: 100 * time.Millisecond,
	}
}

// newTestMatchmaker returns a Matchmaker on a FakeClock along with the
// clock and emitter so the test can advance time and assert events.
func newTestMatchmaker(t *testing.T) (*Matchmaker, *fakeEmitter, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	emitter := newFakeEmitter()
	mm := New(testConfig(), emitter, WithClock(clock))
	return mm, emitter, clock
}

// advanceAndSettle advances the fake clock and gives scheduled-task
// goroutines a moment to acquire the matchmaker's lock and run. Tests
// never depend on wall-clock timing beyond this bounded settle step.
func advanceAndSettle(clock *clockwork.FakeClock, d time.Duration) {
	clock.Advance(d)
	time.Sleep(20 * time.Millisecond)
}

func TestJoinQueue_PairsAtMatchSize(t *testing.T) {
	mm, emitter, _ := newTestMatchmaker(t)

	if err := mm.JoinQueue("a", "Alice", "conn-a"); err != nil {
		t.Fatalf("JoinQueue(a) = %v", err)
	}
	joinedA := emitter.eventsFor("conn-a", EventQueueJoined)
	if len(joinedA) != 1 || joinedA[0].payload.(QueueJoinedPayload).Position != 1 {
		t.Fatalf("expected queue_joined{position:1} for a, got %+v", joinedA)
	}

	if err := mm.JoinQueue("b", "Bob", "conn-b"); err != nil {
		t.Fatalf("JoinQueue(b) = %v", err)
	}
	joinedB := emitter.eventsFor("conn-b", EventQueueJoined)
	if len(joinedB) != 1 || joinedB[0].payload.(QueueJoinedPayload).Position != 2 {
		t.Fatalf("expected queue_joined{position:2} for b, got %+v", joinedB)
	}

	foundA := emitter.eventsFor("conn-a", EventMatchFound)
	foundB := emitter.eventsFor("conn-b", EventMatchFound)
	if len(foundA) != 1 || len(foundB) != 1 {
		t.Fatalf("expected match_found unicast to both players, got a=%+v b=%+v", foundA, foundB)
	}
	payloadA := foundA[0].payload.(MatchFoundPayload)
	if len(payloadA.Players) != 2 {
		t.Fatalf("expected 2 players in match_found roster, got %+v", payloadA.Players)
	}

	status := mm.PlayerStatus("a")
	if !status.InMatch {
		t.Fatalf("expected a to be in a match, got %+v", status)
	}
}

func TestJoinQueue_RejectsDuplicateAndInMatch(t *testing.T) {
	mm, _, _ := newTestMatchmaker(t)

	mm.JoinQueue("a", "Alice", "conn-a")
	if err := mm.JoinQueue("a", "Alice", "conn-a"); err == nil {
		t.Fatal("expected AlreadyQueued error")
	} else if merr, ok := err.(*Error); !ok || merr.Kind != AlreadyQueued {
		t.Fatalf("expected AlreadyQueued, got %v", err)
	}

	mm.JoinQueue("b", "Bob", "conn-b") // pairs a+b into a match
	if err := mm.JoinQueue("a", "Alice", "conn-a"); err == nil {
		t.Fatal("expected AlreadyInMatch error")
	} else if merr, ok := err.(*Error); !ok || merr.Kind != AlreadyInMatch {
		t.Fatalf("expected AlreadyInMatch, got %v", err)
	}
}

func TestLeaveQueue_UnknownPlayerErrors(t *testing.T) {
	mm, _, _ := newTestMatchmaker(t)
	if err := mm.LeaveQueue("ghost"); err == nil {
		t.Fatal("expected NotQueued error")
	}
}

func TestLeaveQueue_RoundTripRestoresState(t *testing.T) {
	mm, _, _ := newTestMatchmaker(t)

	mm.JoinQueue("a", "Alice", "conn-a")
	if err := mm.LeaveQueue("a"); err != nil {
		t.Fatalf("LeaveQueue(a) = %v", err)
	}
	if mm.queue.Contains("a") {
		t.Fatal("expected a to no longer be queued")
	}
	if _, ok := mm.playerToConn["a"]; ok {
		t.Fatal("expected playerToConn cleared for a")
	}
}

func TestScenario_HappyMatch(t *testing.T) {
	mm, emitter, clock := newTestMatchmaker(t)

	mm.JoinQueue("a", "Alice", "conn-a")
	mm.JoinQueue("b", "Bob", "conn-b")

	advanceAndSettle(clock, 2*time.Second)

	// Find the created match id from a match_found payload.
	foundA := emitter.eventsFor("conn-a", EventMatchFound)
	if len(foundA) != 1 {
		t.Fatalf("expected one match_found for a, got %d", len(foundA))
	}
	matchID := foundA[0].payload.(MatchFoundPayload).MatchID

	startedEvents := emitter.eventsFor(matchID, EventMatchStarted)
	if len(startedEvents) != 1 {
		t.Fatalf("expected match_started broadcast, got %+v", startedEvents)
	}

	submitTap := func(playerID, matchID string, atMs int64) error {
		return mm.SubmitTap(playerID, matchID, atMs)
	}

	base := clock.Now()
	advanceTo := func(target time.Duration) {
		clock.Advance(target - clock.Now().Sub(base))
	}

	advanceTo(100 * time.Millisecond)
	if err := submitTap("a", matchID, clock.Now().UnixMilli()); err != nil {
		t.Fatalf("a tap @100ms: %v", err)
	}
	advanceTo(150 * time.Millisecond)
	if err := submitTap("b", matchID, clock.Now().UnixMilli()); err != nil {
		t.Fatalf("b tap @150ms: %v", err)
	}
	advanceTo(210 * time.Millisecond)
	if err := submitTap("a", matchID, clock.Now().UnixMilli()); err != nil {
		t.Fatalf("a tap @210ms: %v", err)
	}
	advanceTo(260 * time.Millisecond)
	if err := submitTap("b", matchID, clock.Now().UnixMilli()); err != nil {
		t.Fatalf("b tap @260ms: %v", err)
	}
	advanceTo(330 * time.Millisecond)
	if err := submitTap("a", matchID, clock.Now().UnixMilli()); err != nil {
		t.Fatalf("a tap @330ms: %v", err)
	}

	remaining := 30*time.Second - clock.Now().Sub(base)
	advanceAndSettle(clock, remaining)

	ended := emitter.eventsFor(matchID, EventMatchEnded)
	if len(ended) != 1 {
		t.Fatalf("expected exactly one match_ended, got %d", len(ended))
	}
	payload := ended[0].payload.(MatchEndedPayload)
	if payload.WinnerID != "a" {
		t.Fatalf("winner = %s, want a", payload.WinnerID)
	}
	if payload.Results[0].ID != "a" || payload.Results[0].Taps != 3 {
		t.Fatalf("unexpected top result: %+v", payload.Results[0])
	}
	if payload.Results[1].ID != "b" || payload.Results[1].Taps != 2 {
		t.Fatalf("unexpected second result: %+v", payload.Results[1])
	}
}

func TestScenario_TapRateLimit(t *testing.T) {
	mm, emitter, clock := newTestMatchmaker(t)
	mm.JoinQueue("a", "Alice", "conn-a")
	mm.JoinQueue("b", "Bob", "conn-b")
	advanceAndSettle(clock, 2*time.Second)

	matchID := emitter.eventsFor("conn-a", EventMatchFound)[0].payload.(MatchFoundPayload).MatchID
	base := clock.Now()

	submit := func(ms int64) error {
		clock.Advance(time.Duration(ms)*time.Millisecond - clock.Now().Sub(base))
		return mm.SubmitTap("a", matchID, clock.Now().UnixMilli())
	}

	if err := submit(0); err != nil {
		t.Fatalf("tap@0 should be accepted: %v", err)
	}
	if err := submit(50); err == nil {
		t.Fatal("tap@50 should be rejected as RateLimited")
	} else if merr := err.(*Error); merr.Kind != InvalidTap || merr.Reason != RateLimited {
		t.Fatalf("tap@50 error = %+v, want InvalidTap/RateLimited", merr)
	}
	if err := submit(150); err != nil {
		t.Fatalf("tap@150 should be accepted: %v", err)
	}
	if err := submit(155); err == nil {
		t.Fatal("tap@155 should be rejected as RateLimited")
	}

	tapped := emitter.eventsFor(matchID, EventPlayerTapped)
	if len(tapped) != 2 {
		t.Fatalf("expected 2 player_tapped broadcasts, got %d", len(tapped))
	}
	last := tapped[len(tapped)-1].payload.(PlayerTappedPayload)
	if last.TapCount != 2 {
		t.Fatalf("final tap count = %d, want 2", last.TapCount)
	}
}

func TestScenario_TapClockSkew(t *testing.T) {
	mm, _, clock := newTestMatchmaker(t)
	mm.JoinQueue("a", "Alice", "conn-a")
	mm.JoinQueue("b", "Bob", "conn-b")
	advanceAndSettle(clock, 2*time.Second)

	matchID := mm.playerToMatch["a"]
	stale := clock.Now().Add(-500 * time.Millisecond).UnixMilli()

	err := mm.SubmitTap("a", matchID, stale)
	if err == nil {
		t.Fatal("expected ClockSkew rejection")
	}
	merr := err.(*Error)
	if merr.Kind != InvalidTap || merr.Reason != ClockSkew {
		t.Fatalf("error = %+v, want InvalidTap/ClockSkew", merr)
	}
	if !mm.matches[matchID].Players["a"].LastTapAt.IsZero() {
		t.Fatalf("LastTapAt should remain unset after rejection")
	}
}

func TestScenario_AllReadyEarlyStart(t *testing.T) {
	mm, emitter, clock := newTestMatchmaker(t)
	mm.JoinQueue("a", "Alice", "conn-a")
	mm.JoinQueue("b", "Bob", "conn-b")

	matchID := emitter.eventsFor("conn-a", EventMatchFound)[0].payload.(MatchFoundPayload).MatchID

	if err := mm.MarkReady("a", matchID); err != nil {
		t.Fatalf("MarkReady(a) = %v", err)
	}
	if err := mm.MarkReady("b", matchID); err != nil {
		t.Fatalf("MarkReady(b) = %v", err)
	}

	started := emitter.eventsFor(matchID, EventMatchStarted)
	if len(started) != 1 {
		t.Fatalf("expected immediate match_started, got %d", len(started))
	}

	// The original 2s timer must not fire a second match_started.
	advanceAndSettle(clock, 2*time.Second)
	started = emitter.eventsFor(matchID, EventMatchStarted)
	if len(started) != 1 {
		t.Fatalf("expected still exactly one match_started after original timer elapses, got %d", len(started))
	}
}

func TestScenario_MidMatchDisconnect(t *testing.T) {
	mm, emitter, clock := newTestMatchmaker(t)
	mm.JoinQueue("a", "Alice", "conn-a")
	mm.JoinQueue("b", "Bob", "conn-b")
	advanceAndSettle(clock, 2*time.Second)

	matchID := mm.playerToMatch["a"]

	mm.OnDisconnect("conn-b")

	disconnected := emitter.eventsFor(matchID, EventPlayerDisconnected)
	if len(disconnected) != 1 || disconnected[0].payload.(PlayerDisconnectedPayload).PlayerID != "b" {
		t.Fatalf("expected player_disconnected{b}, got %+v", disconnected)
	}
	if mm.matches[matchID].Status != match.Active {
		t.Fatalf("match should remain active with a surviving, got %s", mm.matches[matchID].Status)
	}

	mm.OnDisconnect("conn-a")

	ended := emitter.eventsFor(matchID, EventMatchEnded)
	if len(ended) != 1 {
		t.Fatalf("expected match_ended once roster is empty, got %d", len(ended))
	}
	payload := ended[0].payload.(MatchEndedPayload)
	if payload.WinnerID != "" {
		t.Fatalf("winner = %s, want none (no surviving recipients)", payload.WinnerID)
	}
}

func TestScenario_TieBreak(t *testing.T) {
	mm, emitter, clock := newTestMatchmaker(t)
	mm.JoinQueue("a", "Alice", "conn-a") // a joins first
	mm.JoinQueue("b", "Bob", "conn-b")
	advanceAndSettle(clock, 2*time.Second)

	matchID := mm.playerToMatch["a"]
	m := mm.matches[matchID]
	m.Players["a"].ValidatedTaps = 7
	m.Players["b"].ValidatedTaps = 7

	advanceAndSettle(clock, 30*time.Second)

	ended := emitter.eventsFor(matchID, EventMatchEnded)
	payload := ended[0].payload.(MatchEndedPayload)
	if payload.WinnerID != "a" {
		t.Fatalf("winner = %s, want a", payload.WinnerID)
	}
	if payload.Results[0].ID != "a" {
		t.Fatalf("results[0] = %s, want a listed first", payload.Results[0].ID)
	}
}

func TestOnDisconnect_UnknownConnectionIsNoop(t *testing.T) {
	mm, emitter, _ := newTestMatchmaker(t)
	mm.OnDisconnect("ghost-conn")
	if len(emitter.snapshot()) != 0 {
		t.Fatalf("expected no events from disconnecting an unknown connection")
	}
}

func TestSubmitTap_UnknownMatchErrors(t *testing.T) {
	mm, _, _ := newTestMatchmaker(t)
	mm.JoinQueue("a", "Alice", "conn-a")

	if err := mm.SubmitTap("a", "no-such-match", 0); err == nil {
		t.Fatal("expected MatchNotFound")
	} else if merr := err.(*Error); merr.Kind != MatchNotFound {
		t.Fatalf("got %v, want MatchNotFound", merr)
	}
}

func TestSubmitTap_RejectedOutsideActiveStatus(t *testing.T) {
	mm, emitter, _ := newTestMatchmaker(t)
	mm.JoinQueue("a", "Alice", "conn-a")
	mm.JoinQueue("b", "Bob", "conn-b")

	matchID := emitter.eventsFor("conn-a", EventMatchFound)[0].payload.(MatchFoundPayload).MatchID

	// match is still "starting", the deferred start has not fired yet
	if err := mm.SubmitTap("a", matchID, 0); err == nil {
		t.Fatal("expected MatchNotActive")
	} else if merr := err.(*Error); merr.Kind != MatchNotActive {
		t.Fatalf("got %v, want MatchNotActive", merr)
	}
}
