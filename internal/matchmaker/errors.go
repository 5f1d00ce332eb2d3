package matchmaker

// Kind is a closed set of error kinds the Event Gateway maps to a wire
// `error` event without string-matching.
type Kind string

const (
	AlreadyQueued  Kind = "AlreadyQueued"
	AlreadyInMatch Kind = "AlreadyInMatch"
	NotQueued      Kind = "NotQueued"
	MatchNotFound  Kind = "MatchNotFound"
	NotInMatch     Kind = "NotInMatch"
	MatchNotActive Kind = "MatchNotActive"
	InvalidTap     Kind = "InvalidTap"
	BadPayload     Kind = "BadPayload"
)

// Reason sub-kinds InvalidTap; see internal/tap.RejectReason.
type Reason string

const (
	ClockSkew   Reason = "ClockSkew"
	RateLimited Reason = "RateLimited"
)

// Error is the error type every Matchmaker operation returns on
// failure. It never carries ambient context beyond what the wire
// `error` event needs.
type Error struct {
	Kind   Kind
	Reason Reason // only set when Kind == InvalidTap
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return string(e.Kind) + ": " + string(e.Reason)
	}
	return string(e.Kind)
}

func newError(kind Kind) *Error {
	return &Error{Kind: kind}
}

func newTapError(reason Reason) *Error {
	return &Error{Kind: InvalidTap, Reason: reason}
}
