// Package outbox publishes match outcomes over a Redis pub/sub
// channel for external collaborators (a wallet service, an analytics
// consumer) to pick up. Fire-and-forget, best-effort. A no-op Publisher
// if no Redis address is configured.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/taprace/matchmaker/internal/matchmaker"
)

// resultPayload is the wire shape published on the channel.
type resultPayload struct {
	PlayerID string `json:"playerId"`
	Username string `json:"username"`
	Taps     int    `json:"taps"`
	IsWinner bool   `json:"isWinner"`
}

type matchEndedMessage struct {
	Type     string          `json:"type"`
	MatchID  string          `json:"matchId"`
	WinnerID string          `json:"winnerId"`
	Results  []resultPayload `json:"results"`
}

// Publisher satisfies matchmaker.ResultPublisher over a Redis pub/sub
// channel.
type Publisher struct {
	client  *redis.Client
	channel string
}

// NewPublisher wraps an existing Redis client (e.g. from
// NewRedisClient) bound to the given channel.
func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

// NewRedisClient connects eagerly and pings once at startup. A failed
// ping does not panic, it only silences the outbox.
func NewRedisClient(addr, password string) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("match result outbox: redis unreachable, publishing disabled")
		return nil
	}
	log.Info().Str("addr", addr).Msg("match result outbox: connected to redis")
	return client
}

// PublishMatchEnded implements matchmaker.ResultPublisher. Blocks for
// up to its 2s publish timeout; callers must invoke it off any lock
// they hold.
func (p *Publisher) PublishMatchEnded(matchID, winnerID string, results []matchmaker.Result) {
	if p == nil || p.client == nil {
		return
	}

	payload := matchEndedMessage{
		Type:     "match_ended",
		MatchID:  matchID,
		WinnerID: winnerID,
		Results:  make([]resultPayload, 0, len(results)),
	}
	for _, r := range results {
		payload.Results = append(payload.Results, resultPayload{
			PlayerID: r.PlayerID,
			Username: r.Username,
			Taps:     r.Taps,
			IsWinner: r.IsWinner,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("match_id", matchID).Msg("failed to marshal match_ended outbox payload")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, body).Err(); err != nil {
		log.Warn().Err(err).Str("match_id", matchID).Msg("failed to publish match_ended to outbox channel")
	}
}
