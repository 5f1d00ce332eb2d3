// Command server runs the tap-race matchmaker process: one Event
// Gateway serving websocket connections over one in-memory Matchmaker,
// a single process with no cross-process scale-out.
package main

import (
	"net/http"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/taprace/matchmaker/internal/config"
	"github.com/taprace/matchmaker/internal/gateway"
	"github.com/taprace/matchmaker/internal/identity"
	"github.com/taprace/matchmaker/internal/matchmaker"
	"github.com/taprace/matchmaker/internal/outbox"
	"github.com/taprace/matchmaker/pkg/ws"
)

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	cfg := config.Load()

	gw := ws.NewGateway()
	emitter := gateway.NewEmitter(gw)

	redisClient := outbox.NewRedisClient(cfg.RedisAddr, "")
	publisher := outbox.NewPublisher(redisClient, cfg.RedisChannel)

	mm := matchmaker.New(cfg.Matchmaker, emitter,
		matchmaker.WithResultPublisher(publisher),
		matchmaker.WithLogger(log.Logger),
	)

	verifier := identity.NewVerifier(cfg.JWTSecret)
	handler := gateway.NewHandler(gw, mm, verifier)

	http.HandleFunc("/ws", handler.ServeWS)

	log.Info().Str("addr", cfg.ListenAddr).Msg("matchmaker listening")
	if err := http.ListenAndServe(cfg.ListenAddr, nil); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
