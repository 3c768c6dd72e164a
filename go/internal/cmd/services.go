package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/mcdev12/taprounds/go/internal/auth"
	"github.com/mcdev12/taprounds/go/internal/config"
	"github.com/mcdev12/taprounds/go/internal/events"
	"github.com/mcdev12/taprounds/go/internal/gateway"
	"github.com/mcdev12/taprounds/go/internal/rounds"
)

type Services struct {
	Auth    *auth.Authenticator
	Rounds  *rounds.Service
	Gateway *gateway.Service
	Sweeper *rounds.Sweeper
}

// setupServices wires Repository → App → Service. With js set, events go through JetStream
// and every gateway instance consumes them; otherwise the app feeds the local gateway directly.
func setupServices(ctx context.Context, cfg config.Config, clock clockwork.Clock, repo rounds.RoundsRepository, js jetstream.JetStream) (*Services, error) {
	authn := auth.NewAuthenticator(cfg.AuthSecret, cfg.AuthCookieName, clock)

	// The gateway needs round snapshots from the service built below.
	var roundsService *rounds.Service
	snapshots := gateway.SnapshotFunc(func(ctx context.Context, roundID uuid.UUID) (any, error) {
		return roundsService.RoundSnapshot(ctx, roundID)
	})
	identify := func(r *http.Request) string {
		if user, err := authn.Resolve(r); err == nil && user != nil {
			return user.ID.String()
		}
		return ""
	}

	gatewayCfg := gateway.DefaultConfig()
	gatewayCfg.JetStreamConfig.URL = cfg.NatsURL
	roundsGateway := gateway.NewService(gatewayCfg, js, snapshots, identify)

	var publisher events.Publisher = roundsGateway.Publisher()
	if js != nil {
		jsPublisher, err := events.NewJetStreamPublisher(ctx, js, gatewayCfg.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		publisher = jsPublisher
	}

	roundsApp := rounds.NewApp(repo, clock, publisher, rounds.Settings{
		CooldownDuration: cfg.CooldownDuration(),
		RoundDuration:    cfg.RoundDuration(),
	})
	roundsService = rounds.NewService(roundsApp)

	return &Services{
		Auth:    authn,
		Rounds:  roundsService,
		Gateway: roundsGateway,
		Sweeper: rounds.NewSweeper(repo, clock, publisher, cfg.PollInterval()),
	}, nil
}
