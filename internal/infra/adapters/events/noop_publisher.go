package events

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/adapter"
)

var _ adapter.EventPublisher = (*LogPublisher)(nil)

// LogPublisher writes events to the log instead of a broker. Used when no brokers are configured.
type LogPublisher struct {
	log *zerolog.Logger
}

func NewLogPublisher(logger *zerolog.Logger) *LogPublisher {
	l := logger.With().Str("component", "LogPublisher").Logger()
	return &LogPublisher{log: &l}
}

func (p *LogPublisher) Publish(ctx context.Context, evs ...adapter.EntitlementEvent) error {
	for _, ev := range evs {
		p.log.Info().
			Str("type", string(ev.Type)).
			Str("owner_id", ev.OwnerID).
			Str("comic_id", ev.ComicID).
			Str("plan", ev.Plan).
			Str("payment_id", ev.PaymentID).
			Msg("entitlement event")
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }
