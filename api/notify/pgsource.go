package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	database "github.com/tbeaudouin05/stripe-entitlements/api/database"
)

const (
	listenerMinReconnect = 10 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
)

// PGSource listens on the channel the user_entitlements trigger notifies.
type PGSource struct {
	dsn string
	hub *Hub
}

// NewPGSource returns a Source reading Postgres notifications from dsn.
func NewPGSource(dsn string, hub *Hub) *PGSource {
	return &PGSource{dsn: dsn, hub: hub}
}

func (s *PGSource) Run(ctx context.Context) error {
	listener := pq.NewListener(s.dsn, listenerMinReconnect, listenerMaxReconnect, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			log.Warn().Err(err).Msg("entitlement listener connection lost")
		case pq.ListenerEventReconnected:
			log.Info().Msg("entitlement listener reconnected")
		}
	})
	defer listener.Close()

	if err := listener.Listen(database.ChangeChannel); err != nil {
		return fmt.Errorf("listen %s: %w", database.ChangeChannel, err)
	}
	log.Info().Str("channel", database.ChangeChannel).Msg("listening for entitlement changes")

	ticker := time.NewTicker(listenerPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			if n == nil {
				// Reconnected; anything sent meanwhile is gone.
				s.hub.Resync(ctx)
				continue
			}
			if err := s.hub.Notify(ctx, n.Extra); err != nil {
				log.Warn().Err(err).Str("user_id", n.Extra).Msg("failed to deliver entitlement change")
			}
		case <-ticker.C:
			go func() {
				if err := listener.Ping(); err != nil {
					log.Debug().Err(err).Msg("entitlement listener ping failed")
				}
			}()
		}
	}
}
