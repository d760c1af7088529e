package events

import (
	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"
	"github.com/tunerdesk/calsync/internal/sync"

	"github.com/asaskevich/EventBus"
	"github.com/rs/zerolog"
)

// Subscribers wires the internal event bus topics to their handlers.
type Subscribers struct {
	log zerolog.Logger
	bus EventBus.Bus
}

func NewSubscribers(log logger.Logger, bus EventBus.Bus) *Subscribers {
	s := &Subscribers{
		log: log.With().Str("module", "events").Logger(),
		bus: bus,
	}

	s.Register()
	return s
}

func (s *Subscribers) Register() {
	if err := s.bus.Subscribe(sync.EventSyncCompleted, s.syncCompleted); err != nil {
		s.log.Error().Err(err).Str("topic", sync.EventSyncCompleted).Msg("Failed to subscribe to topic")
	}
	if err := s.bus.Subscribe(sync.EventSyncFailed, s.syncFailed); err != nil {
		s.log.Error().Err(err).Str("topic", sync.EventSyncFailed).Msg("Failed to subscribe to topic")
	}
}

func (s *Subscribers) syncCompleted(result domain.SyncResult) {
	s.log.Debug().
		Str("connectionID", result.ConnectionID).
		Int("pulled", result.EventsPulled).
		Int("pushed", result.EventsPushed).
		Msg("Sync completed event received")
}

func (s *Subscribers) syncFailed(connectionID string, detail string) {
	s.log.Warn().
		Str("connectionID", connectionID).
		Str("detail", detail).
		Msg("Sync failed event received")
}
