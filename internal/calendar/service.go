package calendar

import (
	"context"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"
	"github.com/tunerdesk/calsync/internal/oauth"
	"github.com/tunerdesk/calsync/internal/provider"
	"github.com/tunerdesk/calsync/internal/sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Service owns the calendar connection lifecycle: consent, connect,
// disconnect, manual syncs and the read surfaces behind the HTTP API.
type Service interface {
	GetAuthURL(provider domain.CalendarProvider, state string) (string, error)
	// Connect exchanges the authorization code, upserts the (user, provider)
	// connection, registers a push channel and queues the first sync.
	Connect(ctx context.Context, userID string, provider domain.CalendarProvider, code string) (*domain.CalendarConnection, error)
	ListConnections(ctx context.Context, userID string) ([]domain.CalendarConnection, error)
	// Disconnect tears down provider-side state best-effort and always
	// removes the local connection.
	Disconnect(ctx context.Context, userID, connectionID string) error
	SyncNow(ctx context.Context, userID, connectionID string) (*domain.SyncResult, error)
	GetSyncLog(ctx context.Context, userID, connectionID string, limit int) ([]domain.SyncLogEntry, error)
	GetSyncStats(ctx context.Context, userID string) (*domain.SyncStats, error)
	CheckConflicts(ctx context.Context, userID string, start, end time.Time) ([]domain.Conflict, error)
	ToggleSync(ctx context.Context, userID, connectionID string, enabled bool) (*domain.CalendarConnection, error)
}

func NewService(log logger.Logger, oauthProviders map[domain.CalendarProvider]oauth.Provider, adapters *provider.Registry, connectionRepo domain.ConnectionRepo, syncLogRepo domain.SyncLogRepo, syncSvc sync.Service, dispatcher *sync.Dispatcher) Service {
	return &service{
		log:            log.With().Str("module", "calendar").Logger(),
		oauthProviders: oauthProviders,
		adapters:       adapters,
		connectionRepo: connectionRepo,
		syncLogRepo:    syncLogRepo,
		syncSvc:        syncSvc,
		dispatcher:     dispatcher,
	}
}

type service struct {
	log            zerolog.Logger
	oauthProviders map[domain.CalendarProvider]oauth.Provider
	adapters       *provider.Registry
	connectionRepo domain.ConnectionRepo
	syncLogRepo    domain.SyncLogRepo
	syncSvc        sync.Service
	dispatcher     *sync.Dispatcher
}

func (s *service) oauthFor(p domain.CalendarProvider) (oauth.Provider, error) {
	op, ok := s.oauthProviders[p]
	if !ok {
		return nil, errors.Errorf("unsupported calendar provider %q", p)
	}
	return op, nil
}

func (s *service) GetAuthURL(p domain.CalendarProvider, state string) (string, error) {
	op, err := s.oauthFor(p)
	if err != nil {
		return "", err
	}
	return op.AuthorizationURL(state), nil
}

func (s *service) Connect(ctx context.Context, userID string, p domain.CalendarProvider, code string) (*domain.CalendarConnection, error) {
	op, err := s.oauthFor(p)
	if err != nil {
		return nil, err
	}
	adapter, err := s.adapters.For(p)
	if err != nil {
		return nil, err
	}

	tokens, err := op.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	conn, err := s.connectionRepo.FindByUserAndProvider(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		conn = &domain.CalendarConnection{
			ID:       uuid.New().String(),
			UserID:   userID,
			Provider: p,
		}
	}

	conn.AccessToken = tokens.AccessToken
	conn.RefreshToken = tokens.RefreshToken
	conn.ExpiresAt = tokens.ExpiresAt
	conn.SyncEnabled = true

	if err := s.connectionRepo.Store(ctx, conn); err != nil {
		return nil, err
	}

	// push channel setup is best-effort: the renewal sweep and manual syncs
	// still work without one
	if sub, err := adapter.CreateWebhookSubscription(ctx, conn); err != nil {
		s.log.Warn().Err(err).Str("connectionID", conn.ID).Msg("Could not register webhook subscription on connect")
	} else if err := s.connectionRepo.UpdateWebhook(ctx, conn.ID, sub); err != nil {
		s.log.Error().Err(err).Str("connectionID", conn.ID).Msg("Could not persist webhook subscription")
	} else {
		conn.WebhookID = &sub.ID
		if sub.ResourceID != "" {
			resourceID := sub.ResourceID
			conn.WebhookResourceID = &resourceID
		}
		expiration := sub.Expiration
		conn.WebhookExpiration = &expiration
	}

	s.dispatcher.Enqueue(conn.ID)

	s.log.Info().Str("connectionID", conn.ID).Str("provider", string(p)).Msg("Calendar connected")
	return conn, nil
}

func (s *service) ListConnections(ctx context.Context, userID string) ([]domain.CalendarConnection, error) {
	return s.connectionRepo.ListByUser(ctx, userID)
}

func (s *service) Disconnect(ctx context.Context, userID, connectionID string) error {
	conn, err := s.findOwned(ctx, userID, connectionID)
	if err != nil {
		return err
	}

	if adapter, err := s.adapters.For(conn.Provider); err == nil {
		if err := adapter.StopWebhookSubscription(ctx, conn); err != nil {
			s.log.Warn().Err(err).Str("connectionID", conn.ID).Msg("Could not stop webhook subscription on disconnect")
		}
	}
	if op, err := s.oauthFor(conn.Provider); err == nil {
		if err := op.Revoke(ctx, conn.AccessToken); err != nil {
			s.log.Warn().Err(err).Str("connectionID", conn.ID).Msg("Could not revoke token on disconnect")
		}
	}

	// local deletion happens regardless of provider-side failures
	if err := s.connectionRepo.Delete(ctx, conn.ID); err != nil {
		return err
	}

	s.log.Info().Str("connectionID", conn.ID).Str("provider", string(conn.Provider)).Msg("Calendar disconnected")
	return nil
}

func (s *service) SyncNow(ctx context.Context, userID, connectionID string) (*domain.SyncResult, error) {
	conn, err := s.findOwned(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	return s.syncSvc.PerformFullSync(ctx, conn)
}

func (s *service) GetSyncLog(ctx context.Context, userID, connectionID string, limit int) ([]domain.SyncLogEntry, error) {
	conn, err := s.findOwned(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	return s.syncLogRepo.ListByConnection(ctx, conn.ID, limit)
}

func (s *service) GetSyncStats(ctx context.Context, userID string) (*domain.SyncStats, error) {
	connections, err := s.connectionRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &domain.SyncStats{TotalConnections: len(connections)}
	for i := range connections {
		conn := &connections[i]
		if conn.SyncEnabled {
			stats.ActiveConnections++
		}
		switch conn.Provider {
		case domain.CalendarProviderGoogle:
			stats.GoogleConnections++
		case domain.CalendarProviderMicrosoft:
			stats.MicrosoftConnections++
		}
		if conn.LastSyncAt != nil && (stats.LastSyncAt == nil || conn.LastSyncAt.After(*stats.LastSyncAt)) {
			stats.LastSyncAt = conn.LastSyncAt
		}
	}
	return stats, nil
}

func (s *service) CheckConflicts(ctx context.Context, userID string, start, end time.Time) ([]domain.Conflict, error) {
	connections, err := s.connectionRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var conflicts []domain.Conflict
	for i := range connections {
		conn := &connections[i]
		if !conn.SyncEnabled {
			continue
		}
		found, err := s.syncSvc.DetectConflicts(ctx, conn, start, end)
		if err != nil {
			return nil, errors.Wrapf(err, "conflict scan failed for connection %s", conn.ID)
		}
		conflicts = append(conflicts, found...)
	}
	return conflicts, nil
}

func (s *service) ToggleSync(ctx context.Context, userID, connectionID string, enabled bool) (*domain.CalendarConnection, error) {
	conn, err := s.findOwned(ctx, userID, connectionID)
	if err != nil {
		return nil, err
	}
	if err := s.connectionRepo.SetSyncEnabled(ctx, conn.ID, enabled); err != nil {
		return nil, err
	}
	conn.SyncEnabled = enabled
	return conn, nil
}

// findOwned treats a connection owned by another user the same as a missing
// one so ids cannot be probed across users.
func (s *service) findOwned(ctx context.Context, userID, connectionID string) (*domain.CalendarConnection, error) {
	conn, err := s.connectionRepo.FindByID(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if conn == nil || conn.UserID != userID {
		return nil, domain.ErrConnectionNotFound
	}
	return conn, nil
}
