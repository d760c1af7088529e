package database

import (
	"context"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func NewConnectionRepo(log logger.Logger, db *DB) domain.ConnectionRepo {
	return &ConnectionRepo{
		log: log.With().Str("repo", "connection").Logger(),
		db:  db,
	}
}

type ConnectionRepo struct {
	log zerolog.Logger
	db  *DB
}

// Store upserts on the primary key so a re-connect replaces the stored
// credentials instead of failing on the (user, provider) unique index.
func (r *ConnectionRepo) Store(ctx context.Context, conn *domain.CalendarConnection) error {
	result := r.db.Get().WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(conn)
	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("userID", conn.UserID).Str("provider", string(conn.Provider)).Msg("Failed to store connection")
		return errors.Wrap(result.Error, "failed to store connection")
	}
	return nil
}

func (r *ConnectionRepo) FindByID(ctx context.Context, id string) (*domain.CalendarConnection, error) {
	var conn domain.CalendarConnection
	result := r.db.Get().WithContext(ctx).
		Where("id = ?", id).
		First(&conn)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Error().Err(result.Error).Str("connectionID", id).Msg("Failed to find connection by id")
		return nil, errors.Wrap(result.Error, "failed to find connection by id")
	}

	return &conn, nil
}

func (r *ConnectionRepo) FindByUserAndProvider(ctx context.Context, userID string, provider domain.CalendarProvider) (*domain.CalendarConnection, error) {
	var conn domain.CalendarConnection
	result := r.db.Get().WithContext(ctx).
		Where("user_id = ? AND provider = ?", userID, provider).
		First(&conn)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Error().Err(result.Error).Str("userID", userID).Str("provider", string(provider)).Msg("Failed to find connection by user and provider")
		return nil, errors.Wrap(result.Error, "failed to find connection by user and provider")
	}

	return &conn, nil
}

// FindByWebhookID resolves a push notification channel directly to its
// connection. Indexed on webhook_id, no user scan involved.
func (r *ConnectionRepo) FindByWebhookID(ctx context.Context, webhookID string) (*domain.CalendarConnection, error) {
	var conn domain.CalendarConnection
	result := r.db.Get().WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		First(&conn)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Error().Err(result.Error).Str("webhookID", webhookID).Msg("Failed to find connection by webhook id")
		return nil, errors.Wrap(result.Error, "failed to find connection by webhook id")
	}

	return &conn, nil
}

func (r *ConnectionRepo) ListByUser(ctx context.Context, userID string) ([]domain.CalendarConnection, error) {
	var conns []domain.CalendarConnection
	result := r.db.Get().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&conns)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("userID", userID).Msg("Failed to list connections")
		return nil, errors.Wrap(result.Error, "failed to list connections")
	}

	return conns, nil
}

func (r *ConnectionRepo) FindWebhooksExpiringBefore(ctx context.Context, cutoff time.Time) ([]domain.CalendarConnection, error) {
	var conns []domain.CalendarConnection
	result := r.db.Get().WithContext(ctx).
		Where("webhook_expiration IS NOT NULL AND webhook_expiration < ? AND sync_enabled = ?", cutoff, true).
		Find(&conns)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Time("cutoff", cutoff).Msg("Failed to find expiring webhooks")
		return nil, errors.Wrap(result.Error, "failed to find expiring webhooks")
	}

	return conns, nil
}

// UpdateTokens replaces the credential fields only. Reserved for the oauth
// adapters; no other field may be touched here.
func (r *ConnectionRepo) UpdateTokens(ctx context.Context, id string, accessToken, refreshToken string, expiresAt time.Time) error {
	result := r.db.Get().WithContext(ctx).
		Model(&domain.CalendarConnection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
			"updated_at":    time.Now(),
		})

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("connectionID", id).Msg("Failed to update connection tokens")
		return errors.Wrap(result.Error, "failed to update connection tokens")
	}
	if result.RowsAffected == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

func (r *ConnectionRepo) UpdateWebhook(ctx context.Context, id string, sub *domain.WebhookSubscription) error {
	values := map[string]interface{}{
		"webhook_id":          nil,
		"webhook_resource_id": nil,
		"webhook_expiration":  nil,
		"updated_at":          time.Now(),
	}
	if sub != nil {
		values["webhook_id"] = sub.ID
		if sub.ResourceID != "" {
			values["webhook_resource_id"] = sub.ResourceID
		}
		values["webhook_expiration"] = sub.Expiration
	}

	result := r.db.Get().WithContext(ctx).
		Model(&domain.CalendarConnection{}).
		Where("id = ?", id).
		Updates(values)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("connectionID", id).Msg("Failed to update connection webhook")
		return errors.Wrap(result.Error, "failed to update connection webhook")
	}
	if result.RowsAffected == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

// UpdateCursor advances the provider cursor and lastSyncAt. Called by the
// sync engine only, and only after a fully successful pass.
func (r *ConnectionRepo) UpdateCursor(ctx context.Context, id string, cursor string, syncedAt time.Time) error {
	conn, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if conn == nil {
		return domain.ErrConnectionNotFound
	}

	updates := map[string]interface{}{
		"last_sync_at": syncedAt,
		"updated_at":   time.Now(),
	}
	switch conn.Provider {
	case domain.CalendarProviderGoogle:
		updates["last_sync_token"] = cursor
	case domain.CalendarProviderMicrosoft:
		updates["last_delta_link"] = cursor
	}

	result := r.db.Get().WithContext(ctx).
		Model(&domain.CalendarConnection{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("connectionID", id).Msg("Failed to update sync cursor")
		return errors.Wrap(result.Error, "failed to update sync cursor")
	}
	return nil
}

func (r *ConnectionRepo) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	result := r.db.Get().WithContext(ctx).
		Model(&domain.CalendarConnection{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"sync_enabled": enabled,
			"updated_at":   time.Now(),
		})

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("connectionID", id).Msg("Failed to toggle sync")
		return errors.Wrap(result.Error, "failed to toggle sync")
	}
	if result.RowsAffected == 0 {
		return domain.ErrConnectionNotFound
	}
	return nil
}

func (r *ConnectionRepo) Delete(ctx context.Context, id string) error {
	result := r.db.Get().WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.CalendarConnection{})

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("connectionID", id).Msg("Failed to delete connection")
		return errors.Wrap(result.Error, "failed to delete connection")
	}
	return nil
}
