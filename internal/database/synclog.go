package database

import (
	"context"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func NewSyncLogRepo(log logger.Logger, db *DB) domain.SyncLogRepo {
	return &SyncLogRepo{
		log: log.With().Str("repo", "synclog").Logger(),
		db:  db,
	}
}

// SyncLogRepo is append-only; there is deliberately no update or delete.
type SyncLogRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *SyncLogRepo) Store(ctx context.Context, entry *domain.SyncLogEntry) error {
	result := r.db.Get().WithContext(ctx).Create(entry)
	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("connectionID", entry.ConnectionID).Msg("Failed to store sync log entry")
		return errors.Wrap(result.Error, "failed to store sync log entry")
	}
	return nil
}

func (r *SyncLogRepo) ListByConnection(ctx context.Context, connectionID string, limit int) ([]domain.SyncLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []domain.SyncLogEntry
	result := r.db.Get().WithContext(ctx).
		Where("connection_id = ?", connectionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("connectionID", connectionID).Msg("Failed to list sync log entries")
		return nil, errors.Wrap(result.Error, "failed to list sync log entries")
	}

	return entries, nil
}
