package database

import (
	"context"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

func NewAppointmentRepo(log logger.Logger, db *DB) domain.AppointmentRepo {
	return &AppointmentRepo{
		log: log.With().Str("repo", "appointment").Logger(),
		db:  db,
	}
}

type AppointmentRepo struct {
	log zerolog.Logger
	db  *DB
}

func (r *AppointmentRepo) FindByExternalEventID(ctx context.Context, connectionID string, externalEventID string) (*domain.Appointment, error) {
	var appointment domain.Appointment
	result := r.db.Get().WithContext(ctx).
		Where("connection_id = ? AND external_event_id = ?", connectionID, externalEventID).
		First(&appointment)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.log.Error().Err(result.Error).Str("externalEventID", externalEventID).Msg("Failed to find appointment by external event id")
		return nil, errors.Wrap(result.Error, "failed to find appointment by external event id")
	}

	return &appointment, nil
}

func (r *AppointmentRepo) ListInRange(ctx context.Context, userID string, from, to time.Time) ([]domain.Appointment, error) {
	var appointments []domain.Appointment
	result := r.db.Get().WithContext(ctx).
		Where("user_id = ? AND start_time < ? AND end_time > ?", userID, to, from).
		Order("start_time ASC").
		Find(&appointments)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("userID", userID).Msg("Failed to list appointments in range")
		return nil, errors.Wrap(result.Error, "failed to list appointments in range")
	}

	return appointments, nil
}

func (r *AppointmentRepo) ListModifiedSince(ctx context.Context, userID string, since time.Time) ([]domain.Appointment, error) {
	var appointments []domain.Appointment
	result := r.db.Get().WithContext(ctx).
		Where("user_id = ? AND updated_at > ?", userID, since).
		Order("updated_at ASC").
		Find(&appointments)

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("userID", userID).Msg("Failed to list modified appointments")
		return nil, errors.Wrap(result.Error, "failed to list modified appointments")
	}

	return appointments, nil
}

func (r *AppointmentRepo) Store(ctx context.Context, appointment *domain.Appointment) error {
	result := r.db.Get().WithContext(ctx).Create(appointment)
	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("appointmentID", appointment.ID).Msg("Failed to store appointment")
		return errors.Wrap(result.Error, "failed to store appointment")
	}
	return nil
}

func (r *AppointmentRepo) Update(ctx context.Context, appointment *domain.Appointment) error {
	result := r.db.Get().WithContext(ctx).Save(appointment)
	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("appointmentID", appointment.ID).Msg("Failed to update appointment")
		return errors.Wrap(result.Error, "failed to update appointment")
	}
	return nil
}

func (r *AppointmentRepo) Delete(ctx context.Context, id string) error {
	result := r.db.Get().WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.Appointment{})

	if result.Error != nil {
		r.log.Error().Err(result.Error).Str("appointmentID", id).Msg("Failed to delete appointment")
		return errors.Wrap(result.Error, "failed to delete appointment")
	}
	return nil
}
