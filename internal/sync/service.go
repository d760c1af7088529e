package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"
	"github.com/tunerdesk/calsync/internal/provider"

	"github.com/asaskevich/EventBus"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bus topics for sync outcomes.
const (
	EventSyncCompleted = "sync:completed"
	EventSyncFailed    = "sync:failed"
)

type Service interface {
	// PerformFullSync runs one reconciliation pass for the connection: pull
	// remote changes, apply them locally, push local changes out. The sync
	// cursor and LastSyncAt only advance when the whole pass succeeds.
	PerformFullSync(ctx context.Context, conn *domain.CalendarConnection) (*domain.SyncResult, error)
	// DetectConflicts scans for remote events overlapping local appointments
	// in [start, end) without writing anything anywhere.
	DetectConflicts(ctx context.Context, conn *domain.CalendarConnection, start, end time.Time) ([]domain.Conflict, error)
}

func NewService(log logger.Logger, bus EventBus.Bus, adapters *provider.Registry, connectionRepo domain.ConnectionRepo, appointmentRepo domain.AppointmentRepo, syncLogRepo domain.SyncLogRepo) Service {
	return &service{
		log:             log.With().Str("module", "sync").Logger(),
		bus:             bus,
		adapters:        adapters,
		connectionRepo:  connectionRepo,
		appointmentRepo: appointmentRepo,
		syncLogRepo:     syncLogRepo,
	}
}

type service struct {
	log             zerolog.Logger
	bus             EventBus.Bus
	adapters        *provider.Registry
	connectionRepo  domain.ConnectionRepo
	appointmentRepo domain.AppointmentRepo
	syncLogRepo     domain.SyncLogRepo
}

func (s *service) PerformFullSync(ctx context.Context, conn *domain.CalendarConnection) (*domain.SyncResult, error) {
	s.log.Debug().Str("connectionID", conn.ID).Str("provider", string(conn.Provider)).Msg("Starting sync pass")

	adapter, err := s.adapters.For(conn.Provider)
	if err != nil {
		return nil, s.fail(ctx, conn, nil, err)
	}

	changes, err := adapter.ListChangedEvents(ctx, conn)
	if err != nil {
		return nil, s.fail(ctx, conn, nil, err)
	}

	result := &domain.SyncResult{
		ConnectionID: conn.ID,
		EventsPulled: len(changes.Events),
	}

	// appointments written by this pass must not be pushed straight back out
	touched := map[string]struct{}{}

	for _, event := range changes.Events {
		if err := s.applyRemoteEvent(ctx, conn, event, result, touched); err != nil {
			return nil, s.fail(ctx, conn, result, err)
		}
	}

	if err := s.pushLocalChanges(ctx, adapter, conn, result, touched); err != nil {
		return nil, s.fail(ctx, conn, result, err)
	}

	now := time.Now()
	cursor := changes.NextCursor
	if cursor == "" {
		cursor = conn.Cursor()
	}
	if err := s.connectionRepo.UpdateCursor(ctx, conn.ID, cursor, now); err != nil {
		return nil, s.fail(ctx, conn, result, err)
	}
	conn.SetCursor(cursor)
	conn.LastSyncAt = &now

	s.record(ctx, conn.ID, domain.SyncOutcomeSuccess, fmt.Sprintf("synced %d remote, pushed %d local", result.EventsPulled, result.EventsPushed), result)
	s.bus.Publish(EventSyncCompleted, *result)

	s.log.Info().
		Str("connectionID", conn.ID).
		Int("pulled", result.EventsPulled).
		Int("pushed", result.EventsPushed).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("deleted", result.Deleted).
		Msg("Sync pass completed")

	return result, nil
}

func (s *service) applyRemoteEvent(ctx context.Context, conn *domain.CalendarConnection, event domain.ExternalEvent, result *domain.SyncResult, touched map[string]struct{}) error {
	local, err := s.appointmentRepo.FindByExternalEventID(ctx, conn.ID, event.ExternalID)
	if err != nil {
		return err
	}

	if event.Status == domain.EventStatusCancelled {
		if local == nil {
			return nil
		}
		if err := s.appointmentRepo.Delete(ctx, local.ID); err != nil {
			return err
		}
		result.Deleted++
		return nil
	}

	if event.Start.IsZero() || event.End.IsZero() {
		return nil
	}

	if local == nil {
		externalID := event.ExternalID
		connectionID := conn.ID
		appointment := &domain.Appointment{
			ID:              uuid.New().String(),
			UserID:          conn.UserID,
			Title:           event.Title,
			Notes:           event.Description,
			Location:        event.Location,
			StartTime:       event.Start,
			EndTime:         event.End,
			ExternalEventID: &externalID,
			ConnectionID:    &connectionID,
		}
		if err := s.appointmentRepo.Store(ctx, appointment); err != nil {
			return err
		}
		touched[appointment.ID] = struct{}{}
		result.Created++
		return nil
	}

	// last-modified-wins: only a remote copy newer than the local record
	// overwrites it
	if !event.LastModified.After(local.UpdatedAt) {
		touched[local.ID] = struct{}{}
		return nil
	}

	local.Title = event.Title
	local.Notes = event.Description
	local.Location = event.Location
	local.StartTime = event.Start
	local.EndTime = event.End
	local.AuditNote = fmt.Sprintf("overwritten by %s change from %s", conn.Provider, event.LastModified.Format(time.RFC3339))

	if err := s.appointmentRepo.Update(ctx, local); err != nil {
		return err
	}
	touched[local.ID] = struct{}{}
	result.Updated++
	return nil
}

func (s *service) pushLocalChanges(ctx context.Context, adapter provider.Adapter, conn *domain.CalendarConnection, result *domain.SyncResult, touched map[string]struct{}) error {
	var since time.Time
	if conn.LastSyncAt != nil {
		since = *conn.LastSyncAt
	}

	locals, err := s.appointmentRepo.ListModifiedSince(ctx, conn.UserID, since)
	if err != nil {
		return err
	}

	for i := range locals {
		appointment := &locals[i]
		if _, ok := touched[appointment.ID]; ok {
			continue
		}
		// linked to a different connection, not ours to push
		if appointment.ConnectionID != nil && *appointment.ConnectionID != conn.ID {
			continue
		}

		if appointment.ExternalEventID == nil {
			externalID, err := adapter.CreateEvent(ctx, conn, eventFromAppointment(appointment))
			if err != nil {
				return err
			}
			connectionID := conn.ID
			appointment.ExternalEventID = &externalID
			appointment.ConnectionID = &connectionID
			if err := s.appointmentRepo.Update(ctx, appointment); err != nil {
				return err
			}
		} else {
			if err := adapter.UpdateEvent(ctx, conn, *appointment.ExternalEventID, eventFromAppointment(appointment)); err != nil {
				return err
			}
		}
		result.EventsPushed++
	}
	return nil
}

func (s *service) DetectConflicts(ctx context.Context, conn *domain.CalendarConnection, start, end time.Time) ([]domain.Conflict, error) {
	adapter, err := s.adapters.For(conn.Provider)
	if err != nil {
		return nil, err
	}

	remote, err := adapter.ListEvents(ctx, conn, start, end)
	if err != nil {
		return nil, err
	}

	local, err := s.appointmentRepo.ListInRange(ctx, conn.UserID, start, end)
	if err != nil {
		return nil, err
	}

	var conflicts []domain.Conflict
	for _, event := range remote {
		if event.Status == domain.EventStatusCancelled {
			continue
		}
		for i := range local {
			appointment := &local[i]
			if appointment.ExternalEventID != nil && *appointment.ExternalEventID == event.ExternalID {
				continue
			}
			if appointment.Overlaps(event.Start, event.End) {
				conflicts = append(conflicts, domain.Conflict{
					Provider:      conn.Provider,
					ConnectionID:  conn.ID,
					AppointmentID: appointment.ID,
					RemoteEvent:   event,
				})
			}
		}
	}
	return conflicts, nil
}

// fail records the attempt and leaves the cursor untouched.
func (s *service) fail(ctx context.Context, conn *domain.CalendarConnection, result *domain.SyncResult, err error) error {
	s.log.Error().Err(err).Str("connectionID", conn.ID).Msg("Sync pass failed")
	s.record(ctx, conn.ID, domain.SyncOutcomeFailure, err.Error(), result)
	s.bus.Publish(EventSyncFailed, conn.ID, err.Error())
	return err
}

func (s *service) record(ctx context.Context, connectionID string, outcome domain.SyncOutcome, detail string, result *domain.SyncResult) {
	entry := &domain.SyncLogEntry{
		ConnectionID: connectionID,
		Outcome:      outcome,
		Detail:       detail,
	}
	if result != nil {
		entry.EventsPulled = result.EventsPulled
		entry.EventsPushed = result.EventsPushed
	}
	if err := s.syncLogRepo.Store(ctx, entry); err != nil {
		s.log.Error().Err(err).Str("connectionID", connectionID).Msg("Could not write sync log entry")
	}
}

func eventFromAppointment(a *domain.Appointment) domain.ExternalEvent {
	return domain.ExternalEvent{
		Title:       a.Title,
		Description: a.Notes,
		Location:    a.Location,
		Start:       a.StartTime,
		End:         a.EndTime,
		Status:      domain.EventStatusConfirmed,
	}
}
