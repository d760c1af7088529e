package domain

import (
	"context"
	"time"
)

// AppointmentRepo is the data-access surface the sync engine gets injected.
// Appointments belong to the surrounding application; the engine never
// touches their storage directly.
type AppointmentRepo interface {
	FindByExternalEventID(ctx context.Context, connectionID string, externalEventID string) (*Appointment, error)
	ListInRange(ctx context.Context, userID string, from, to time.Time) ([]Appointment, error)
	// ListModifiedSince returns the user's appointments updated after the
	// given time, used to push local changes out to the remote calendar.
	ListModifiedSince(ctx context.Context, userID string, since time.Time) ([]Appointment, error)
	Store(ctx context.Context, appointment *Appointment) error
	Update(ctx context.Context, appointment *Appointment) error
	Delete(ctx context.Context, id string) error
}

// Appointment is a scheduled service visit. ExternalEventID links it to the
// remote calendar event it was synced with, when one exists.
type Appointment struct {
	ID        string    `json:"id" gorm:"primaryKey;column:id"`
	UserID    string    `json:"user_id" gorm:"column:user_id;index"`
	Title     string    `json:"title" gorm:"column:title"`
	Notes     string    `json:"notes" gorm:"column:notes"`
	Location  string    `json:"location" gorm:"column:location"`
	StartTime time.Time `json:"start_time" gorm:"column:start_time;index"`
	EndTime   time.Time `json:"end_time" gorm:"column:end_time"`

	ExternalEventID *string `json:"external_event_id" gorm:"column:external_event_id;index"`
	ConnectionID    *string `json:"connection_id" gorm:"column:connection_id"`

	// AuditNote records why the engine last rewrote this appointment, e.g.
	// a remote copy winning a modification conflict.
	AuditNote string `json:"audit_note" gorm:"column:audit_note"`

	CreatedAt time.Time `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// Overlaps reports whether the appointment's time range intersects [from, to).
func (a *Appointment) Overlaps(from, to time.Time) bool {
	return a.StartTime.Before(to) && a.EndTime.After(from)
}
