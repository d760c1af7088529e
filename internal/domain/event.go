package domain

import "time"

type EventStatus string

const (
	EventStatusConfirmed EventStatus = "confirmed"
	EventStatusCancelled EventStatus = "cancelled"
)

// ExternalEvent is the normalized shape every provider adapter reduces its
// wire payload to. Provider-specific JSON never leaks past the adapter.
type ExternalEvent struct {
	ExternalID   string      `json:"external_id"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Location     string      `json:"location"`
	Start        time.Time   `json:"start"`
	End          time.Time   `json:"end"`
	Status       EventStatus `json:"status"`
	LastModified time.Time   `json:"last_modified"`
}

// Overlaps reports whether the event's time range intersects [from, to).
func (e *ExternalEvent) Overlaps(from, to time.Time) bool {
	return e.Start.Before(to) && e.End.After(from)
}

// WebhookSubscription is the normalized result of registering or renewing a
// push channel with a provider.
type WebhookSubscription struct {
	ID         string
	ResourceID string
	Expiration time.Time
}

// Conflict pairs a local appointment with a remote event whose time ranges
// overlap without being the same logical appointment.
type Conflict struct {
	Provider      CalendarProvider `json:"provider"`
	ConnectionID  string           `json:"connection_id"`
	AppointmentID string           `json:"appointment_id"`
	RemoteEvent   ExternalEvent    `json:"remote_event"`
}

// SyncResult summarizes one completed reconciliation pass.
type SyncResult struct {
	ConnectionID string `json:"connection_id"`
	EventsPulled int    `json:"events_pulled"`
	EventsPushed int    `json:"events_pushed"`
	Created      int    `json:"created"`
	Updated      int    `json:"updated"`
	Deleted      int    `json:"deleted"`
}
