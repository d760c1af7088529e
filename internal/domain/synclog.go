package domain

import (
	"context"
	"time"
)

type SyncOutcome string

const (
	SyncOutcomeSuccess SyncOutcome = "success"
	SyncOutcomeFailure SyncOutcome = "failure"
)

// SyncLogRepo is append-only: entries are stored once and queried for
// diagnostics, never mutated.
type SyncLogRepo interface {
	Store(ctx context.Context, entry *SyncLogEntry) error
	ListByConnection(ctx context.Context, connectionID string, limit int) ([]SyncLogEntry, error)
}

// SyncLogEntry records one sync attempt for a connection.
type SyncLogEntry struct {
	ID           uint        `json:"id" gorm:"primaryKey;autoIncrement;column:id"`
	ConnectionID string      `json:"connection_id" gorm:"column:connection_id;index"`
	Outcome      SyncOutcome `json:"outcome" gorm:"column:outcome"`
	Detail       string      `json:"detail" gorm:"column:detail"`
	EventsPulled int         `json:"events_pulled" gorm:"column:events_pulled"`
	EventsPushed int         `json:"events_pushed" gorm:"column:events_pushed"`
	CreatedAt    time.Time   `json:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (SyncLogEntry) TableName() string {
	return "calendar_sync_log"
}

// SyncStats aggregates connection state for the dashboard.
type SyncStats struct {
	TotalConnections     int        `json:"total_connections"`
	ActiveConnections    int        `json:"active_connections"`
	GoogleConnections    int        `json:"google_connections"`
	MicrosoftConnections int        `json:"microsoft_connections"`
	LastSyncAt           *time.Time `json:"last_sync_at"`
}
