package domain

import (
	"context"
	"time"
)

type CalendarProvider string

const (
	CalendarProviderGoogle    CalendarProvider = "google"
	CalendarProviderMicrosoft CalendarProvider = "microsoft"
)

func (p CalendarProvider) Valid() bool {
	return p == CalendarProviderGoogle || p == CalendarProviderMicrosoft
}

type ConnectionRepo interface {
	Store(ctx context.Context, conn *CalendarConnection) error
	FindByID(ctx context.Context, id string) (*CalendarConnection, error)
	FindByUserAndProvider(ctx context.Context, userID string, provider CalendarProvider) (*CalendarConnection, error)
	// FindByWebhookID resolves an inbound push notification to its connection.
	// Webhook lookups must never scan by user id.
	FindByWebhookID(ctx context.Context, webhookID string) (*CalendarConnection, error)
	ListByUser(ctx context.Context, userID string) ([]CalendarConnection, error)
	// FindWebhooksExpiringBefore returns sync-enabled connections whose webhook
	// subscription expires before the given cutoff.
	FindWebhooksExpiringBefore(ctx context.Context, cutoff time.Time) ([]CalendarConnection, error)
	UpdateTokens(ctx context.Context, id string, accessToken, refreshToken string, expiresAt time.Time) error
	// UpdateWebhook replaces the stored webhook subscription. A nil sub clears it.
	UpdateWebhook(ctx context.Context, id string, sub *WebhookSubscription) error
	UpdateCursor(ctx context.Context, id string, cursor string, syncedAt time.Time) error
	SetSyncEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
}

// CalendarConnection links one user to one external calendar provider.
// At most one connection exists per (user, provider) pair.
//
// Field ownership is deliberately split: the oauth adapters only write the
// credential fields, while the sync engine and webhook renewal own the
// webhook fields, the sync cursor and LastSyncAt. Each writer replaces whole
// fields, never merges.
type CalendarConnection struct {
	ID           string           `json:"id" gorm:"primaryKey;column:id"`
	UserID       string           `json:"user_id" gorm:"column:user_id;index:idx_connections_user_provider,unique"`
	Provider     CalendarProvider `json:"provider" gorm:"column:provider;index:idx_connections_user_provider,unique"`
	CalendarID   string           `json:"calendar_id" gorm:"column:calendar_id"`
	CalendarName string           `json:"calendar_name" gorm:"column:calendar_name"`

	AccessToken  string    `json:"-" gorm:"column:access_token"`
	RefreshToken string    `json:"-" gorm:"column:refresh_token"`
	ExpiresAt    time.Time `json:"-" gorm:"column:expires_at"`

	WebhookID         *string    `json:"-" gorm:"column:webhook_id;index"`
	WebhookResourceID *string    `json:"-" gorm:"column:webhook_resource_id"`
	WebhookExpiration *time.Time `json:"-" gorm:"column:webhook_expiration"`

	// LastSyncToken is the Google sync cursor, LastDeltaLink the Microsoft
	// one. Both are opaque; only the matching provider adapter interprets
	// them. Cursor returns the one for the connection's provider.
	LastSyncToken *string `json:"-" gorm:"column:last_sync_token"`
	LastDeltaLink *string `json:"-" gorm:"column:last_delta_link"`

	SyncEnabled bool       `json:"sync_enabled" gorm:"column:sync_enabled"`
	LastSyncAt  *time.Time `json:"last_sync_at" gorm:"column:last_sync_at"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"column:updated_at;autoUpdateTime"`
}

func (CalendarConnection) TableName() string {
	return "calendar_connections"
}

// Cursor returns the provider-specific sync cursor, or empty when the
// connection has never completed a sync.
func (c *CalendarConnection) Cursor() string {
	switch c.Provider {
	case CalendarProviderGoogle:
		if c.LastSyncToken != nil {
			return *c.LastSyncToken
		}
	case CalendarProviderMicrosoft:
		if c.LastDeltaLink != nil {
			return *c.LastDeltaLink
		}
	}
	return ""
}

// SetCursor stores an opaque cursor into the field matching the provider.
func (c *CalendarConnection) SetCursor(cursor string) {
	switch c.Provider {
	case CalendarProviderGoogle:
		c.LastSyncToken = &cursor
	case CalendarProviderMicrosoft:
		c.LastDeltaLink = &cursor
	}
}

func (c *CalendarConnection) TokenExpired(now time.Time) bool {
	// refresh a minute early to absorb clock skew
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt.Add(-time.Minute))
}
