package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/oauth"

	"github.com/pkg/errors"
)

// ChangeSet is one incremental pull from a provider: the changed events plus
// the cursor to store once the sync pass fully succeeds. Cancelled events are
// included so callers can remove their local copies.
type ChangeSet struct {
	Events     []domain.ExternalEvent
	NextCursor string
}

// Adapter talks to one provider's calendar and push-notification APIs,
// normalized to domain types. Adapters refresh expired access tokens
// transparently and persist the renewed credentials, but never touch webhook
// fields or sync cursors; those belong to the callers.
type Adapter interface {
	Provider() domain.CalendarProvider

	// ListChangedEvents pulls changes since the connection's cursor, or the
	// initial window when no cursor exists yet.
	ListChangedEvents(ctx context.Context, conn *domain.CalendarConnection) (*ChangeSet, error)
	// ListEvents returns remote events overlapping [from, to).
	ListEvents(ctx context.Context, conn *domain.CalendarConnection, from, to time.Time) ([]domain.ExternalEvent, error)
	CreateEvent(ctx context.Context, conn *domain.CalendarConnection, event domain.ExternalEvent) (string, error)
	UpdateEvent(ctx context.Context, conn *domain.CalendarConnection, externalID string, event domain.ExternalEvent) error
	DeleteEvent(ctx context.Context, conn *domain.CalendarConnection, externalID string) error

	CreateWebhookSubscription(ctx context.Context, conn *domain.CalendarConnection) (*domain.WebhookSubscription, error)
	RenewWebhookSubscription(ctx context.Context, conn *domain.CalendarConnection) (*domain.WebhookSubscription, error)
	StopWebhookSubscription(ctx context.Context, conn *domain.CalendarConnection) error
}

// CredentialStore is the narrow persistence surface adapters need to store
// refreshed tokens. domain.ConnectionRepo satisfies it.
type CredentialStore interface {
	UpdateTokens(ctx context.Context, id string, accessToken, refreshToken string, expiresAt time.Time) error
}

// APIError wraps a failed provider API call with enough context to log and
// classify it without string matching.
type APIError struct {
	Provider   domain.CalendarProvider
	Op         string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s api: %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s api: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Registry maps providers to their adapters.
type Registry struct {
	adapters map[domain.CalendarProvider]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: map[domain.CalendarProvider]Adapter{}}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

func (r *Registry) For(p domain.CalendarProvider) (Adapter, error) {
	a, ok := r.adapters[p]
	if !ok {
		return nil, errors.Errorf("no adapter registered for provider %q", p)
	}
	return a, nil
}

// ensureFreshToken refreshes the connection's access token when it is at or
// near expiry, persisting the renewed credentials before any API call runs.
// The passed connection is updated in place.
func ensureFreshToken(ctx context.Context, op oauth.Provider, creds CredentialStore, conn *domain.CalendarConnection) error {
	if !conn.TokenExpired(time.Now()) {
		return nil
	}

	tokens, err := op.Refresh(ctx, conn.RefreshToken)
	if err != nil {
		return errors.Wrapf(err, "could not refresh access token for connection %s", conn.ID)
	}

	if err := creds.UpdateTokens(ctx, conn.ID, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt); err != nil {
		return errors.Wrapf(err, "could not persist refreshed tokens for connection %s", conn.ID)
	}

	conn.AccessToken = tokens.AccessToken
	conn.RefreshToken = tokens.RefreshToken
	conn.ExpiresAt = tokens.ExpiresAt
	return nil
}
