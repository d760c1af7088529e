package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/provider"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

// MockConnectionRepo mocks domain.ConnectionRepo
type MockConnectionRepo struct {
	mock.Mock
}

func (m *MockConnectionRepo) Store(ctx context.Context, conn *domain.CalendarConnection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

func (m *MockConnectionRepo) FindByID(ctx context.Context, id string) (*domain.CalendarConnection, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalendarConnection), args.Error(1)
}

func (m *MockConnectionRepo) FindByUserAndProvider(ctx context.Context, userID string, p domain.CalendarProvider) (*domain.CalendarConnection, error) {
	args := m.Called(ctx, userID, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalendarConnection), args.Error(1)
}

func (m *MockConnectionRepo) FindByWebhookID(ctx context.Context, webhookID string) (*domain.CalendarConnection, error) {
	args := m.Called(ctx, webhookID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalendarConnection), args.Error(1)
}

func (m *MockConnectionRepo) ListByUser(ctx context.Context, userID string) ([]domain.CalendarConnection, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalendarConnection), args.Error(1)
}

func (m *MockConnectionRepo) FindWebhooksExpiringBefore(ctx context.Context, cutoff time.Time) ([]domain.CalendarConnection, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.CalendarConnection), args.Error(1)
}

func (m *MockConnectionRepo) UpdateTokens(ctx context.Context, id string, accessToken, refreshToken string, expiresAt time.Time) error {
	args := m.Called(ctx, id, accessToken, refreshToken, expiresAt)
	return args.Error(0)
}

func (m *MockConnectionRepo) UpdateWebhook(ctx context.Context, id string, sub *domain.WebhookSubscription) error {
	args := m.Called(ctx, id, sub)
	return args.Error(0)
}

func (m *MockConnectionRepo) UpdateCursor(ctx context.Context, id string, cursor string, syncedAt time.Time) error {
	args := m.Called(ctx, id, cursor, syncedAt)
	return args.Error(0)
}

func (m *MockConnectionRepo) SetSyncEnabled(ctx context.Context, id string, enabled bool) error {
	args := m.Called(ctx, id, enabled)
	return args.Error(0)
}

func (m *MockConnectionRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockAdapter mocks provider.Adapter
type MockAdapter struct {
	mock.Mock
	p domain.CalendarProvider
}

func (m *MockAdapter) Provider() domain.CalendarProvider {
	return m.p
}

func (m *MockAdapter) ListChangedEvents(ctx context.Context, conn *domain.CalendarConnection) (*provider.ChangeSet, error) {
	args := m.Called(ctx, conn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*provider.ChangeSet), args.Error(1)
}

func (m *MockAdapter) ListEvents(ctx context.Context, conn *domain.CalendarConnection, from, to time.Time) ([]domain.ExternalEvent, error) {
	args := m.Called(ctx, conn, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ExternalEvent), args.Error(1)
}

func (m *MockAdapter) CreateEvent(ctx context.Context, conn *domain.CalendarConnection, event domain.ExternalEvent) (string, error) {
	args := m.Called(ctx, conn, event)
	return args.String(0), args.Error(1)
}

func (m *MockAdapter) UpdateEvent(ctx context.Context, conn *domain.CalendarConnection, externalID string, event domain.ExternalEvent) error {
	args := m.Called(ctx, conn, externalID, event)
	return args.Error(0)
}

func (m *MockAdapter) DeleteEvent(ctx context.Context, conn *domain.CalendarConnection, externalID string) error {
	args := m.Called(ctx, conn, externalID)
	return args.Error(0)
}

func (m *MockAdapter) CreateWebhookSubscription(ctx context.Context, conn *domain.CalendarConnection) (*domain.WebhookSubscription, error) {
	args := m.Called(ctx, conn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookSubscription), args.Error(1)
}

func (m *MockAdapter) RenewWebhookSubscription(ctx context.Context, conn *domain.CalendarConnection) (*domain.WebhookSubscription, error) {
	args := m.Called(ctx, conn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.WebhookSubscription), args.Error(1)
}

func (m *MockAdapter) StopWebhookSubscription(ctx context.Context, conn *domain.CalendarConnection) error {
	args := m.Called(ctx, conn)
	return args.Error(0)
}

func TestWebhookRenewalJob_FailureDoesNotAbortSweep(t *testing.T) {
	repo := new(MockConnectionRepo)
	adapter := &MockAdapter{p: domain.CalendarProviderGoogle}

	// 3 connections exist; the repo only surfaces the 2 whose webhook
	// expires inside the lookahead window
	expiring := []domain.CalendarConnection{
		{ID: "conn-1", Provider: domain.CalendarProviderGoogle},
		{ID: "conn-2", Provider: domain.CalendarProviderGoogle},
	}

	repo.On("FindWebhooksExpiringBefore", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		return cutoff.After(time.Now().Add(23 * time.Hour))
	})).Return(expiring, nil)

	adapter.On("RenewWebhookSubscription", mock.Anything, mock.MatchedBy(func(c *domain.CalendarConnection) bool {
		return c.ID == "conn-1"
	})).Return(nil, errors.New("channel already expired"))

	renewed := &domain.WebhookSubscription{ID: "chan-new", Expiration: time.Now().Add(7 * 24 * time.Hour)}
	adapter.On("RenewWebhookSubscription", mock.Anything, mock.MatchedBy(func(c *domain.CalendarConnection) bool {
		return c.ID == "conn-2"
	})).Return(renewed, nil)

	repo.On("UpdateWebhook", mock.Anything, "conn-2", renewed).Return(nil)

	job := &WebhookRenewalJob{
		Name:      "webhook-renewal",
		Log:       zerolog.Nop(),
		Repo:      repo,
		Adapters:  provider.NewRegistry(adapter),
		Lookahead: 24 * time.Hour,
	}
	job.Run()

	repo.AssertExpectations(t)
	adapter.AssertExpectations(t)
	// the failed connection must never be persisted
	repo.AssertNotCalled(t, "UpdateWebhook", mock.Anything, "conn-1", mock.Anything)
}

func TestWebhookRenewalJob_NothingExpiring(t *testing.T) {
	repo := new(MockConnectionRepo)

	repo.On("FindWebhooksExpiringBefore", mock.Anything, mock.Anything).Return([]domain.CalendarConnection{}, nil)

	job := &WebhookRenewalJob{
		Name:      "webhook-renewal",
		Log:       zerolog.Nop(),
		Repo:      repo,
		Adapters:  provider.NewRegistry(),
		Lookahead: 24 * time.Hour,
	}
	job.Run()

	repo.AssertExpectations(t)
}
