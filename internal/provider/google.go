package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"
	"github.com/tunerdesk/calsync/internal/oauth"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const googleChannelTTL = 7 * 24 * time.Hour

// GoogleAdapter drives the Google Calendar v3 API. Incremental pulls use the
// events.list syncToken protocol; push notifications use watch channels,
// which cannot be extended and are recreated on renewal.
type GoogleAdapter struct {
	log   zerolog.Logger
	oauth oauth.Provider
	creds CredentialStore
	cfg   *domain.Config
}

func NewGoogleAdapter(log logger.Logger, op oauth.Provider, creds CredentialStore, cfg *domain.Config) *GoogleAdapter {
	return &GoogleAdapter{
		log:   log.With().Str("module", "provider").Str("provider", "google").Logger(),
		oauth: op,
		creds: creds,
		cfg:   cfg,
	}
}

func (a *GoogleAdapter) Provider() domain.CalendarProvider {
	return domain.CalendarProviderGoogle
}

func (a *GoogleAdapter) service(ctx context.Context, conn *domain.CalendarConnection) (*calendar.Service, error) {
	if err := ensureFreshToken(ctx, a.oauth, a.creds, conn); err != nil {
		return nil, err
	}

	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: conn.AccessToken}))
	svc, err := calendar.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, a.apiError("init service", err)
	}
	return svc, nil
}

func calendarID(conn *domain.CalendarConnection) string {
	if conn.CalendarID != "" {
		return conn.CalendarID
	}
	return "primary"
}

func (a *GoogleAdapter) ListChangedEvents(ctx context.Context, conn *domain.CalendarConnection) (*ChangeSet, error) {
	svc, err := a.service(ctx, conn)
	if err != nil {
		return nil, err
	}

	set, err := a.listChanges(ctx, svc, conn, conn.Cursor())
	if isGoogleStatus(err, http.StatusGone) {
		// expired sync token, fall back to a full window pull
		a.log.Warn().Str("connectionID", conn.ID).Msg("Sync token expired, performing full re-sync")
		return a.listChanges(ctx, svc, conn, "")
	}
	return set, err
}

func (a *GoogleAdapter) listChanges(ctx context.Context, svc *calendar.Service, conn *domain.CalendarConnection, cursor string) (*ChangeSet, error) {
	set := &ChangeSet{}
	pageToken := ""

	for {
		call := svc.Events.List(calendarID(conn)).Context(ctx).SingleEvents(true)
		if cursor != "" {
			call = call.SyncToken(cursor)
		} else {
			windowDays := a.cfg.Sync.InitialWindowDays
			call = call.TimeMin(time.Now().AddDate(0, 0, -windowDays).Format(time.RFC3339))
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, a.apiError("list events", err)
		}

		for _, item := range resp.Items {
			set.Events = append(set.Events, eventFromGoogle(item))
		}

		if resp.NextPageToken == "" {
			set.NextCursor = resp.NextSyncToken
			return set, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (a *GoogleAdapter) ListEvents(ctx context.Context, conn *domain.CalendarConnection, from, to time.Time) ([]domain.ExternalEvent, error) {
	svc, err := a.service(ctx, conn)
	if err != nil {
		return nil, err
	}

	var events []domain.ExternalEvent
	pageToken := ""
	for {
		call := svc.Events.List(calendarID(conn)).Context(ctx).
			SingleEvents(true).
			TimeMin(from.Format(time.RFC3339)).
			TimeMax(to.Format(time.RFC3339))
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, a.apiError("list events in range", err)
		}

		for _, item := range resp.Items {
			events = append(events, eventFromGoogle(item))
		}

		if resp.NextPageToken == "" {
			return events, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (a *GoogleAdapter) CreateEvent(ctx context.Context, conn *domain.CalendarConnection, event domain.ExternalEvent) (string, error) {
	svc, err := a.service(ctx, conn)
	if err != nil {
		return "", err
	}

	created, err := svc.Events.Insert(calendarID(conn), eventToGoogle(event)).Context(ctx).Do()
	if err != nil {
		return "", a.apiError("create event", err)
	}
	return created.Id, nil
}

func (a *GoogleAdapter) UpdateEvent(ctx context.Context, conn *domain.CalendarConnection, externalID string, event domain.ExternalEvent) error {
	svc, err := a.service(ctx, conn)
	if err != nil {
		return err
	}

	if _, err := svc.Events.Patch(calendarID(conn), externalID, eventToGoogle(event)).Context(ctx).Do(); err != nil {
		return a.apiError("update event", err)
	}
	return nil
}

func (a *GoogleAdapter) DeleteEvent(ctx context.Context, conn *domain.CalendarConnection, externalID string) error {
	svc, err := a.service(ctx, conn)
	if err != nil {
		return err
	}

	err = svc.Events.Delete(calendarID(conn), externalID).Context(ctx).Do()
	if err != nil && !isGoogleStatus(err, http.StatusNotFound) && !isGoogleStatus(err, http.StatusGone) {
		return a.apiError("delete event", err)
	}
	return nil
}

func (a *GoogleAdapter) CreateWebhookSubscription(ctx context.Context, conn *domain.CalendarConnection) (*domain.WebhookSubscription, error) {
	svc, err := a.service(ctx, conn)
	if err != nil {
		return nil, err
	}

	expiration := time.Now().Add(googleChannelTTL)
	channel := &calendar.Channel{
		Id:      uuid.New().String(),
		Type:    "web_hook",
		Address: a.cfg.Sync.WebhookBaseURL + "/api/webhooks/google",
		// the token travels back on every notification and must match the
		// connection it was created for
		Token:      conn.ID,
		Expiration: expiration.UnixMilli(),
	}

	created, err := svc.Events.Watch(calendarID(conn), channel).Context(ctx).Do()
	if err != nil {
		return nil, a.apiError("create watch channel", err)
	}

	sub := &domain.WebhookSubscription{
		ID:         created.Id,
		ResourceID: created.ResourceId,
		Expiration: expiration,
	}
	if created.Expiration > 0 {
		sub.Expiration = time.UnixMilli(created.Expiration)
	}
	return sub, nil
}

// RenewWebhookSubscription stops the current watch channel and opens a new
// one. Google channels have no extend operation.
func (a *GoogleAdapter) RenewWebhookSubscription(ctx context.Context, conn *domain.CalendarConnection) (*domain.WebhookSubscription, error) {
	if err := a.StopWebhookSubscription(ctx, conn); err != nil {
		a.log.Warn().Err(err).Str("connectionID", conn.ID).Msg("Could not stop old watch channel, creating replacement anyway")
	}
	return a.CreateWebhookSubscription(ctx, conn)
}

func (a *GoogleAdapter) StopWebhookSubscription(ctx context.Context, conn *domain.CalendarConnection) error {
	if conn.WebhookID == nil || conn.WebhookResourceID == nil {
		return nil
	}

	svc, err := a.service(ctx, conn)
	if err != nil {
		return err
	}

	err = svc.Channels.Stop(&calendar.Channel{
		Id:         *conn.WebhookID,
		ResourceId: *conn.WebhookResourceID,
	}).Context(ctx).Do()
	if err != nil && !isGoogleStatus(err, http.StatusNotFound) {
		return a.apiError("stop watch channel", err)
	}
	return nil
}

func (a *GoogleAdapter) apiError(op string, err error) error {
	apiErr := &APIError{Provider: domain.CalendarProviderGoogle, Op: op, Err: err}
	if gerr, ok := err.(*googleapi.Error); ok {
		apiErr.StatusCode = gerr.Code
	}
	return apiErr
}

func isGoogleStatus(err error, code int) bool {
	if gerr, ok := err.(*googleapi.Error); ok {
		return gerr.Code == code
	}
	if aerr, ok := err.(*APIError); ok {
		return aerr.StatusCode == code
	}
	return false
}

func eventFromGoogle(item *calendar.Event) domain.ExternalEvent {
	event := domain.ExternalEvent{
		ExternalID:  item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		Status:      domain.EventStatusConfirmed,
	}

	if item.Status == "cancelled" {
		event.Status = domain.EventStatusCancelled
	}
	event.Start = googleTime(item.Start)
	event.End = googleTime(item.End)
	if item.Updated != "" {
		if t, err := time.Parse(time.RFC3339, item.Updated); err == nil {
			event.LastModified = t
		}
	}
	return event
}

// googleTime handles both timed events (DateTime) and all-day events (Date).
// Cancelled events in incremental responses carry neither.
func googleTime(dt *calendar.EventDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	if dt.DateTime != "" {
		if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
			return t
		}
	}
	if dt.Date != "" {
		if t, err := time.Parse("2006-01-02", dt.Date); err == nil {
			return t
		}
	}
	return time.Time{}
}

func eventToGoogle(event domain.ExternalEvent) *calendar.Event {
	return &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Location:    event.Location,
		Start:       &calendar.EventDateTime{DateTime: event.Start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: event.End.Format(time.RFC3339)},
	}
}
