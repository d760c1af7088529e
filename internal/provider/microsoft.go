package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/logger"
	"github.com/tunerdesk/calsync/internal/oauth"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

const (
	graphBaseURL         = "https://graph.microsoft.com/v1.0"
	graphSubscriptionTTL = 3 * 24 * time.Hour
	graphTimeLayout      = "2006-01-02T15:04:05"
)

// MicrosoftAdapter drives the Microsoft Graph calendar API over plain HTTP.
// Incremental pulls follow the delta query protocol; push notifications use
// Graph subscriptions, which support in-place expiry extension.
type MicrosoftAdapter struct {
	log    zerolog.Logger
	oauth  oauth.Provider
	creds  CredentialStore
	cfg    *domain.Config
	client *http.Client
}

func NewMicrosoftAdapter(log logger.Logger, op oauth.Provider, creds CredentialStore, cfg *domain.Config) *MicrosoftAdapter {
	return &MicrosoftAdapter{
		log:    log.With().Str("module", "provider").Str("provider", "microsoft").Logger(),
		oauth:  op,
		creds:  creds,
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (a *MicrosoftAdapter) Provider() domain.CalendarProvider {
	return domain.CalendarProviderMicrosoft
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphLocation struct {
	DisplayName string `json:"displayName"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphEvent struct {
	ID               string         `json:"id"`
	Subject          string         `json:"subject"`
	BodyPreview      string         `json:"bodyPreview"`
	Body             *graphBody     `json:"body,omitempty"`
	Location         *graphLocation `json:"location,omitempty"`
	Start            *graphDateTime `json:"start,omitempty"`
	End              *graphDateTime `json:"end,omitempty"`
	IsCancelled      bool           `json:"isCancelled"`
	LastModified     string         `json:"lastModifiedDateTime"`
	Removed          *struct{}      `json:"@removed,omitempty"`
}

// graphEventRequest carries only the writable event fields; responses
// include read-only properties Graph rejects on writes.
type graphEventRequest struct {
	Subject  string         `json:"subject"`
	Body     *graphBody     `json:"body,omitempty"`
	Location *graphLocation `json:"location,omitempty"`
	Start    *graphDateTime `json:"start"`
	End      *graphDateTime `json:"end"`
}

type graphEventPage struct {
	Value     []graphEvent `json:"value"`
	NextLink  string       `json:"@odata.nextLink"`
	DeltaLink string       `json:"@odata.deltaLink"`
}

type graphSubscription struct {
	ID                 string `json:"id,omitempty"`
	ChangeType         string `json:"changeType,omitempty"`
	NotificationURL    string `json:"notificationUrl,omitempty"`
	Resource           string `json:"resource,omitempty"`
	ExpirationDateTime string `json:"expirationDateTime,omitempty"`
	ClientState        string `json:"clientState,omitempty"`
}

func (a *MicrosoftAdapter) do(ctx context.Context, conn *domain.CalendarConnection, method, url string, body interface{}, out interface{}) error {
	if err := ensureFreshToken(ctx, a.oauth, a.creds, conn); err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "could not encode graph request body")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return errors.Wrap(err, "could not build graph request")
	}
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return &APIError{Provider: domain.CalendarProviderMicrosoft, Op: method + " " + url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &APIError{
			Provider:   domain.CalendarProviderMicrosoft,
			Op:         method + " " + url,
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("graph responded %d: %s", resp.StatusCode, strings.TrimSpace(string(detail))),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrap(err, "could not decode graph response")
		}
	}
	return nil
}

func (a *MicrosoftAdapter) eventsBaseURL(conn *domain.CalendarConnection) string {
	if conn.CalendarID != "" {
		return fmt.Sprintf("%s/me/calendars/%s/events", graphBaseURL, conn.CalendarID)
	}
	return graphBaseURL + "/me/calendar/events"
}

func (a *MicrosoftAdapter) ListChangedEvents(ctx context.Context, conn *domain.CalendarConnection) (*ChangeSet, error) {
	url := conn.Cursor()
	if url == "" {
		windowDays := a.cfg.Sync.InitialWindowDays
		from := time.Now().AddDate(0, 0, -windowDays).UTC().Format(time.RFC3339)
		to := time.Now().AddDate(1, 0, 0).UTC().Format(time.RFC3339)
		url = fmt.Sprintf("%s/me/calendarView/delta?startDateTime=%s&endDateTime=%s", graphBaseURL, from, to)
	}

	set := &ChangeSet{}
	for {
		var page graphEventPage
		if err := a.do(ctx, conn, http.MethodGet, url, nil, &page); err != nil {
			if isGraphStatus(err, http.StatusGone) {
				// expired delta link, restart from a fresh window
				a.log.Warn().Str("connectionID", conn.ID).Msg("Delta link expired, performing full re-sync")
				conn.SetCursor("")
				return a.ListChangedEvents(ctx, conn)
			}
			return nil, err
		}

		for _, item := range page.Value {
			set.Events = append(set.Events, eventFromGraph(item))
		}

		if page.DeltaLink != "" {
			set.NextCursor = page.DeltaLink
			return set, nil
		}
		if page.NextLink == "" {
			return set, nil
		}
		url = page.NextLink
	}
}

func (a *MicrosoftAdapter) ListEvents(ctx context.Context, conn *domain.CalendarConnection, from, to time.Time) ([]domain.ExternalEvent, error) {
	url := fmt.Sprintf("%s/me/calendarView?startDateTime=%s&endDateTime=%s",
		graphBaseURL, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))

	var events []domain.ExternalEvent
	for {
		var page graphEventPage
		if err := a.do(ctx, conn, http.MethodGet, url, nil, &page); err != nil {
			return nil, err
		}
		for _, item := range page.Value {
			events = append(events, eventFromGraph(item))
		}
		if page.NextLink == "" {
			return events, nil
		}
		url = page.NextLink
	}
}

func (a *MicrosoftAdapter) CreateEvent(ctx context.Context, conn *domain.CalendarConnection, event domain.ExternalEvent) (string, error) {
	var created graphEvent
	if err := a.do(ctx, conn, http.MethodPost, a.eventsBaseURL(conn), eventToGraph(event), &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

func (a *MicrosoftAdapter) UpdateEvent(ctx context.Context, conn *domain.CalendarConnection, externalID string, event domain.ExternalEvent) error {
	url := fmt.Sprintf("%s/me/events/%s", graphBaseURL, externalID)
	return a.do(ctx, conn, http.MethodPatch, url, eventToGraph(event), nil)
}

func (a *MicrosoftAdapter) DeleteEvent(ctx context.Context, conn *domain.CalendarConnection, externalID string) error {
	url := fmt.Sprintf("%s/me/events/%s", graphBaseURL, externalID)
	err := a.do(ctx, conn, http.MethodDelete, url, nil, nil)
	if isGraphStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

func (a *MicrosoftAdapter) CreateWebhookSubscription(ctx context.Context, conn *domain.CalendarConnection) (*domain.WebhookSubscription, error) {
	expiration := time.Now().Add(graphSubscriptionTTL)
	req := graphSubscription{
		ChangeType:      "created,updated,deleted",
		NotificationURL: a.cfg.Sync.WebhookBaseURL + "/api/webhooks/microsoft",
		Resource:        "/me/events",
		// clientState comes back on every notification and must match the
		// connection it was created for
		ClientState:        conn.ID,
		ExpirationDateTime: expiration.UTC().Format(time.RFC3339),
	}

	var created graphSubscription
	if err := a.do(ctx, conn, http.MethodPost, graphBaseURL+"/subscriptions", req, &created); err != nil {
		return nil, err
	}

	sub := &domain.WebhookSubscription{ID: created.ID, Expiration: expiration}
	if t, err := time.Parse(time.RFC3339, created.ExpirationDateTime); err == nil {
		sub.Expiration = t
	}
	return sub, nil
}

// RenewWebhookSubscription extends the existing subscription in place.
func (a *MicrosoftAdapter) RenewWebhookSubscription(ctx context.Context, conn *domain.CalendarConnection) (*domain.WebhookSubscription, error) {
	if conn.WebhookID == nil {
		return a.CreateWebhookSubscription(ctx, conn)
	}

	expiration := time.Now().Add(graphSubscriptionTTL)
	req := graphSubscription{ExpirationDateTime: expiration.UTC().Format(time.RFC3339)}

	var updated graphSubscription
	url := fmt.Sprintf("%s/subscriptions/%s", graphBaseURL, *conn.WebhookID)
	if err := a.do(ctx, conn, http.MethodPatch, url, req, &updated); err != nil {
		if isGraphStatus(err, http.StatusNotFound) {
			// subscription already expired, start a new one
			return a.CreateWebhookSubscription(ctx, conn)
		}
		return nil, err
	}

	sub := &domain.WebhookSubscription{ID: *conn.WebhookID, Expiration: expiration}
	if t, err := time.Parse(time.RFC3339, updated.ExpirationDateTime); err == nil {
		sub.Expiration = t
	}
	return sub, nil
}

func (a *MicrosoftAdapter) StopWebhookSubscription(ctx context.Context, conn *domain.CalendarConnection) error {
	if conn.WebhookID == nil {
		return nil
	}

	url := fmt.Sprintf("%s/subscriptions/%s", graphBaseURL, *conn.WebhookID)
	err := a.do(ctx, conn, http.MethodDelete, url, nil, nil)
	if isGraphStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

func isGraphStatus(err error, code int) bool {
	if aerr, ok := err.(*APIError); ok {
		return aerr.StatusCode == code
	}
	return false
}

func eventFromGraph(item graphEvent) domain.ExternalEvent {
	event := domain.ExternalEvent{
		ExternalID:  item.ID,
		Title:       item.Subject,
		Description: item.BodyPreview,
		Status:      domain.EventStatusConfirmed,
	}

	if item.Body != nil && item.Body.Content != "" {
		event.Description = item.Body.Content
	}
	if item.Location != nil {
		event.Location = item.Location.DisplayName
	}
	if item.IsCancelled || item.Removed != nil {
		event.Status = domain.EventStatusCancelled
	}
	event.Start = graphTime(item.Start)
	event.End = graphTime(item.End)
	if item.LastModified != "" {
		if t, err := time.Parse(time.RFC3339, item.LastModified); err == nil {
			event.LastModified = t
		}
	}
	return event
}

// graphTime parses Graph's fractional-second timestamps, which carry the
// zone in a separate field. Only UTC responses are requested.
func graphTime(dt *graphDateTime) time.Time {
	if dt == nil || dt.DateTime == "" {
		return time.Time{}
	}
	value := dt.DateTime
	if len(value) > len(graphTimeLayout) {
		value = value[:len(graphTimeLayout)]
	}
	t, err := time.Parse(graphTimeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func eventToGraph(event domain.ExternalEvent) graphEventRequest {
	return graphEventRequest{
		Subject:  event.Title,
		Body:     &graphBody{ContentType: "text", Content: event.Description},
		Location: &graphLocation{DisplayName: event.Location},
		Start:    &graphDateTime{DateTime: event.Start.UTC().Format(graphTimeLayout), TimeZone: "UTC"},
		End:      &graphDateTime{DateTime: event.End.UTC().Format(graphTimeLayout), TimeZone: "UTC"},
	}
}
