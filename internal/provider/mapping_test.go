package provider

import (
	"net/http"
	"testing"
	"time"

	"github.com/tunerdesk/calsync/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
)

func TestEventFromGoogle(t *testing.T) {
	t.Run("Timed event", func(t *testing.T) {
		event := eventFromGoogle(&calendar.Event{
			Id:          "ev-1",
			Summary:     "Boiler service",
			Description: "Annual checkup",
			Location:    "12 Elm St",
			Status:      "confirmed",
			Start:       &calendar.EventDateTime{DateTime: "2026-03-02T09:00:00Z"},
			End:         &calendar.EventDateTime{DateTime: "2026-03-02T10:00:00Z"},
			Updated:     "2026-03-01T12:00:00Z",
		})

		assert.Equal(t, "ev-1", event.ExternalID)
		assert.Equal(t, "Boiler service", event.Title)
		assert.Equal(t, domain.EventStatusConfirmed, event.Status)
		assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), event.Start)
		assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), event.LastModified)
	})

	t.Run("All-day event uses the date", func(t *testing.T) {
		event := eventFromGoogle(&calendar.Event{
			Id:    "ev-2",
			Start: &calendar.EventDateTime{Date: "2026-03-02"},
			End:   &calendar.EventDateTime{Date: "2026-03-03"},
		})

		assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), event.Start)
		assert.Equal(t, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC), event.End)
	})

	t.Run("Cancelled event without times", func(t *testing.T) {
		event := eventFromGoogle(&calendar.Event{Id: "ev-3", Status: "cancelled"})

		assert.Equal(t, domain.EventStatusCancelled, event.Status)
		assert.True(t, event.Start.IsZero())
		assert.True(t, event.End.IsZero())
	})
}

func TestEventFromGraph(t *testing.T) {
	t.Run("Regular event", func(t *testing.T) {
		event := eventFromGraph(graphEvent{
			ID:           "AAMk-1",
			Subject:      "Site survey",
			BodyPreview:  "preview",
			Body:         &graphBody{ContentType: "text", Content: "full body"},
			Location:     &graphLocation{DisplayName: "Warehouse"},
			Start:        &graphDateTime{DateTime: "2026-03-02T09:00:00.0000000", TimeZone: "UTC"},
			End:          &graphDateTime{DateTime: "2026-03-02T10:30:00.0000000", TimeZone: "UTC"},
			LastModified: "2026-03-01T12:00:00Z",
		})

		assert.Equal(t, "AAMk-1", event.ExternalID)
		assert.Equal(t, "Site survey", event.Title)
		assert.Equal(t, "full body", event.Description)
		assert.Equal(t, "Warehouse", event.Location)
		assert.Equal(t, domain.EventStatusConfirmed, event.Status)
		assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), event.Start)
		assert.Equal(t, time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), event.End)
	})

	t.Run("Removed delta entry is cancelled", func(t *testing.T) {
		event := eventFromGraph(graphEvent{
			ID:      "AAMk-2",
			Removed: &struct{}{},
		})

		assert.Equal(t, domain.EventStatusCancelled, event.Status)
	})

	t.Run("IsCancelled flag is cancelled", func(t *testing.T) {
		event := eventFromGraph(graphEvent{ID: "AAMk-3", IsCancelled: true})

		assert.Equal(t, domain.EventStatusCancelled, event.Status)
	})
}

func TestEventToGraph_OmitsReadOnlyFields(t *testing.T) {
	req := eventToGraph(domain.ExternalEvent{
		Title:       "Install",
		Description: "notes",
		Location:    "Yard",
		Start:       time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		End:         time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, "Install", req.Subject)
	require.NotNil(t, req.Start)
	assert.Equal(t, "2026-03-02T09:00:00", req.Start.DateTime)
	assert.Equal(t, "UTC", req.Start.TimeZone)
}

func TestRegistry_For(t *testing.T) {
	google := &GoogleAdapter{}
	registry := NewRegistry(google)

	adapter, err := registry.For(domain.CalendarProviderGoogle)
	require.NoError(t, err)
	assert.Same(t, google, adapter)

	_, err = registry.For(domain.CalendarProviderMicrosoft)
	assert.Error(t, err)
}

func TestAPIError(t *testing.T) {
	err := &APIError{
		Provider:   domain.CalendarProviderMicrosoft,
		Op:         "list changed events",
		StatusCode: http.StatusGone,
		Err:        assert.AnError,
	}

	assert.Contains(t, err.Error(), "microsoft")
	assert.Contains(t, err.Error(), "list changed events")
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, isGraphStatus(err, http.StatusGone))
	assert.False(t, isGraphStatus(err, http.StatusNotFound))
}
