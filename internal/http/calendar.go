package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/tunerdesk/calsync/internal/calendar"
	"github.com/tunerdesk/calsync/internal/domain"
	"github.com/tunerdesk/calsync/internal/oauth"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type calendarService = calendar.Service

type calendarHandler struct {
	encoder encoder
	service calendarService
}

func newCalendarHandler(encoder encoder, service calendarService) *calendarHandler {
	return &calendarHandler{
		encoder: encoder,
		service: service,
	}
}

func (h calendarHandler) Routes(r chi.Router) {
	r.Get("/connections", h.listConnections)
	r.Get("/connections/{id}/auth-url", h.getAuthURL)
	r.Post("/connections/{id}", h.connect)
	r.Delete("/connections/{id}", h.disconnect)
	r.Patch("/connections/{id}", h.toggleSync)
	r.Post("/connections/{id}/sync", h.syncNow)
	r.Get("/connections/{id}/logs", h.getSyncLog)
	r.Get("/stats", h.getStats)
	r.Get("/conflicts", h.getConflicts)
}

func (h calendarHandler) listConnections(w http.ResponseWriter, r *http.Request) {
	connections, err := h.service.ListConnections(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.encoder.Error(w, err)
		return
	}
	if connections == nil {
		connections = []domain.CalendarConnection{}
	}
	h.encoder.StatusResponse(r.Context(), w, connections, http.StatusOK)
}

func (h calendarHandler) getAuthURL(w http.ResponseWriter, r *http.Request) {
	provider := domain.CalendarProvider(chi.URLParam(r, "id"))
	if !provider.Valid() {
		h.encoder.StatusError(w, http.StatusBadRequest, errors.Errorf("unknown calendar provider %q", provider))
		return
	}

	state := uuid.New().String()
	url, err := h.service.GetAuthURL(provider, state)
	if err != nil {
		h.encoder.Error(w, err)
		return
	}

	h.encoder.StatusResponse(r.Context(), w, map[string]string{
		"url":   url,
		"state": state,
	}, http.StatusOK)
}

func (h calendarHandler) connect(w http.ResponseWriter, r *http.Request) {
	provider := domain.CalendarProvider(chi.URLParam(r, "id"))
	if !provider.Valid() {
		h.encoder.StatusError(w, http.StatusBadRequest, errors.Errorf("unknown calendar provider %q", provider))
		return
	}

	var payload struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Code == "" {
		h.encoder.StatusError(w, http.StatusBadRequest, errors.New("authorization code missing"))
		return
	}

	conn, err := h.service.Connect(r.Context(), userIDFromContext(r.Context()), provider, payload.Code)
	if err != nil {
		var exchangeErr *oauth.ExchangeError
		if errors.As(err, &exchangeErr) {
			h.encoder.StatusError(w, http.StatusBadRequest, err)
			return
		}
		h.encoder.Error(w, err)
		return
	}

	h.encoder.StatusCreatedData(w, conn)
}

func (h calendarHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	err := h.service.Disconnect(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			h.encoder.StatusNotFound(r.Context(), w)
			return
		}
		h.encoder.Error(w, err)
		return
	}
	h.encoder.NoContent(w)
}

func (h calendarHandler) toggleSync(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Enabled == nil {
		h.encoder.StatusError(w, http.StatusBadRequest, errors.New("enabled flag missing"))
		return
	}

	conn, err := h.service.ToggleSync(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "id"), *payload.Enabled)
	if err != nil {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			h.encoder.StatusNotFound(r.Context(), w)
			return
		}
		h.encoder.Error(w, err)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, conn, http.StatusOK)
}

func (h calendarHandler) syncNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.SyncNow(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			h.encoder.StatusNotFound(r.Context(), w)
			return
		}
		h.encoder.Error(w, err)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, result, http.StatusOK)
}

func (h calendarHandler) getSyncLog(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			h.encoder.StatusError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.service.GetSyncLog(r.Context(), userIDFromContext(r.Context()), chi.URLParam(r, "id"), limit)
	if err != nil {
		if errors.Is(err, domain.ErrConnectionNotFound) {
			h.encoder.StatusNotFound(r.Context(), w)
			return
		}
		h.encoder.Error(w, err)
		return
	}
	if entries == nil {
		entries = []domain.SyncLogEntry{}
	}
	h.encoder.StatusResponse(r.Context(), w, entries, http.StatusOK)
}

func (h calendarHandler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetSyncStats(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.encoder.Error(w, err)
		return
	}
	h.encoder.StatusResponse(r.Context(), w, stats, http.StatusOK)
}

func (h calendarHandler) getConflicts(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		h.encoder.StatusError(w, http.StatusBadRequest, errors.New("start must be an RFC3339 timestamp"))
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		h.encoder.StatusError(w, http.StatusBadRequest, errors.New("end must be an RFC3339 timestamp"))
		return
	}
	if !start.Before(end) {
		h.encoder.StatusError(w, http.StatusBadRequest, errors.New("start must be before end"))
		return
	}

	conflicts, err := h.service.CheckConflicts(r.Context(), userIDFromContext(r.Context()), start, end)
	if err != nil {
		h.encoder.Error(w, err)
		return
	}
	if conflicts == nil {
		conflicts = []domain.Conflict{}
	}
	h.encoder.StatusResponse(r.Context(), w, conflicts, http.StatusOK)
}
