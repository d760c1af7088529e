package http

import (
	"encoding/json"
	"net/http"

	"github.com/tunerdesk/calsync/internal/domain"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// syncEnqueuer queues a background sync pass without blocking.
type syncEnqueuer interface {
	Enqueue(connectionID string)
}

// webhookHandler terminates provider push notifications. These routes skip
// bearer auth; each provider's channel secret authenticates instead. Handlers
// answer immediately and hand the actual work to the dispatcher, a slow
// response gets the channel dropped provider-side.
type webhookHandler struct {
	log            zerolog.Logger
	connectionRepo domain.ConnectionRepo
	dispatcher     syncEnqueuer
}

func newWebhookHandler(log zerolog.Logger, connectionRepo domain.ConnectionRepo, dispatcher syncEnqueuer) *webhookHandler {
	return &webhookHandler{
		log:            log,
		connectionRepo: connectionRepo,
		dispatcher:     dispatcher,
	}
}

func (h webhookHandler) Routes(r chi.Router) {
	r.Post("/google", h.handleGoogle)
	r.Post("/microsoft", h.handleMicrosoft)
}

// handleGoogle validates the channel id and token headers before anything
// else; a token mismatch must never trigger a sync.
func (h webhookHandler) handleGoogle(w http.ResponseWriter, r *http.Request) {
	channelID := r.Header.Get("X-Goog-Channel-ID")
	channelToken := r.Header.Get("X-Goog-Channel-Token")
	resourceState := r.Header.Get("X-Goog-Resource-State")

	if channelID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	conn, err := h.connectionRepo.FindByWebhookID(r.Context(), channelID)
	if err != nil {
		h.log.Error().Err(err).Str("channelID", channelID).Msg("Webhook lookup failed")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if conn == nil {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	// the channel token was set to the connection id when the watch channel
	// was created
	if channelToken != conn.ID {
		h.log.Warn().Str("channelID", channelID).Msg("Webhook channel token mismatch")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.WriteHeader(http.StatusOK)

	// "sync" is Google's channel-created handshake, an ack is all it wants
	if resourceState == "sync" {
		return
	}

	h.dispatcher.Enqueue(conn.ID)
}

type graphNotification struct {
	SubscriptionID string `json:"subscriptionId"`
	ClientState    string `json:"clientState"`
	ChangeType     string `json:"changeType"`
}

type graphNotificationPayload struct {
	Value []graphNotification `json:"value"`
}

// handleMicrosoft answers the subscription validation handshake with the
// literal token and no database access, then matches real notifications by
// clientState.
func (h webhookHandler) handleMicrosoft(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("validationToken"); token != "" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(token))
		return
	}

	var payload graphNotificationPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusAccepted)

	for _, notification := range payload.Value {
		if notification.ClientState == "" {
			continue
		}
		// clientState carries the connection id the subscription was
		// created with
		conn, err := h.connectionRepo.FindByID(r.Context(), notification.ClientState)
		if err != nil {
			h.log.Error().Err(err).Str("subscriptionID", notification.SubscriptionID).Msg("Webhook lookup failed")
			continue
		}
		if conn == nil {
			h.log.Debug().Str("subscriptionID", notification.SubscriptionID).Msg("Notification for unknown connection")
			continue
		}
		h.dispatcher.Enqueue(conn.ID)
	}
}
