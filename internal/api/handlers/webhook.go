package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/amaumene/requestarr/internal/controllers"
	"github.com/amaumene/requestarr/internal/models"
	"github.com/sirupsen/logrus"
)

// WebhookHandler handles availability callbacks from the download services
type WebhookHandler struct {
	db          *models.Database
	requestCtrl *controllers.RequestController
	logger      *logrus.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(db *models.Database, requestCtrl *controllers.RequestController, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		db:          db,
		requestCtrl: requestCtrl,
		logger:      logger,
	}
}

// WebhookPayload is the subset of the Radarr/Sonarr webhook body we act on
type WebhookPayload struct {
	EventType string `json:"eventType"`
	Movie     *struct {
		TmdbID int `json:"tmdbId"`
	} `json:"movie,omitempty"`
	Series *struct {
		TvdbID int `json:"tvdbId"`
		TmdbID int `json:"tmdbId"`
	} `json:"series,omitempty"`
	Episodes []struct {
		SeasonNumber int `json:"seasonNumber"`
	} `json:"episodes,omitempty"`
	Is4K bool `json:"is4k"`
}

// ServeHTTP handles the webhook endpoint
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.logger.WithError(err).Error("Failed to decode webhook payload")
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	// Only import events change availability
	if payload.EventType != "Download" {
		h.logger.WithField("event_type", payload.EventType).Debug("Ignoring webhook event")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		return
	}

	media, seasons, err := h.resolveMedia(payload)
	if err != nil {
		h.logger.WithError(err).Warn("Webhook did not match a tracked media")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"media_id": media.ID,
		"title":    media.Title,
		"is_4k":    payload.Is4K,
		"seasons":  seasons,
	}).Info("Received availability webhook")

	if err := h.requestCtrl.MarkAvailable(r.Context(), media.ID, payload.Is4K, seasons); err != nil {
		h.logger.WithError(err).Error("Failed to process availability webhook")
		http.Error(w, "Failed to process webhook", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *WebhookHandler) resolveMedia(payload WebhookPayload) (*models.Media, []int, error) {
	if payload.Movie != nil {
		media, err := h.db.GetMediaByTmdbID(payload.Movie.TmdbID, models.MediaTypeMovie)
		return media, nil, err
	}
	if payload.Series != nil {
		media, err := h.db.GetMediaByTmdbID(payload.Series.TmdbID, models.MediaTypeTV)
		if err != nil {
			return nil, nil, err
		}

		seen := make(map[int]bool)
		var seasons []int
		for _, episode := range payload.Episodes {
			if !seen[episode.SeasonNumber] {
				seen[episode.SeasonNumber] = true
				seasons = append(seasons, episode.SeasonNumber)
			}
		}
		return media, seasons, nil
	}
	return nil, nil, errors.New("webhook payload has neither movie nor series reference")
}
