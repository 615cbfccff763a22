package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/amaumene/requestarr/internal/controllers"
	"github.com/amaumene/requestarr/internal/models"
	"github.com/sirupsen/logrus"
)

// RequestHandler handles media request endpoints
type RequestHandler struct {
	requestCtrl *controllers.RequestController
	logger      *logrus.Logger
}

// NewRequestHandler creates a new request handler
func NewRequestHandler(requestCtrl *controllers.RequestController, logger *logrus.Logger) *RequestHandler {
	return &RequestHandler{
		requestCtrl: requestCtrl,
		logger:      logger,
	}
}

// CreateRequestBody is the JSON payload for creating a request
type CreateRequestBody struct {
	MediaType         string `json:"media_type"`
	TmdbID            int    `json:"tmdb_id"`
	Is4K              bool   `json:"is_4k"`
	RequestedBy       string `json:"requested_by"`
	AutoApprove       bool   `json:"auto_approve"`
	Seasons           []int  `json:"seasons,omitempty"`
	ServerID          *int   `json:"server_id,omitempty"`
	ProfileID         *int   `json:"profile_id,omitempty"`
	RootFolder        string `json:"root_folder,omitempty"`
	LanguageProfileID *int   `json:"language_profile_id,omitempty"`
	Tags              []int  `json:"tags,omitempty"`
}

// ServeHTTP routes request collection and item endpoints
func (h *RequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tail := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/requests"), "/")

	if tail == "" {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleCreate(w, r)
		return
	}

	parts := strings.Split(tail, "/")
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "Invalid request id", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodDelete {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.handleRemove(w, r, id)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch parts[1] {
	case "approve":
		h.handleTransition(w, r, id, h.requestCtrl.Approve)
	case "decline":
		h.handleTransition(w, r, id, h.requestCtrl.Decline)
	case "retry":
		h.handleTransition(w, r, id, h.requestCtrl.Retry)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (h *RequestHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body CreateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.WithError(err).Error("Failed to decode request payload")
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	mediaType := models.MediaType(body.MediaType)
	if mediaType != models.MediaTypeMovie && mediaType != models.MediaTypeTV {
		http.Error(w, "Invalid media type", http.StatusBadRequest)
		return
	}
	if body.TmdbID == 0 {
		http.Error(w, "Missing tmdb_id", http.StatusBadRequest)
		return
	}

	request, err := h.requestCtrl.Create(r.Context(), controllers.CreateRequestInput{
		MediaType:         mediaType,
		TmdbID:            body.TmdbID,
		Is4K:              body.Is4K,
		RequestedBy:       body.RequestedBy,
		AutoApprove:       body.AutoApprove,
		Seasons:           body.Seasons,
		ServerID:          body.ServerID,
		ProfileID:         body.ProfileID,
		RootFolder:        body.RootFolder,
		LanguageProfileID: body.LanguageProfileID,
		Tags:              body.Tags,
	})
	if err != nil {
		if errors.Is(err, controllers.ErrDuplicateRequest) {
			http.Error(w, "Request already exists", http.StatusConflict)
			return
		}
		h.logger.WithError(err).Error("Failed to create request")
		http.Error(w, "Failed to create request", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

func (h *RequestHandler) handleTransition(w http.ResponseWriter, r *http.Request, id uint64, fn func(ctx context.Context, id uint64) (*models.Request, error)) {
	request, err := fn(r.Context(), id)
	if err != nil {
		if errors.Is(err, controllers.ErrInvalidTransition) {
			http.Error(w, "Invalid status transition", http.StatusConflict)
			return
		}
		h.logger.WithError(err).WithField("request_id", id).Error("Failed to transition request")
		http.Error(w, "Failed to update request", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(request)
}

func (h *RequestHandler) handleRemove(w http.ResponseWriter, r *http.Request, id uint64) {
	if err := h.requestCtrl.Remove(r.Context(), id); err != nil {
		h.logger.WithError(err).WithField("request_id", id).Error("Failed to remove request")
		http.Error(w, "Failed to remove request", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
