package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/amaumene/requestarr/internal/models"
	"github.com/sirupsen/logrus"
)

// StatusHandler handles status requests
type StatusHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:     db,
		logger: logger,
	}
}

// StatusResponse represents the status response. Media counts are kept
// per tier since the two move through the lifecycle independently.
type StatusResponse struct {
	TotalRequests    int            `json:"total_requests"`
	Pending          int            `json:"pending"`
	Approved         int            `json:"approved"`
	Declined         int            `json:"declined"`
	Failed           int            `json:"failed"`
	Completed        int            `json:"completed"`
	RequestsByType   map[string]int `json:"requests_by_type"`
	MediasByStatus   map[string]int `json:"medias_by_status"`
	MediasBy4KStatus map[string]int `json:"medias_by_4k_status"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requests, err := h.db.GetAllRequests()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get requests")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	medias, err := h.db.GetAllMedias()
	if err != nil {
		h.logger.WithError(err).Error("Failed to get medias")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	response := StatusResponse{
		TotalRequests:    len(requests),
		RequestsByType:   make(map[string]int),
		MediasByStatus:   make(map[string]int),
		MediasBy4KStatus: make(map[string]int),
	}

	for _, request := range requests {
		// Count by status
		switch request.Status {
		case models.RequestStatusPending:
			response.Pending++
		case models.RequestStatusApproved:
			response.Approved++
		case models.RequestStatusDeclined:
			response.Declined++
		case models.RequestStatusFailed:
			response.Failed++
		case models.RequestStatusCompleted:
			response.Completed++
		}

		// Count by type
		response.RequestsByType[string(request.MediaType)]++
	}

	for _, media := range medias {
		response.MediasByStatus[string(media.Status)]++
		response.MediasBy4KStatus[string(media.Status4K)]++
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
