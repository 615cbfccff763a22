package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/amaumene/requestarr/internal/models"
	"github.com/sirupsen/logrus"
)

// HealthResponse reports process and store health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// HealthHandler answers liveness probes, checking the request store on the way
type HealthHandler struct {
	db     *models.Database
	logger *logrus.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *models.Database, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{Status: "ok", Database: "up"}
	code := http.StatusOK
	if err := h.db.Ping(); err != nil {
		h.logger.WithError(err).Error("Database unreachable")
		response = HealthResponse{Status: "degraded", Database: "down"}
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
