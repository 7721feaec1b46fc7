package api

import (
	"net/http"
	"time"
)

const (
	secondsClock = "15:04:05"

	statusUpMessage   = "Connected to rolling statistics microservice."
	statusDownMessage = "Rolling statistics service not responding."
)

type statusResponse struct {
	SerialNumber string `json:"serial_number"`
	LastCheck    string `json:"last_check"`
	Connected    bool   `json:"connected"`
	Message      string `json:"message"`
}

// HandleStatus returns a handler for GET /api/status.
// The verdict is a fixed configuration value: 200 when available, else 503.
func HandleStatus(serialNumber string, available bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			SerialNumber: serialNumber,
			LastCheck:    time.Now().Format(secondsClock),
			Connected:    available,
		}
		if available {
			resp.Message = statusUpMessage
			WriteJSON(w, http.StatusOK, resp)
			return
		}
		resp.Message = statusDownMessage
		WriteJSON(w, http.StatusServiceUnavailable, resp)
	}
}
