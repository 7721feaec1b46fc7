package api

import (
	"net/http"
	"time"

	"github.com/Resinat/Dashgate/internal/model"
	"github.com/Resinat/Dashgate/internal/rolling"
	"github.com/Resinat/Dashgate/internal/sensor"
)

const (
	generatedMessage = "Generated one new test reading."
	resetMessage     = "Rolling statistics cleared. New stats will start from next data point."

	millisClock = "15:04:05.000"
)

type dataResponse struct {
	Status  string                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Data    model.MeasurementPoint `json:"data"`
}

type statsResponse struct {
	Status      string              `json:"status"`
	Stats       model.StatsSnapshot `json:"stats"`
	LastUpdated string              `json:"last_updated"`
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HandleData returns a handler for GET /api/data.
// Every read generates a new point and appends it.
func HandleData(gen *sensor.Generator, buf *rolling.Buffer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := gen.Next()
		buf.Append(p)
		WriteJSON(w, http.StatusOK, dataResponse{Status: statusOK, Data: p})
	}
}

// HandleGenerate returns a handler for POST /api/generate.
func HandleGenerate(gen *sensor.Generator, buf *rolling.Buffer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := gen.Next()
		buf.Append(p)
		WriteJSON(w, http.StatusOK, dataResponse{Status: statusOK, Message: generatedMessage, Data: p})
	}
}

// HandleStats returns a handler for GET /api/stats.
func HandleStats(buf *rolling.Buffer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := rolling.ComputeStats(buf.Snapshot())
		WriteJSON(w, http.StatusOK, statsResponse{
			Status:      statusOK,
			Stats:       stats,
			LastUpdated: time.Now().Format(millisClock),
		})
	}
}

// HandleReset returns a handler for POST /api/reset.
func HandleReset(buf *rolling.Buffer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buf.Clear()
		WriteJSON(w, http.StatusOK, messageResponse{Status: statusOK, Message: resetMessage})
	}
}
