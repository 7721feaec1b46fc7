package api

import (
	"net/http"
	"time"

	"github.com/Resinat/Dashgate/internal/downstream"
	"github.com/Resinat/Dashgate/internal/health"
)

type domainHealthResponse struct {
	Domain    downstream.Domain `json:"domain"`
	Connected bool              `json:"connected"`
	Message   string            `json:"message"`
	LastCheck string            `json:"last_check"`
}

func toDomainHealth(res health.ProbeResult) domainHealthResponse {
	return domainHealthResponse{
		Domain:    res.Domain,
		Connected: res.Connected,
		Message:   res.Message,
		LastCheck: res.CheckedAt.Format(secondsClock),
	}
}

// HandleDomainHealth returns a handler for GET /api/{domain}/health.
// It always probes live: 200 when connected, 503 otherwise.
func HandleDomainHealth(w *health.Watcher, d downstream.Domain) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		res := w.Probe(r.Context(), d)
		status := http.StatusOK
		if !res.Connected {
			status = http.StatusServiceUnavailable
		}
		WriteJSON(rw, status, toDomainHealth(res))
	}
}

type aggregateHealthResponse struct {
	Status    string                 `json:"status"`
	Services  []domainHealthResponse `json:"services"`
	NextCheck *time.Time             `json:"next_check,omitempty"`
}

// HandleAggregateHealth returns a handler for GET /api/health.
// Cached watcher results are served. Domains without one are probed.
func HandleAggregateHealth(w *health.Watcher) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		results := w.Snapshot(r.Context())
		resp := aggregateHealthResponse{
			Status:   statusOK,
			Services: make([]domainHealthResponse, 0, len(results)),
		}
		for _, res := range results {
			if !res.Connected {
				resp.Status = "degraded"
			}
			resp.Services = append(resp.Services, toDomainHealth(res))
		}
		if next := w.NextRun(); !next.IsZero() {
			next = next.UTC()
			resp.NextCheck = &next
		}
		WriteJSON(rw, http.StatusOK, resp)
	}
}
