package api

import "net/http"

// HandleHealthz returns a handler for GET /healthz.
// It reports process liveness only and never touches a downstream.
func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": statusOK})
	}
}
