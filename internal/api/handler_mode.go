package api

import (
	"encoding/json"
	"net/http"

	"github.com/Resinat/Dashgate/internal/downstream"
	"github.com/Resinat/Dashgate/internal/mode"
)

type modeResponse struct {
	Status   string          `json:"status"`
	Mode     mode.Mode       `json:"mode"`
	Upstream json.RawMessage `json:"upstream,omitempty"`
}

// HandleGetMode returns a handler for GET /api/mode. An unreadable flag
// service reports the default mode.
func HandleGetMode(resolver *mode.Resolver) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, modeResponse{Status: statusOK, Mode: resolver.Resolve(r.Context())})
	}
}

// HandleSetMode returns a handler for POST /api/mode.
func HandleSetMode(gw *downstream.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req downstream.SetModeRequest
		if !decodeBodyOrWriteInvalid(w, r, &req) {
			return
		}
		m, err := mode.Parse(req.Mode)
		if err != nil {
			writeInvalidArgument(w, "mode: "+err.Error())
			return
		}

		resp, err := gw.SetMode(r.Context(), string(m), r.Header)
		if err != nil {
			writeDownstreamError(w, err)
			return
		}
		if !resp.OK() {
			writeDownstreamResponse(w, resp)
			return
		}
		WriteJSON(w, http.StatusOK, modeResponse{Status: statusOK, Mode: m, Upstream: resp.Body})
	}
}
