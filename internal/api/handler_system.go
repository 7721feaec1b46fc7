package api

import (
	"net/http"

	"github.com/Resinat/Dashgate/internal/buildinfo"
	"github.com/Resinat/Dashgate/internal/config"
)

type systemInfoResponse struct {
	buildinfo.Info
	Targets config.Targets `json:"targets"`
}

// HandleSystemInfo returns a handler for GET /api/system/info.
func HandleSystemInfo(info buildinfo.Info, targets config.Targets) http.HandlerFunc {
	resp := systemInfoResponse{Info: info, Targets: targets}
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, resp)
	}
}
