package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/Resinat/Dashgate/internal/downstream"
	"github.com/Resinat/Dashgate/internal/gating"
	"github.com/Resinat/Dashgate/internal/rolling"
	"go.uber.org/zap"
)

// HandleCreatePlot returns a handler for POST /api/plots.
// An empty body, or one without y, plots the current buffer. Malformed
// series are rejected before the mode lookup. An empty buffer is left to
// the dispatcher so test mode still skips.
func HandleCreatePlot(d *gating.Dispatcher, buf *rolling.Buffer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req downstream.PlotRequest
		if !decodeOptionalBodyOrWriteInvalid(w, r, &req) {
			return
		}
		env, err := downstream.NewPlotEnvelope(req, buf.Snapshot())
		if err != nil && !errors.Is(err, downstream.ErrNoPlotData) {
			writeInvalidArgument(w, err.Error())
			return
		}
		writeGated(w, func() (gating.Outcome, error) {
			return d.CreatePlot(r.Context(), env, r.Header)
		})
	}
}

// HandleFetchPlot returns a handler for GET /api/plots/{id}.
// Image bytes are streamed through without buffering.
func HandleFetchPlot(gw *downstream.Gateway, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := PathParam(r, "id")
		if id == "" {
			writeInvalidArgument(w, "id: is required")
			return
		}

		bin, err := gw.FetchPlot(r.Context(), id, r.Header)
		if err != nil {
			writeDownstreamError(w, err)
			return
		}
		if bin.JSON != nil {
			writeDownstreamResponse(w, bin.JSON)
			return
		}
		defer bin.Body.Close()

		w.Header().Set("Content-Type", bin.ContentType)
		w.WriteHeader(bin.Status)
		if n, err := io.Copy(w, bin.Body); err != nil {
			// Headers are gone; all that is left is to record it.
			logger.Warn("plot stream interrupted",
				zap.String("plot_id", id),
				zap.Int64("bytes", n),
				zap.String("request_id", downstream.RequestIDFromContext(r.Context())),
				zap.Error(err),
			)
		}
	}
}

func writeGated(w http.ResponseWriter, call func() (gating.Outcome, error)) {
	out, err := call()
	if errors.Is(err, downstream.ErrNoPlotData) {
		writeInvalidArgument(w, err.Error())
		return
	}
	if err != nil {
		writeDownstreamError(w, err)
		return
	}
	if out.Skipped {
		WriteJSON(w, http.StatusOK, SkippedResponse{
			Status:  statusSkipped,
			Mode:    string(out.Mode),
			Message: out.Message,
		})
		return
	}
	writeDownstreamResponse(w, out.Response)
}
