package api

import (
	"net/http"
	"time"

	"github.com/Resinat/Dashgate/internal/downstream"
	"github.com/Resinat/Dashgate/internal/gating"
	"github.com/Resinat/Dashgate/internal/rolling"
)

// HandleCompileReport returns a handler for POST and GET /api/report.
// POST takes an optional JSON body. GET reads title and
// include_measurements from the query.
func HandleCompileReport(d *gating.Dispatcher, buf *rolling.Buffer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := parseReportRequest(w, r)
		if !ok {
			return
		}
		points := buf.Snapshot()
		env := downstream.NewReportEnvelope(req, rolling.ComputeStats(points), points, time.Now())
		writeGated(w, func() (gating.Outcome, error) {
			return d.CompileReport(r.Context(), env, r.Header)
		})
	}
}

func parseReportRequest(w http.ResponseWriter, r *http.Request) (downstream.ReportRequest, bool) {
	var req downstream.ReportRequest
	if r.Method != http.MethodGet {
		return req, decodeOptionalBodyOrWriteInvalid(w, r, &req)
	}

	req.Title = r.URL.Query().Get("title")
	include, ok := parseBoolQueryOrWriteInvalid(w, r, "include_measurements")
	if !ok {
		return req, false
	}
	if include != nil {
		req.IncludeMeasurements = *include
	}
	return req, true
}
