package api

import (
	"net/http"
	"slices"
	"time"

	"github.com/Resinat/Dashgate/internal/calllog"
	"github.com/Resinat/Dashgate/internal/downstream"
	"github.com/Resinat/Dashgate/internal/model"
	"go.uber.org/zap"
)

var knownOutcomes = []string{
	model.OutcomeOK,
	model.OutcomeUpstreamErr,
	model.OutcomeBadGateway,
	model.OutcomeUnavailable,
	model.OutcomeCanceled,
}

// HandleListCalls handles GET /api/calls.
// Query params: limit, offset, domain, operation, outcome, request_id.
func HandleListCalls(repo *calllog.Repo, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pg, ok := parsePaginationOrWriteInvalid(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		f := calllog.ListFilter{
			Domain:    q.Get("domain"),
			Operation: q.Get("operation"),
			Outcome:   q.Get("outcome"),
			RequestID: q.Get("request_id"),
			Limit:     pg.Limit,
			Offset:    pg.Offset,
		}
		if f.Domain != "" {
			if _, ok := downstream.ParseDomain(f.Domain); !ok {
				writeInvalidArgument(w, "domain: must be one of auth, feature-flags, plots, report")
				return
			}
		}
		if f.Outcome != "" && !slices.Contains(knownOutcomes, f.Outcome) {
			writeInvalidArgument(w, "outcome: unknown value")
			return
		}

		rows, total, err := repo.List(f)
		if err != nil {
			logger.Error("list calls", zap.Error(err))
			writeInternal(w)
			return
		}

		items := make([]callItem, 0, len(rows))
		for _, row := range rows {
			items = append(items, toCallItem(row))
		}
		WriteJSON(w, http.StatusOK, PageResponse[callItem]{
			Items:  items,
			Total:  total,
			Limit:  pg.Limit,
			Offset: pg.Offset,
		})
	}
}

// HandleGetCall handles GET /api/calls/{id}.
func HandleGetCall(repo *calllog.Repo, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := PathParam(r, "id")
		row, err := repo.GetByID(id)
		if err != nil {
			logger.Error("get call", zap.String("id", id), zap.Error(err))
			writeInternal(w)
			return
		}
		if row == nil {
			writeNotFound(w, "call not found")
			return
		}
		WriteJSON(w, http.StatusOK, toCallItem(*row))
	}
}

type callItem struct {
	ID                string  `json:"id"`
	Ts                string  `json:"ts"`
	RequestID         string  `json:"request_id"`
	Domain            string  `json:"domain"`
	Operation         string  `json:"operation"`
	HTTPMethod        string  `json:"http_method"`
	TargetURL         string  `json:"target_url"`
	HTTPStatus        int     `json:"http_status"`
	Outcome           string  `json:"outcome"`
	DurationMs        float64 `json:"duration_ms"`
	CredentialFP      string  `json:"credential_fp,omitempty"`
	ErrorKind         string  `json:"error_kind,omitempty"`
	ErrorMessage      string  `json:"error_message,omitempty"`
	ResponseBodyBytes int64   `json:"response_body_bytes"`
}

func toCallItem(c model.CallRecord) callItem {
	return callItem{
		ID:                c.ID,
		Ts:                time.Unix(0, c.TsNs).UTC().Format(time.RFC3339Nano),
		RequestID:         c.RequestID,
		Domain:            c.Domain,
		Operation:         c.Operation,
		HTTPMethod:        c.HTTPMethod,
		TargetURL:         c.TargetURL,
		HTTPStatus:        c.HTTPStatus,
		Outcome:           c.Outcome,
		DurationMs:        float64(c.DurationNs) / 1e6,
		CredentialFP:      c.CredentialFP,
		ErrorKind:         c.ErrorKind,
		ErrorMessage:      c.ErrorMessage,
		ResponseBodyBytes: c.ResponseBodyBytes,
	}
}
