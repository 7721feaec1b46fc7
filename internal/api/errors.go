package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Resinat/Dashgate/internal/downstream"
)

func writeInvalidArgument(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, message)
}

func writeInternal(w http.ResponseWriter) {
	WriteError(w, http.StatusInternalServerError, "internal server error")
}

func writePayloadTooLarge(w http.ResponseWriter, limit int64) {
	msg := "request body too large"
	if limit > 0 {
		msg = "request body too large (max " + strconv.FormatInt(limit, 10) + " bytes)"
	}
	WriteError(w, http.StatusRequestEntityTooLarge, msg)
}

func writeDecodeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *requestBodyTooLargeError
	if errors.As(err, &tooLarge) {
		writePayloadTooLarge(w, tooLarge.Limit)
		return
	}
	writeInvalidArgument(w, err.Error())
}

// writeDownstreamError maps gateway failures to 503 or 502. Anything else
// is a 500.
func writeDownstreamError(w http.ResponseWriter, err error) {
	if de, ok := downstream.AsError(err); ok {
		WriteError(w, de.Kind.HTTPStatus(), de.Error())
		return
	}
	writeInternal(w)
}

// writeDownstreamResponse passes a downstream reply through unchanged.
func writeDownstreamResponse(w http.ResponseWriter, resp *downstream.Response) {
	WriteRawJSON(w, resp.Status, resp.Body)
}
