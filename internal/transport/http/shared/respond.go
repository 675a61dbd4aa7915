// Package shared centralizes the OCPI response envelope so every handler
// answers with the same shape: payload, application status code and message,
// and a timestamp, independent of the HTTP status.
package shared

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"ocpihub/internal/ocpi"
	"ocpihub/pkg/ocpistatus"
	"ocpihub/pkg/platform/sentinel"
)

// WriteData answers 200 with the payload wrapped in a success envelope.
func WriteData(w http.ResponseWriter, data any) {
	WriteStatus(w, http.StatusOK, data)
}

// WriteStatus answers with an explicit HTTP status and a success envelope.
func WriteStatus(w http.ResponseWriter, httpStatus int, data any) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			WriteError(w, ocpistatus.Internal("encode response: %s", err))
			return
		}
	}
	write(w, httpStatus, ocpi.Response{
		Data:          raw,
		StatusCode:    int(ocpistatus.Success),
		StatusMessage: "Success",
		Timestamp:     time.Now().UTC(),
	})
}

// WriteError answers with the error's HTTP status and its coded envelope.
// Errors without a code come out as 500/3000.
func WriteError(w http.ResponseWriter, err error) {
	oe := ocpistatus.From(err)
	write(w, oe.HTTPStatus, ocpi.Response{
		StatusCode:    int(oe.Code),
		StatusMessage: oe.Message,
		Timestamp:     time.Now().UTC(),
	})
}

func write(w http.ResponseWriter, httpStatus int, envelope ocpi.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(envelope)
}

// StoreError translates the asset and party store sentinels into coded OCPI
// errors; anything unrecognized passes through for WriteError's fallback.
func StoreError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return ocpistatus.New(ocpistatus.UnknownLocation, http.StatusNotFound, "%s", err)
	case errors.Is(err, sentinel.ErrConflict):
		return ocpistatus.New(ocpistatus.GenericClientError, http.StatusConflict, "%s", err)
	case errors.Is(err, sentinel.ErrDowngrade):
		return ocpistatus.New(ocpistatus.GenericClientError, http.StatusBadRequest, "%s", err)
	case errors.Is(err, sentinel.ErrCASMismatch):
		return ocpistatus.New(ocpistatus.GenericClientError, http.StatusConflict, "concurrent update, retry: %s", err)
	default:
		return err
	}
}

// Decode parses the request body into v, answering a 400 envelope on failure.
// The bool reports whether decoding succeeded.
func Decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, ocpistatus.Invalid("invalid request body: %s", err))
		return false
	}
	return true
}
