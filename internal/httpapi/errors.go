package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/obs"
)

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleDomainError maps the apperr kinds onto HTTP statuses.
func handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		ve *apperr.ValidationError
		te *apperr.TransitionError
	)
	switch {
	case errors.As(err, &te):
		payload := errorPayload(r, err.Error())
		payload["from"] = te.From
		payload["to"] = te.To
		allowed := te.Allowed
		if allowed == nil {
			allowed = []string{}
		}
		payload["allowed"] = allowed
		writeJSON(w, http.StatusConflict, payload)
	case errors.As(err, &ve):
		payload := errorPayload(r, err.Error())
		payload["field"] = ve.Field
		writeJSON(w, http.StatusBadRequest, payload)
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		obs.Logger().Error().Err(err).Str("request_id", RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).Msg("unhandled error")
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func errorPayload(r *http.Request, msg string) map[string]any {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	return payload
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorPayload(r, msg))
}
