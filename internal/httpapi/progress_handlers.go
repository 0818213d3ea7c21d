package httpapi

import (
	"net/http"
	"strings"

	"beaconhealth.org/internal/obs"
)

type progressRequest struct {
	PatientID string `json:"patient_id"`
	App       string `json:"app"`
	Percent   *int   `json:"percent"`
}

func (a *API) putProgress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Percent == nil {
		writeError(w, r, http.StatusBadRequest, "percent is required")
		return
	}
	rec, err := a.svc.Progress.UpsertProgress(r.Context(), req.PatientID, req.App, *req.Percent)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.ProgressUpdated()
	a.audit(r.Context(), "progress.upsert", map[string]any{
		"patient_id": rec.PatientID,
		"app_id":     rec.AppID,
		"percent":    rec.Percent,
	})
	writeJSON(w, http.StatusOK, rec)
}

// getProgress returns one record when app is given, otherwise all of the
// patient's records.
func (a *API) getProgress(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	patientID := strings.TrimSpace(q.Get("patient_id"))
	if patientID == "" {
		writeError(w, r, http.StatusBadRequest, "patient_id query parameter is required")
		return
	}
	if app := strings.TrimSpace(q.Get("app")); app != "" {
		rec, err := a.svc.Progress.GetProgress(r.Context(), patientID, app)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	recs, err := a.svc.Progress.ListProgress(r.Context(), patientID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(recs))
}
