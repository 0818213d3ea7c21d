package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"beaconhealth.org/internal/obs"
	"beaconhealth.org/internal/prescription"
)

type prescriptionPatch struct {
	Status           *string    `json:"status,omitempty"`
	AdherencePercent *int       `json:"adherence_percent,omitempty"`
	NextReviewAt     *time.Time `json:"next_review_at,omitempty"`
}

func (a *API) createPrescription(w http.ResponseWriter, r *http.Request) {
	var req prescription.Request
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.svc.Prescriptions.Prescribe(r.Context(), req)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.PrescriptionTransition("", string(p.Status))
	a.audit(r.Context(), "prescription.create", map[string]any{
		"prescription_id": p.ID,
		"app_id":          p.AppID,
		"provider_id":     p.ProviderID,
		"patient_id":      p.PatientID,
		"status":          p.Status,
	})

	w.Header().Set("Location", "/v1/prescriptions/"+p.ID)
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) listPrescriptions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	patientID := strings.TrimSpace(q.Get("patient_id"))
	providerID := strings.TrimSpace(q.Get("provider_id"))
	var (
		views []prescription.View
		err   error
	)
	switch {
	case patientID != "" && providerID != "":
		writeError(w, r, http.StatusBadRequest, "use either patient_id or provider_id, not both")
		return
	case patientID != "":
		views, err = a.svc.Prescriptions.ListForPatient(r.Context(), patientID)
	case providerID != "":
		views, err = a.svc.Prescriptions.ListForProvider(r.Context(), providerID)
	default:
		writeError(w, r, http.StatusBadRequest, "patient_id or provider_id query parameter is required")
		return
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(views))
}

func (a *API) getPrescription(w http.ResponseWriter, r *http.Request) {
	v, err := a.svc.Prescriptions.GetPrescription(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// patchPrescription applies adherence, review date and status as one change.
// A rejected field leaves the prescription untouched.
func (a *API) patchPrescription(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var patch prescriptionPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	change := prescription.Change{
		AdherencePercent: patch.AdherencePercent,
		NextReviewAt:     patch.NextReviewAt,
	}
	if patch.Status != nil {
		next, err := prescription.ParseStatus(*patch.Status)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		change.Status = &next
	}
	if change.Empty() {
		writeError(w, r, http.StatusBadRequest, "no fields to update")
		return
	}

	ctx := r.Context()
	p, prev, err := a.svc.Prescriptions.Apply(ctx, id, change)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	fields := map[string]any{"prescription_id": id, "status": p.Status}
	if change.Status != nil {
		obs.PrescriptionTransition(string(prev), string(p.Status))
		fields["from"] = prev
	}
	if patch.AdherencePercent != nil {
		fields["adherence_percent"] = *patch.AdherencePercent
	}
	if patch.NextReviewAt != nil {
		fields["next_review_at"] = patch.NextReviewAt.UTC().Format(time.RFC3339)
	}
	a.audit(ctx, "prescription.update", fields)
	writeJSON(w, http.StatusOK, p)
}
