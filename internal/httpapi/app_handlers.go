package httpapi

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/catalog"
	"beaconhealth.org/internal/obs"
)

// DivergenceHeader carries the gap between a hand-entered overall score
// and the computed one when they disagree.
const DivergenceHeader = "X-Overall-Score-Divergence"

func (a *API) listApps(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sort, err := catalog.ParseSort(q.Get("sort"))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	apps, err := a.svc.Catalog.ListApps(r.Context(), catalog.Filter{
		Category:         strings.TrimSpace(q.Get("category")),
		RegulatoryStatus: strings.TrimSpace(q.Get("regulatory_status")),
		Sort:             sort,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list(apps))
}

func (a *API) createApp(w http.ResponseWriter, r *http.Request) {
	var in catalog.NewApp
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	app, err := a.svc.Catalog.CreateApp(r.Context(), in)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	obs.AppCreated()

	fields := map[string]any{
		"app_id":        app.ID,
		"name":          app.Name,
		"overall_score": app.OverallScore,
	}
	if gap, ok := catalog.OverallDivergence(in.ClaimedOverall, app.OverallScore); ok {
		obs.OverallDivergence()
		w.Header().Set(DivergenceHeader, strconv.FormatFloat(gap, 'f', 2, 64))
		fields["claimed_overall"] = *in.ClaimedOverall
		fields["divergence"] = gap
		a.audit(r.Context(), "catalog.app.overall_divergence", fields)
	}
	a.audit(r.Context(), "catalog.app.create", fields)

	w.Header().Set("Location", "/v1/apps/"+app.ID)
	writeJSON(w, http.StatusCreated, app)
}

func (a *API) getApp(w http.ResponseWriter, r *http.Request) {
	app, err := a.svc.Catalog.GetApp(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (a *API) patchApp(w http.ResponseWriter, r *http.Request) {
	var patch catalog.AppPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if patch.IsEmpty() {
		writeError(w, r, http.StatusBadRequest, "no fields to update")
		return
	}
	app, err := a.svc.Catalog.UpdateApp(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "catalog.app.update", map[string]any{
		"app_id":        app.ID,
		"overall_score": app.OverallScore,
	})
	writeJSON(w, http.StatusOK, app)
}

func (a *API) catalogStats(w http.ResponseWriter, r *http.Request) {
	st, err := a.svc.Catalog.Stats(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// scorePreview evaluates the scoring policy without touching the catalog.
func (a *API) scorePreview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var subs [4]float64
	for i, field := range []string{"clinical_score", "ux_score", "security_score", "integration_score"} {
		v, err := parseScore(field, q.Get(field))
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		subs[i] = v
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clinical_score":    subs[0],
		"ux_score":          subs[1],
		"security_score":    subs[2],
		"integration_score": subs[3],
		"overall_score":     catalog.Score(subs[0], subs[1], subs[2], subs[3]),
	})
}

func parseScore(field, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, apperr.Invalid(field, "is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperr.Invalid(field, "must be a number")
	}
	if math.IsNaN(v) || v < catalog.MinScore || v > catalog.MaxScore {
		return 0, apperr.Invalid(field, "must be within [0,5], got %v", v)
	}
	return v, nil
}
