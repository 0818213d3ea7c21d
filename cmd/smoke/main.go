package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"beaconhealth.org/internal/catalog"
	"beaconhealth.org/internal/ids"
	"beaconhealth.org/internal/messaging"
	"beaconhealth.org/internal/obs"
	"beaconhealth.org/internal/prescription"
	"beaconhealth.org/internal/progress"
)

type client struct {
	base string
	http *http.Client
}

func (c client) call(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var e map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s %s: status %d: %v", method, path, resp.StatusCode, e["error"])
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func main() {
	base := os.Getenv("BEACON_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	log := obs.Logger()
	c := client{base: base, http: &http.Client{Timeout: 5 * time.Second}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// unique names keep repeated runs against one database independent
	suffix := ids.New()
	patient := "smoke-patient-" + suffix
	provider := "smoke-provider-" + suffix

	var app catalog.App
	if err := c.call(ctx, http.MethodPost, "/v1/apps", catalog.NewApp{
		Name:             "MindfulPath " + suffix,
		Category:         "Mental Health",
		Developer:        "Smoke Labs",
		ClinicalScore:    4.8,
		UXScore:          4.6,
		SecurityScore:    4.9,
		IntegrationScore: 4.5,
		RegulatoryStatus: "DiGA Listed",
		Compliant:        true,
	}, &app); err != nil {
		log.Fatal().Err(err).Msg("create app")
	}
	if app.OverallScore != 4.75 {
		log.Fatal().Float64("overall", app.OverallScore).Msg("unexpected overall score")
	}

	var rx prescription.Prescription
	if err := c.call(ctx, http.MethodPost, "/v1/prescriptions", prescription.Request{
		AppRef:     app.ID,
		ProviderID: provider,
		PatientID:  patient,
	}, &rx); err != nil {
		log.Fatal().Err(err).Msg("prescribe")
	}
	if rx.Status != prescription.StatusActive {
		log.Fatal().Str("status", string(rx.Status)).Msg("unexpected initial status")
	}

	var rec progress.Record
	if err := c.call(ctx, http.MethodPut, "/v1/progress", map[string]any{
		"patient_id": patient, "app": app.ID, "percent": 65,
	}, &rec); err != nil {
		log.Fatal().Err(err).Msg("record progress")
	}

	var msg messaging.Message
	if err := c.call(ctx, http.MethodPost, "/v1/messages", messaging.Draft{
		SenderRole:    "patient",
		SenderID:      patient,
		RecipientRole: "provider",
		RecipientID:   provider,
		Subject:       "Progress check-in",
		Body:          "Completed week three of the programme.",
		AppRef:        app.ID,
	}, &msg); err != nil {
		log.Fatal().Err(err).Msg("send message")
	}

	var unread struct {
		Unread int `json:"unread"`
	}
	q := url.Values{"participant_id": {provider}}
	if err := c.call(ctx, http.MethodGet, "/v1/messages/unread-count?"+q.Encode(), nil, &unread); err != nil {
		log.Fatal().Err(err).Msg("unread count")
	}
	if unread.Unread != 1 {
		log.Fatal().Int("unread", unread.Unread).Msg("unexpected unread count")
	}
	if err := c.call(ctx, http.MethodPost, "/v1/messages/"+msg.ID+"/read", nil, nil); err != nil {
		log.Fatal().Err(err).Msg("mark read")
	}

	if err := c.call(ctx, http.MethodPatch, "/v1/prescriptions/"+rx.ID, map[string]any{
		"status": "Completed", "adherence_percent": 90,
	}, &rx); err != nil {
		log.Fatal().Err(err).Msg("complete prescription")
	}
	if rx.Status != prescription.StatusCompleted {
		log.Fatal().Str("status", string(rx.Status)).Msg("prescription not completed")
	}

	log.Info().
		Str("app_id", app.ID).
		Str("prescription_id", rx.ID).
		Int("progress", rec.Percent).
		Msg("beacon smoke test passed")
}
