package prescription

import (
	"context"
	"strings"
	"time"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/catalog"
)

type Status string

const (
	StatusPending   Status = "Pending"
	StatusActive    Status = "Active"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

// transitions lists the permitted moves. Completed and Cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCancelled},
	StatusActive:  {StatusCompleted, StatusCancelled},
}

// ParseStatus accepts any casing of a known status.
func ParseStatus(raw string) (Status, error) {
	for _, s := range []Status{StatusPending, StatusActive, StatusCompleted, StatusCancelled} {
		if strings.EqualFold(strings.TrimSpace(raw), string(s)) {
			return s, nil
		}
	}
	return "", apperr.Invalid("status", "unknown status %q", raw)
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Allowed returns the statuses reachable from s in one step.
func (s Status) Allowed() []Status {
	return append([]Status(nil), transitions[s]...)
}

func (s Status) known() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a permitted move.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition returns a *apperr.ValidationError for an unknown target and a
// *apperr.TransitionError when from -> to is not permitted.
func CheckTransition(from, to Status) error {
	if !to.known() {
		return apperr.Invalid("status", "unknown status %q", to)
	}
	if CanTransition(from, to) {
		return nil
	}
	allowed := make([]string, 0, 2)
	for _, s := range transitions[from] {
		allowed = append(allowed, string(s))
	}
	return &apperr.TransitionError{Entity: "prescription", From: string(from), To: string(to), Allowed: allowed}
}

// Prescription links a provider, a patient and a catalog app.
type Prescription struct {
	ID               string     `json:"id"`
	AppID            string     `json:"app_id"`
	ProviderID       string     `json:"provider_id"`
	PatientID        string     `json:"patient_id"`
	Status           Status     `json:"status"`
	Notes            string     `json:"notes,omitempty"`
	PrescribedAt     time.Time  `json:"prescribed_at"`
	NextReviewAt     *time.Time `json:"next_review_at,omitempty"`
	AdherencePercent *int       `json:"adherence_percent,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AppSummary is the read-only slice of an App shown next to a prescription.
type AppSummary struct {
	Name             string  `json:"name"`
	Category         string  `json:"category"`
	Developer        string  `json:"developer"`
	Description      string  `json:"description"`
	OverallScore     float64 `json:"overall_score"`
	RegulatoryStatus string  `json:"regulatory_status"`
}

func SummaryOf(a catalog.App) AppSummary {
	return AppSummary{
		Name:             a.Name,
		Category:         a.Category,
		Developer:        a.Developer,
		Description:      a.Description,
		OverallScore:     a.OverallScore,
		RegulatoryStatus: a.RegulatoryStatus,
	}
}

// View is a prescription joined with its app for display.
type View struct {
	Prescription
	App AppSummary `json:"app"`
}

// Request is the input to Prescribe. InitialStatus defaults to Active.
type Request struct {
	AppRef        string     `json:"app" yaml:"app"`
	ProviderID    string     `json:"provider_id" yaml:"provider_id"`
	PatientID     string     `json:"patient_id" yaml:"patient_id"`
	Notes         string     `json:"notes,omitempty" yaml:"notes,omitempty"`
	InitialStatus Status     `json:"status,omitempty" yaml:"status,omitempty"`
	NextReviewAt  *time.Time `json:"next_review_at,omitempty" yaml:"next_review_at,omitempty"`
}

// Normalize validates r and fills the default initial status.
func (r Request) Normalize() (Request, error) {
	r.AppRef = strings.TrimSpace(r.AppRef)
	r.ProviderID = strings.TrimSpace(r.ProviderID)
	r.PatientID = strings.TrimSpace(r.PatientID)
	if r.AppRef == "" {
		return r, apperr.Invalid("app", "reference is required")
	}
	if r.ProviderID == "" {
		return r, apperr.Invalid("provider_id", "is required")
	}
	if r.PatientID == "" {
		return r, apperr.Invalid("patient_id", "is required")
	}
	if r.InitialStatus == "" {
		r.InitialStatus = StatusActive
		return r, nil
	}
	s, err := ParseStatus(string(r.InitialStatus))
	if err != nil {
		return r, err
	}
	if s != StatusActive && s != StatusPending {
		return r, apperr.Invalid("status", "initial status must be Active or Pending, got %q", r.InitialStatus)
	}
	r.InitialStatus = s
	return r, nil
}

// CheckAdherence validates an adherence percentage and the state that permits recording it.
func CheckAdherence(status Status, percent int) error {
	if percent < 0 || percent > 100 {
		return apperr.Invalid("adherence_percent", "must be within [0,100], got %d", percent)
	}
	if status != StatusActive {
		return &apperr.TransitionError{Entity: "prescription adherence", From: string(status), To: string(status)}
	}
	return nil
}

// CheckReview rejects scheduling a review on a closed prescription.
func CheckReview(status Status) error {
	if status.Terminal() {
		return &apperr.TransitionError{Entity: "prescription review", From: string(status), To: string(status)}
	}
	return nil
}

// Change is a combined update. Every field is checked against the status held
// before the change, then applied in the order adherence, review, status.
type Change struct {
	Status           *Status
	AdherencePercent *int
	NextReviewAt     *time.Time
}

func (c Change) Empty() bool {
	return c.Status == nil && c.AdherencePercent == nil && c.NextReviewAt == nil
}

// ApplyTo updates p in place, or leaves it untouched and returns the first
// rejection.
func (c Change) ApplyTo(p *Prescription) error {
	if c.Empty() {
		return apperr.Invalid("change", "no fields to update")
	}
	if c.AdherencePercent != nil {
		if err := CheckAdherence(p.Status, *c.AdherencePercent); err != nil {
			return err
		}
	}
	if c.NextReviewAt != nil {
		if err := CheckReview(p.Status); err != nil {
			return err
		}
	}
	if c.Status != nil {
		if err := CheckTransition(p.Status, *c.Status); err != nil {
			return err
		}
	}

	if c.AdherencePercent != nil {
		v := *c.AdherencePercent
		p.AdherencePercent = &v
	}
	if c.NextReviewAt != nil {
		at := c.NextReviewAt.UTC()
		p.NextReviewAt = &at
	}
	if c.Status != nil {
		p.Status = *c.Status
	}
	return nil
}

// Service is the PrescriptionLedger contract.
type Service interface {
	Prescribe(ctx context.Context, req Request) (Prescription, error)
	SetStatus(ctx context.Context, id string, next Status) (Prescription, error)
	RecordAdherence(ctx context.Context, id string, percent int) (Prescription, error)
	ScheduleReview(ctx context.Context, id string, at time.Time) (Prescription, error)
	// Apply commits c as one unit and also returns the status held before it.
	Apply(ctx context.Context, id string, c Change) (Prescription, Status, error)
	GetPrescription(ctx context.Context, id string) (View, error)
	ListForPatient(ctx context.Context, patientID string) ([]View, error)
	ListForProvider(ctx context.Context, providerID string) ([]View, error)
	HasPrescription(ctx context.Context, patientID, appID string) (bool, error)
}
