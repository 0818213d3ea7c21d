package catalog

import (
	"context"
	"math"
	"strings"
	"time"

	"beaconhealth.org/internal/apperr"
)

// App is a certified digital-therapeutic application. Sub-scores and the
// overall score are on a 0..5 scale; OverallScore is always derived.
type App struct {
	ID                 string    `json:"id" yaml:"-"`
	Name               string    `json:"name"`
	Category           string    `json:"category"`
	Description        string    `json:"description"`
	Developer          string    `json:"developer"`
	ClinicalScore      float64   `json:"clinical_score"`
	UXScore            float64   `json:"ux_score"`
	SecurityScore      float64   `json:"security_score"`
	IntegrationScore   float64   `json:"integration_score"`
	OverallScore       float64   `json:"overall_score"`
	RegulatoryStatus   string    `json:"regulatory_status"`
	CEStatus           string    `json:"ce_status"`
	Compliant          bool      `json:"compliant"`
	PriceModel         string    `json:"price_model"`
	CertificationNotes string    `json:"certification_notes"`
	StudiesNotes       string    `json:"studies_notes"`
	IntegrationNotes   string    `json:"integration_notes"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// NewApp is the admin input for CreateApp. ClaimedOverall carries an overall
// score typed by hand; it is never stored, only compared with the computed one.
type NewApp struct {
	Name               string   `json:"name" yaml:"name"`
	Category           string   `json:"category" yaml:"category"`
	Description        string   `json:"description" yaml:"description"`
	Developer          string   `json:"developer" yaml:"developer"`
	ClinicalScore      float64  `json:"clinical_score" yaml:"clinical_score"`
	UXScore            float64  `json:"ux_score" yaml:"ux_score"`
	SecurityScore      float64  `json:"security_score" yaml:"security_score"`
	IntegrationScore   float64  `json:"integration_score" yaml:"integration_score"`
	ClaimedOverall     *float64 `json:"overall_score,omitempty" yaml:"overall_score,omitempty"`
	RegulatoryStatus   string   `json:"regulatory_status" yaml:"regulatory_status"`
	CEStatus           string   `json:"ce_status" yaml:"ce_status"`
	Compliant          bool     `json:"compliant" yaml:"compliant"`
	PriceModel         string   `json:"price_model" yaml:"price_model"`
	CertificationNotes string   `json:"certification_notes" yaml:"certification_notes"`
	StudiesNotes       string   `json:"studies_notes" yaml:"studies_notes"`
	IntegrationNotes   string   `json:"integration_notes" yaml:"integration_notes"`
}

// AppPatch is a partial certification update. Nil fields are left untouched.
type AppPatch struct {
	ClinicalScore      *float64 `json:"clinical_score,omitempty"`
	UXScore            *float64 `json:"ux_score,omitempty"`
	SecurityScore      *float64 `json:"security_score,omitempty"`
	IntegrationScore   *float64 `json:"integration_score,omitempty"`
	RegulatoryStatus   *string  `json:"regulatory_status,omitempty"`
	CEStatus           *string  `json:"ce_status,omitempty"`
	Compliant          *bool    `json:"compliant,omitempty"`
	CertificationNotes *string  `json:"certification_notes,omitempty"`
	StudiesNotes       *string  `json:"studies_notes,omitempty"`
	IntegrationNotes   *string  `json:"integration_notes,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p AppPatch) IsEmpty() bool {
	return p.ClinicalScore == nil && p.UXScore == nil && p.SecurityScore == nil &&
		p.IntegrationScore == nil && p.RegulatoryStatus == nil && p.CEStatus == nil &&
		p.Compliant == nil && p.CertificationNotes == nil && p.StudiesNotes == nil &&
		p.IntegrationNotes == nil
}

type SortOrder string

const (
	SortInsertion SortOrder = ""
	SortByScore   SortOrder = "score"
	SortByName    SortOrder = "name"
)

// ParseSort accepts the query-string spelling of a sort order.
func ParseSort(raw string) (SortOrder, error) {
	switch s := SortOrder(strings.ToLower(strings.TrimSpace(raw))); s {
	case SortInsertion, SortByScore, SortByName:
		return s, nil
	default:
		return "", apperr.Invalid("sort", "must be one of score, name")
	}
}

// Filter is a conjunction of equality predicates; empty fields match all.
type Filter struct {
	Category         string
	RegulatoryStatus string
	Sort             SortOrder
}

func (f Filter) Match(a App) bool {
	if f.Category != "" && !strings.EqualFold(a.Category, f.Category) {
		return false
	}
	if f.RegulatoryStatus != "" && !strings.EqualFold(a.RegulatoryStatus, f.RegulatoryStatus) {
		return false
	}
	return true
}

// Stats is the catalog summary shown on the admin dashboard.
type Stats struct {
	Apps           int            `json:"apps"`
	Compliant      int            `json:"compliant"`
	AverageOverall float64        `json:"average_overall"`
	ByCategory     map[string]int `json:"by_category"`
}

// Resolver turns an app reference (id or name) into the catalog record.
type Resolver interface {
	ResolveApp(ctx context.Context, ref string) (App, error)
}

// Service is the AppCatalog contract.
type Service interface {
	Resolver
	CreateApp(ctx context.Context, in NewApp) (App, error)
	UpdateApp(ctx context.Context, id string, patch AppPatch) (App, error)
	GetApp(ctx context.Context, id string) (App, error)
	ListApps(ctx context.Context, f Filter) ([]App, error)
	Stats(ctx context.Context) (Stats, error)
}

// NameKey is the normalised form used for name uniqueness and lookup.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Validate checks a NewApp before anything is written.
func (n NewApp) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return apperr.Invalid("name", "is required")
	}
	if len(n.Name) > 128 {
		return apperr.Invalid("name", "must be at most 128 characters")
	}
	if strings.TrimSpace(n.Category) == "" {
		return apperr.Invalid("category", "is required")
	}
	for _, s := range []struct {
		field string
		v     float64
	}{
		{"clinical_score", n.ClinicalScore},
		{"ux_score", n.UXScore},
		{"security_score", n.SecurityScore},
		{"integration_score", n.IntegrationScore},
	} {
		if err := checkScore(s.field, s.v); err != nil {
			return err
		}
	}
	if n.ClaimedOverall != nil {
		if err := checkScore("overall_score", *n.ClaimedOverall); err != nil {
			return err
		}
	}
	return nil
}

// Build materialises the record stored for n.
func (n NewApp) Build(id string, now time.Time) App {
	a := App{
		ID:                 id,
		Name:               strings.TrimSpace(n.Name),
		Category:           strings.TrimSpace(n.Category),
		Description:        n.Description,
		Developer:          n.Developer,
		ClinicalScore:      n.ClinicalScore,
		UXScore:            n.UXScore,
		SecurityScore:      n.SecurityScore,
		IntegrationScore:   n.IntegrationScore,
		RegulatoryStatus:   strings.TrimSpace(n.RegulatoryStatus),
		CEStatus:           strings.TrimSpace(n.CEStatus),
		Compliant:          n.Compliant,
		PriceModel:         n.PriceModel,
		CertificationNotes: n.CertificationNotes,
		StudiesNotes:       n.StudiesNotes,
		IntegrationNotes:   n.IntegrationNotes,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	a.OverallScore = ScoreApp(a)
	return a
}

// Apply validates the patch and writes it onto a, recomputing the overall
// score. a is untouched when validation fails.
func (p AppPatch) Apply(a *App, now time.Time) error {
	for _, s := range []struct {
		field string
		v     *float64
	}{
		{"clinical_score", p.ClinicalScore},
		{"ux_score", p.UXScore},
		{"security_score", p.SecurityScore},
		{"integration_score", p.IntegrationScore},
	} {
		if s.v == nil {
			continue
		}
		if err := checkScore(s.field, *s.v); err != nil {
			return err
		}
	}
	if p.ClinicalScore != nil {
		a.ClinicalScore = *p.ClinicalScore
	}
	if p.UXScore != nil {
		a.UXScore = *p.UXScore
	}
	if p.SecurityScore != nil {
		a.SecurityScore = *p.SecurityScore
	}
	if p.IntegrationScore != nil {
		a.IntegrationScore = *p.IntegrationScore
	}
	if p.RegulatoryStatus != nil {
		a.RegulatoryStatus = strings.TrimSpace(*p.RegulatoryStatus)
	}
	if p.CEStatus != nil {
		a.CEStatus = strings.TrimSpace(*p.CEStatus)
	}
	if p.Compliant != nil {
		a.Compliant = *p.Compliant
	}
	if p.CertificationNotes != nil {
		a.CertificationNotes = *p.CertificationNotes
	}
	if p.StudiesNotes != nil {
		a.StudiesNotes = *p.StudiesNotes
	}
	if p.IntegrationNotes != nil {
		a.IntegrationNotes = *p.IntegrationNotes
	}
	a.OverallScore = ScoreApp(*a)
	a.UpdatedAt = now
	return nil
}

func checkScore(field string, v float64) error {
	if math.IsNaN(v) || v < MinScore || v > MaxScore {
		return apperr.Invalid(field, "must be within [0,5], got %v", v)
	}
	return nil
}
