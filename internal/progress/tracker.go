// Package progress tracks how far a patient has got with an app.
package progress

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/catalog"
	"beaconhealth.org/internal/clock"
	"beaconhealth.org/internal/ids"
)

// Record is the single live progress entry for a (patient, app) pair.
type Record struct {
	ID        string    `json:"id"`
	PatientID string    `json:"patient_id"`
	AppID     string    `json:"app_id"`
	Percent   int       `json:"percent"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RelationshipChecker answers whether a patient has been prescribed an app.
type RelationshipChecker interface {
	HasPrescription(ctx context.Context, patientID, appID string) (bool, error)
}

// Service is the ProgressTracker contract.
type Service interface {
	UpsertProgress(ctx context.Context, patientID, appRef string, percent int) (Record, error)
	GetProgress(ctx context.Context, patientID, appRef string) (Record, error)
	ListProgress(ctx context.Context, patientID string) ([]Record, error)
}

// CheckInput validates the scalar inputs of UpsertProgress.
func CheckInput(patientID string, percent int) error {
	if strings.TrimSpace(patientID) == "" {
		return apperr.Invalid("patient_id", "is required")
	}
	if percent < 0 || percent > 100 {
		return apperr.Invalid("percent", "must be within [0,100], got %d", percent)
	}
	return nil
}

// ErrNoRelationship is returned when prescriptions are required and none exists.
func ErrNoRelationship(patientID, appID string) error {
	return apperr.NotFound("prescription for patient "+patientID+" and app", appID)
}

type key struct{ patient, app string }

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu      sync.RWMutex
	apps    catalog.Resolver
	rel     RelationshipChecker
	clock   clock.Clock
	records map[key]*Record
}

var _ Service = (*InMemory)(nil)

type Option func(*InMemory)

func WithClock(c clock.Clock) Option {
	return func(s *InMemory) {
		if c != nil {
			s.clock = c
		}
	}
}

// RequirePrescription makes UpsertProgress refuse pairs with no prescription.
func RequirePrescription(rel RelationshipChecker) Option {
	return func(s *InMemory) { s.rel = rel }
}

func NewInMemory(apps catalog.Resolver, opts ...Option) *InMemory {
	s := &InMemory{
		apps:    apps,
		clock:   clock.System{},
		records: make(map[key]*Record),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) UpsertProgress(ctx context.Context, patientID, appRef string, percent int) (Record, error) {
	patientID = strings.TrimSpace(patientID)
	if err := CheckInput(patientID, percent); err != nil {
		return Record{}, err
	}
	app, err := s.apps.ResolveApp(ctx, appRef)
	if err != nil {
		return Record{}, err
	}
	if s.rel != nil {
		ok, err := s.rel.HasPrescription(ctx, patientID, app.ID)
		if err != nil {
			return Record{}, err
		}
		if !ok {
			return Record{}, ErrNoRelationship(patientID, app.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{patientID, app.ID}
	if cur, ok := s.records[k]; ok {
		if cur.Percent != percent {
			cur.Percent = percent
			cur.UpdatedAt = s.clock.Now()
		}
		return *cur, nil
	}
	now := s.clock.Now()
	rec := &Record{ID: ids.NewAt(now), PatientID: patientID, AppID: app.ID, Percent: percent, UpdatedAt: now}
	s.records[k] = rec
	return *rec, nil
}

func (s *InMemory) GetProgress(ctx context.Context, patientID, appRef string) (Record, error) {
	app, err := s.apps.ResolveApp(ctx, appRef)
	if err != nil {
		return Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key{strings.TrimSpace(patientID), app.ID}]
	if !ok {
		return Record{}, apperr.NotFound("progress for app", app.ID)
	}
	return *rec, nil
}

func (s *InMemory) ListProgress(ctx context.Context, patientID string) ([]Record, error) {
	patientID = strings.TrimSpace(patientID)
	s.mu.RLock()
	res := []Record{}
	for k, rec := range s.records {
		if k.patient == patientID {
			res = append(res, *rec)
		}
	}
	s.mu.RUnlock()
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// Len reports the number of live records.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
