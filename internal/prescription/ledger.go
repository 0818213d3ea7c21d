package prescription

import (
	"context"
	"sync"
	"time"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/catalog"
	"beaconhealth.org/internal/clock"
	"beaconhealth.org/internal/ids"
)

// InMemory implements Service with in-process concurrency safety.
// App references are checked against the catalog at creation time.
type InMemory struct {
	mu      sync.RWMutex
	apps    catalog.Resolver
	clock   clock.Clock
	records map[string]*Prescription
	order   []string
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

// NewInMemory creates an empty ledger backed by apps for reference checks.
func NewInMemory(apps catalog.Resolver, opts ...Option) *InMemory {
	s := &InMemory{
		apps:    apps,
		clock:   clock.System{},
		records: make(map[string]*Prescription),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) Prescribe(ctx context.Context, req Request) (Prescription, error) {
	req, err := req.Normalize()
	if err != nil {
		return Prescription{}, err
	}
	app, err := s.apps.ResolveApp(ctx, req.AppRef)
	if err != nil {
		return Prescription{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	p := Prescription{
		ID:           ids.NewAt(now),
		AppID:        app.ID,
		ProviderID:   req.ProviderID,
		PatientID:    req.PatientID,
		Status:       req.InitialStatus,
		Notes:        req.Notes,
		PrescribedAt: now,
		NextReviewAt: copyTime(req.NextReviewAt),
		UpdatedAt:    now,
	}
	s.records[p.ID] = &p
	s.order = append(s.order, p.ID)
	return clonePrescription(p), nil
}

func (s *InMemory) SetStatus(ctx context.Context, id string, next Status) (Prescription, error) {
	p, _, err := s.Apply(ctx, id, Change{Status: &next})
	return p, err
}

func (s *InMemory) RecordAdherence(ctx context.Context, id string, percent int) (Prescription, error) {
	p, _, err := s.Apply(ctx, id, Change{AdherencePercent: &percent})
	return p, err
}

func (s *InMemory) ScheduleReview(ctx context.Context, id string, at time.Time) (Prescription, error) {
	p, _, err := s.Apply(ctx, id, Change{NextReviewAt: &at})
	return p, err
}

func (s *InMemory) Apply(ctx context.Context, id string, c Change) (Prescription, Status, error) {
	var prev Status
	p, err := s.mutate(id, func(p *Prescription) error {
		prev = p.Status
		return c.ApplyTo(p)
	})
	if err != nil {
		return Prescription{}, "", err
	}
	return p, prev, nil
}

// mutate applies fn to a copy and commits it only when fn succeeds.
func (s *InMemory) mutate(id string, fn func(*Prescription) error) (Prescription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[id]
	if !ok {
		return Prescription{}, apperr.NotFound("prescription", id)
	}
	next := clonePrescription(*cur)
	if err := fn(&next); err != nil {
		return Prescription{}, err
	}
	next.UpdatedAt = s.clock.Now()
	*cur = next
	return clonePrescription(next), nil
}

func (s *InMemory) GetPrescription(ctx context.Context, id string) (View, error) {
	s.mu.RLock()
	p, ok := s.records[id]
	var cp Prescription
	if ok {
		cp = clonePrescription(*p)
	}
	s.mu.RUnlock()
	if !ok {
		return View{}, apperr.NotFound("prescription", id)
	}
	return s.join(ctx, cp)
}

func (s *InMemory) ListForPatient(ctx context.Context, patientID string) ([]View, error) {
	return s.list(ctx, func(p *Prescription) bool { return p.PatientID == patientID })
}

func (s *InMemory) ListForProvider(ctx context.Context, providerID string) ([]View, error) {
	return s.list(ctx, func(p *Prescription) bool { return p.ProviderID == providerID })
}

func (s *InMemory) HasPrescription(ctx context.Context, patientID, appID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.order {
		if p := s.records[id]; p.PatientID == patientID && p.AppID == appID {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) list(ctx context.Context, match func(*Prescription) bool) ([]View, error) {
	s.mu.RLock()
	var matched []Prescription
	for _, id := range s.order {
		if p := s.records[id]; match(p) {
			matched = append(matched, clonePrescription(*p))
		}
	}
	s.mu.RUnlock()

	res := make([]View, 0, len(matched))
	for _, p := range matched {
		v, err := s.join(ctx, p)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, nil
}

func (s *InMemory) join(ctx context.Context, p Prescription) (View, error) {
	app, err := s.apps.ResolveApp(ctx, p.AppID)
	if err != nil {
		return View{}, err
	}
	return View{Prescription: p, App: SummaryOf(app)}, nil
}

func clonePrescription(p Prescription) Prescription {
	p.NextReviewAt = copyTime(p.NextReviewAt)
	if p.AdherencePercent != nil {
		v := *p.AdherencePercent
		p.AdherencePercent = &v
	}
	return p
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
