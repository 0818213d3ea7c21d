package catalog

import (
	"context"
	"sort"
	"strings"
	"sync"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/clock"
	"beaconhealth.org/internal/ids"
)

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu     sync.RWMutex
	apps   map[string]*App
	order  []string          // insertion order of ids
	byName map[string]string // NameKey -> id
	clock  clock.Clock
}

var _ Service = (*InMemory)(nil)

type Option func(*InMemory)

// WithClock overrides the wall clock used for CreatedAt/UpdatedAt.
func WithClock(c clock.Clock) Option {
	return func(s *InMemory) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewInMemory creates an empty catalog.
func NewInMemory(opts ...Option) *InMemory {
	s := &InMemory{
		apps:   make(map[string]*App),
		byName: make(map[string]string),
		clock:  clock.System{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) CreateApp(ctx context.Context, in NewApp) (App, error) {
	if err := in.Validate(); err != nil {
		return App{}, err
	}
	key := NameKey(in.Name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byName[key]; taken {
		return App{}, apperr.Conflict("app name %q already exists", strings.TrimSpace(in.Name))
	}
	now := s.clock.Now()
	app := in.Build(ids.NewAt(now), now)
	s.apps[app.ID] = &app
	s.order = append(s.order, app.ID)
	s.byName[key] = app.ID
	return app, nil
}

func (s *InMemory) UpdateApp(ctx context.Context, id string, patch AppPatch) (App, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.apps[id]
	if !ok {
		return App{}, apperr.NotFound("app", id)
	}
	next := *cur
	if err := patch.Apply(&next, s.clock.Now()); err != nil {
		return App{}, err
	}
	*cur = next
	return next, nil
}

func (s *InMemory) GetApp(ctx context.Context, id string) (App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[id]
	if !ok {
		return App{}, apperr.NotFound("app", id)
	}
	return *app, nil
}

// ResolveApp looks ref up as an id first, then as a case-insensitive name.
func (s *InMemory) ResolveApp(ctx context.Context, ref string) (App, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return App{}, apperr.Invalid("app", "reference is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if app, ok := s.apps[ref]; ok {
		return *app, nil
	}
	if id, ok := s.byName[NameKey(ref)]; ok {
		return *s.apps[id], nil
	}
	return App{}, apperr.NotFound("app", ref)
}

func (s *InMemory) ListApps(ctx context.Context, f Filter) ([]App, error) {
	s.mu.RLock()
	res := make([]App, 0, len(s.order))
	for _, id := range s.order {
		if app := s.apps[id]; f.Match(*app) {
			res = append(res, *app)
		}
	}
	s.mu.RUnlock()
	SortApps(res, f.Sort)
	return res, nil
}

func (s *InMemory) Stats(ctx context.Context) (Stats, error) {
	apps, err := s.ListApps(ctx, Filter{})
	if err != nil {
		return Stats{}, err
	}
	return Summarize(apps), nil
}

// SortApps orders apps in place. Insertion order is kept for equal keys.
func SortApps(apps []App, order SortOrder) {
	switch order {
	case SortByScore:
		sort.SliceStable(apps, func(i, j int) bool { return apps[i].OverallScore > apps[j].OverallScore })
	case SortByName:
		sort.SliceStable(apps, func(i, j int) bool { return NameKey(apps[i].Name) < NameKey(apps[j].Name) })
	}
}

// Summarize computes catalog counts and the mean overall score.
func Summarize(apps []App) Stats {
	st := Stats{ByCategory: map[string]int{}}
	var total float64
	for _, a := range apps {
		st.Apps++
		if a.Compliant {
			st.Compliant++
		}
		st.ByCategory[a.Category]++
		total += a.OverallScore
	}
	if st.Apps > 0 {
		st.AverageOverall = round2(total / float64(st.Apps))
	}
	return st
}
