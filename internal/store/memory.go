package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/civicband/clerk-sub001/internal/model"
)

// Memory is an in-process Store double used by the Test-Mode Runner
// (spec.md §4.9) and by package tests elsewhere in the module, so handler
// logic can run against the same interface production code uses without a
// real Postgres instance — grounded on muster's in-memory fake clients
// used across its controller tests.
type Memory struct {
	mu       sync.Mutex
	sites    map[string]model.Site
	jobs     []trackedJob
	hooks    Hooks
}

type trackedJob struct {
	JobID, Subdomain, ParentJobID string
	Type                          model.JobType
	Stage                         model.Stage
}

func NewMemory() *Memory {
	return &Memory{
		sites: make(map[string]model.Site),
		hooks: noopHooks{},
	}
}

func (m *Memory) SetHooks(hooks Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = hooks
}

func (m *Memory) GetSite(_ context.Context, subdomain string) (model.Site, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[subdomain]
	return s, ok, nil
}

func (m *Memory) CreateSite(ctx context.Context, site model.Site) error {
	m.mu.Lock()
	if _, exists := m.sites[site.Subdomain]; exists {
		m.mu.Unlock()
		return fmt.Errorf("store: site %s already exists", site.Subdomain)
	}
	if site.Counters == nil {
		site.Counters = make(map[model.CounterStage]model.Counter)
	}
	m.sites[site.Subdomain] = site
	hooks := m.hooks
	m.mu.Unlock()

	hooks.DispatchCreateSite(ctx, site.Subdomain, site)
	return nil
}

func (m *Memory) UpdateSite(ctx context.Context, subdomain string, updates SiteUpdate) error {
	m.mu.Lock()
	s, ok := m.sites[subdomain]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("store: unknown site %s", subdomain)
	}
	applySiteUpdate(&s, updates)
	m.sites[subdomain] = s
	hooks := m.hooks
	m.mu.Unlock()

	hooks.DispatchUpdateSite(ctx, subdomain, updates)
	return nil
}

func applySiteUpdate(s *model.Site, u SiteUpdate) {
	if u.CurrentStage != nil {
		s.CurrentStage = *u.CurrentStage
	}
	if u.Status != nil {
		s.Status = *u.Status
	}
	if u.ExtractionStatus != nil {
		s.ExtractionStatus = *u.ExtractionStatus
	}
	if u.StartedAt != nil {
		s.StartedAt = u.StartedAt
	}
	if u.LastUpdated != nil {
		s.LastUpdated = u.LastUpdated
	}
	if u.LastExtracted != nil {
		s.LastExtracted = u.LastExtracted
	}
	if u.Pages != nil {
		s.Pages = *u.Pages
	}
	if u.CoordinatorEnqueued != nil {
		s.CoordinatorEnqueued = *u.CoordinatorEnqueued
	}
}

// GetOldestSite implements spec.md §4.7's eligibility rule: LastUpdated
// NULL sorts before any timestamp, then ascending by LastUpdated.
func (m *Memory) GetOldestSite(_ context.Context, lookbackHours int, now time.Time) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	var best string
	var bestTime time.Time
	var bestIsNull bool
	found := false

	for subdomain, s := range m.sites {
		eligible := s.LastUpdated == nil || s.LastUpdated.Before(cutoff)
		if !eligible {
			continue
		}
		isNull := s.LastUpdated == nil
		var t time.Time
		if !isNull {
			t = *s.LastUpdated
		}

		if !found {
			best, bestTime, bestIsNull, found = subdomain, t, isNull, true
			continue
		}
		if isNull && !bestIsNull {
			best, bestTime, bestIsNull = subdomain, t, isNull
			continue
		}
		if isNull == bestIsNull && !isNull && t.Before(bestTime) {
			best, bestTime = subdomain, t
			continue
		}
		// Stable tie-break for determinism in tests.
		if isNull == bestIsNull && t.Equal(bestTime) && subdomain < best {
			best = subdomain
		}
	}
	return best, found, nil
}

func (m *Memory) IncrementCounter(_ context.Context, subdomain string, stage model.CounterStage, field CounterField, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[subdomain]
	if !ok {
		return fmt.Errorf("store: unknown site %s", subdomain)
	}
	if s.Counters == nil {
		s.Counters = make(map[model.CounterStage]model.Counter)
	}
	c := s.Counters[stage]
	setCounterField(&c, field, counterFieldValue(c, field)+delta)
	s.Counters[stage] = c
	m.sites[subdomain] = s
	return nil
}

func (m *Memory) SetCounter(_ context.Context, subdomain string, stage model.CounterStage, field CounterField, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[subdomain]
	if !ok {
		return fmt.Errorf("store: unknown site %s", subdomain)
	}
	if s.Counters == nil {
		s.Counters = make(map[model.CounterStage]model.Counter)
	}
	c := s.Counters[stage]
	setCounterField(&c, field, value)
	s.Counters[stage] = c
	m.sites[subdomain] = s
	return nil
}

func counterFieldValue(c model.Counter, field CounterField) int {
	switch field {
	case FieldTotal:
		return c.Total
	case FieldCompleted:
		return c.Completed
	case FieldFailed:
		return c.Failed
	default:
		return 0
	}
}

func setCounterField(c *model.Counter, field CounterField, value int) {
	switch field {
	case FieldTotal:
		c.Total = value
	case FieldCompleted:
		c.Completed = value
	case FieldFailed:
		c.Failed = value
	}
}

func (m *Memory) ReadCounters(_ context.Context, subdomain string) (map[model.CounterStage]model.Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[subdomain]
	if !ok {
		return nil, fmt.Errorf("store: unknown site %s", subdomain)
	}
	out := make(map[model.CounterStage]model.Counter, len(s.Counters))
	for k, v := range s.Counters {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) TrackJob(_ context.Context, jobID, subdomain string, jobType model.JobType, stage model.Stage, parentJobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, trackedJob{JobID: jobID, Subdomain: subdomain, Type: jobType, Stage: stage, ParentJobID: parentJobID})
	return nil
}

func (m *Memory) AllSites(_ context.Context) ([]model.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Site, 0, len(m.sites))
	for _, s := range m.sites {
		out = append(out, s)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
